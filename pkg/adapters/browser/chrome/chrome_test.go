package chrome

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRenderAfterClose(t *testing.T) {
	r := New(Config{ExecPath: "/nonexistent/chrome"}, zap.NewNop())
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())

	_, err := r.Render(context.Background(), "http://example.com")
	assert.ErrorContains(t, err, "closed")
}

func TestRenderMissingBinary(t *testing.T) {
	r := New(Config{ExecPath: "/nonexistent/chrome"}, zap.NewNop())
	defer r.Close()

	_, err := r.Render(context.Background(), "http://example.com")
	assert.Error(t, err)
}
