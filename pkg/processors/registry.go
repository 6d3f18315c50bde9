package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/aescanero/quizsolver/pkg/domain"
)

// Registry converts downloaded attachments into prompt context
type Registry struct{}

// NewRegistry creates a processor registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Process dispatches on the attachment kind and returns text for the prompt
func (r *Registry) Process(ctx context.Context, att domain.Attachment, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch att.Kind {
	case domain.AttachmentPDF:
		return ExtractPDFText(data)

	case domain.AttachmentCSV:
		t, err := ParseCSV(data)
		if err != nil {
			return "", err
		}
		return t.Summary(), nil

	case domain.AttachmentJSON:
		if t, err := ParseJSONRecords(data); err == nil {
			return t.Summary() + "\nRaw JSON:\n" + string(data), nil
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, data); err != nil {
			return "", fmt.Errorf("invalid JSON: %w", err)
		}
		return compact.String(), nil

	case domain.AttachmentText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("text attachment is not valid UTF-8")
		}
		return string(data), nil

	default:
		return fmt.Sprintf("[%s attachment at %s, %d bytes, not inlined]", att.Kind, att.URL, len(data)), nil
	}
}
