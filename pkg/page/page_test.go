package page

import (
	"testing"

	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quizHTML = `<!doctype html>
<html><head><title>Quiz</title><style>body{color:red}</style></head>
<body>
  <h1>Q834. Sum the value column</h1>
  <script>var secret = "do not read";</script>
  <p>Download <a href="/files/data.csv">this file</a> and the <a href="report.pdf?v=2">report</a>.</p>
  <p>Post your answer to https://quiz.example.com/submit with this JSON payload.</p>
  <img src="/img/chart.png">
  <a href="/files/data.csv">duplicate</a>
  <a href="#top">top</a>
</body></html>`

func TestParseExtractsTextSubmitAndAttachments(t *testing.T) {
	p, err := Parse("https://quiz.example.com/quiz/834", quizHTML)
	require.NoError(t, err)

	assert.Contains(t, p.Text, "Q834. Sum the value column")
	assert.Contains(t, p.Text, "Post your answer to https://quiz.example.com/submit")
	assert.NotContains(t, p.Text, "do not read")
	assert.NotContains(t, p.Text, "color:red")

	assert.Equal(t, "https://quiz.example.com/submit", p.SubmitURL)

	assert.Equal(t, []domain.Attachment{
		{URL: "https://quiz.example.com/files/data.csv", Kind: domain.AttachmentCSV},
		{URL: "https://quiz.example.com/quiz/report.pdf?v=2", Kind: domain.AttachmentPDF},
		{URL: "https://quiz.example.com/img/chart.png", Kind: domain.AttachmentImage},
	}, p.Attachments)
}

func TestParseSubmitFromForm(t *testing.T) {
	html := `<html><body><form action="/api/submit" method="post"><input name="answer"></form></body></html>`
	p, err := Parse("http://localhost:8080/q/1", html)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api/submit", p.SubmitURL)
}

func TestParseRelativeSubmitInProse(t *testing.T) {
	html := `<html><body><p>POST your answer to /submit.</p></body></html>`
	p, err := Parse("http://localhost:8080/q/1", html)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/submit", p.SubmitURL)
}

func TestParseSubmitOnlyInScript(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"absolute",
			`<html><body><p>Answer below.</p><script>fetch("https://quiz.example.com/submit", {method: "POST"});</script></body></html>`,
			"https://quiz.example.com/submit",
		},
		{
			"relative",
			`<html><body><p>Answer below.</p><script>const endpoint = '/api/submit?quiz=3';</script></body></html>`,
			"http://localhost:8080/api/submit?quiz=3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse("http://localhost:8080/q/1", tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.SubmitURL)
			assert.Equal(t, "Answer below.", p.Text)
		})
	}
}

func TestParseNoSubmit(t *testing.T) {
	p, err := Parse("http://localhost/q", `<html><body>What is 2+2?</body></html>`)
	require.NoError(t, err)
	assert.Empty(t, p.SubmitURL)
	assert.Empty(t, p.Attachments)
	assert.Equal(t, "What is 2+2?", p.Text)
}

func TestParseInvalidURL(t *testing.T) {
	_, err := Parse("://bad", "<html></html>")
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		url  string
		kind domain.AttachmentKind
		ok   bool
	}{
		{"http://x/a.PDF", domain.AttachmentPDF, true},
		{"http://x/a.csv?download=1", domain.AttachmentCSV, true},
		{"http://x/data.json", domain.AttachmentJSON, true},
		{"http://x/audio.opus", domain.AttachmentOther, true},
		{"http://x/page", "", false},
		{"http://x/submit", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			kind, ok := KindOf(tt.url)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}
