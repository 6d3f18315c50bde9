package domain

// QuizRequest is the body accepted by POST /quiz
type QuizRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// AttachmentKind classifies a file linked from a quiz page
type AttachmentKind string

const (
	AttachmentPDF   AttachmentKind = "pdf"
	AttachmentCSV   AttachmentKind = "csv"
	AttachmentJSON  AttachmentKind = "json"
	AttachmentText  AttachmentKind = "text"
	AttachmentImage AttachmentKind = "image"
	AttachmentOther AttachmentKind = "other"
)

// Attachment is a downloadable resource referenced by a quiz page
type Attachment struct {
	URL  string         `json:"url"`
	Kind AttachmentKind `json:"kind"`
}

// QuizPage is a rendered and parsed quiz page
type QuizPage struct {
	URL         string       `json:"url"`
	Text        string       `json:"text"`
	HTML        string       `json:"-"`
	SubmitURL   string       `json:"submit_url"`
	Attachments []Attachment `json:"attachments"`
}

// Submission is the payload posted to a quiz submit endpoint
type Submission struct {
	Email  string      `json:"email"`
	Secret string      `json:"secret"`
	URL    string      `json:"url"`
	Answer interface{} `json:"answer"`
}

// SubmitResult is the quiz server's verdict on a submission
type SubmitResult struct {
	Correct bool   `json:"correct"`
	URL     string `json:"url,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
