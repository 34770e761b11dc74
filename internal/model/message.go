package model

import "time"

// InboundMessage is an immutable snapshot of a fetched referral email.
// It is created once per fetch and never mutated by the pipeline.
type InboundMessage struct {
	MessageID   string          `json:"message_id"`
	From        string          `json:"from"`
	Subject     string          `json:"subject"`
	Body        string          `json:"body"`
	HTMLBody    string          `json:"html_body"`
	Attachments []AttachmentRef `json:"attachments"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// AttachmentRef identifies one attachment within its owning message.
// The provider-specific Ref is what FetchAttachment resolves.
type AttachmentRef struct {
	Ref         string `json:"ref"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// AttachmentBlob holds the raw bytes of one fetched attachment.
type AttachmentBlob struct {
	MessageID   string `json:"message_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Size returns the raw byte length of the attachment.
func (b *AttachmentBlob) Size() int64 {
	return int64(len(b.Data))
}
