package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"referral-triage-go/internal/config"
	"referral-triage-go/internal/model"
	"referral-triage-go/internal/retry"
)

// GmailMailbox implements Mailbox using the Gmail API.
type GmailMailbox struct {
	service   *gmail.Service
	userEmail string

	mu       sync.Mutex
	labelIDs map[string]string
}

// NewGmailMailbox creates a Gmail API backed mailbox.
func NewGmailMailbox(cfg *config.MailboxConfig) (*GmailMailbox, error) {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailModifyScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailMailbox{
		service:   service,
		userEmail: cfg.UserEmail,
		labelIDs:  make(map[string]string),
	}, nil
}

// ListNewMessages returns the IDs of messages received since the
// checkpoint. API failures (network, auth, rate limit) are transient.
func (m *GmailMailbox) ListNewMessages(ctx context.Context, since time.Time, max int) ([]string, error) {
	query := fmt.Sprintf("after:%d", since.Unix())

	call := m.service.Users.Messages.List(m.userEmail).Q(query).Context(ctx)
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	response, err := call.Do()
	if err != nil {
		return nil, retry.Transientf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(response.Messages))
	for _, msg := range response.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// FetchMessage fetches and parses one message into an immutable snapshot.
func (m *GmailMailbox) FetchMessage(ctx context.Context, messageID string) (*model.InboundMessage, error) {
	msg, err := m.service.Users.Messages.Get(m.userEmail, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, retry.Transientf("failed to get message %s: %w", messageID, err)
	}

	inbound := &model.InboundMessage{
		MessageID:  messageID,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}

	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			inbound.Subject = header.Value
		case "From":
			inbound.From = header.Value
		}
	}

	if err := m.parseBody(msg.Payload, inbound); err != nil {
		return nil, retry.Permanentf("failed to parse message %s: %w", messageID, err)
	}

	return inbound, nil
}

// parseBody recursively walks message parts, collecting body text and
// the attachment manifest.
func (m *GmailMailbox) parseBody(part *gmail.MessagePart, inbound *model.InboundMessage) error {
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		inbound.Attachments = append(inbound.Attachments, model.AttachmentRef{
			Ref:         part.Body.AttachmentId,
			Filename:    part.Filename,
			ContentType: part.MimeType,
			Size:        part.Body.Size,
		})
		return nil
	}

	if part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return fmt.Errorf("failed to decode body data: %w", err)
		}

		switch part.MimeType {
		case "text/plain":
			inbound.Body += string(data)
		case "text/html":
			inbound.HTMLBody += string(data)
		}
	}

	for _, subPart := range part.Parts {
		if err := m.parseBody(subPart, inbound); err != nil {
			return err
		}
	}

	return nil
}

// FetchAttachment downloads one attachment's bytes by reference.
func (m *GmailMailbox) FetchAttachment(ctx context.Context, messageID string, ref model.AttachmentRef) (*model.AttachmentBlob, error) {
	body, err := m.service.Users.Messages.Attachments.Get(m.userEmail, messageID, ref.Ref).Context(ctx).Do()
	if err != nil {
		return nil, retry.Transientf("failed to get attachment %s of message %s: %w", ref.Filename, messageID, err)
	}

	data, err := base64.URLEncoding.DecodeString(body.Data)
	if err != nil {
		return nil, retry.Permanentf("failed to decode attachment %s: %w", ref.Filename, err)
	}

	return &model.AttachmentBlob{
		MessageID:   messageID,
		Filename:    ref.Filename,
		ContentType: ref.ContentType,
		Data:        data,
	}, nil
}

// MarkRead removes the UNREAD label from the message.
func (m *GmailMailbox) MarkRead(ctx context.Context, messageID string) error {
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{"UNREAD"}}
	if _, err := m.service.Users.Messages.Modify(m.userEmail, messageID, req).Context(ctx).Do(); err != nil {
		return retry.Transientf("failed to mark message %s read: %w", messageID, err)
	}
	return nil
}

// ApplyLabel applies a named label, creating it on first use.
func (m *GmailMailbox) ApplyLabel(ctx context.Context, messageID, label string) error {
	labelID, err := m.labelID(ctx, label)
	if err != nil {
		return err
	}

	req := &gmail.ModifyMessageRequest{AddLabelIds: []string{labelID}}
	if _, err := m.service.Users.Messages.Modify(m.userEmail, messageID, req).Context(ctx).Do(); err != nil {
		return retry.Transientf("failed to apply label %s to message %s: %w", label, messageID, err)
	}
	return nil
}

// labelID resolves a label name to its ID, creating the label when it
// does not exist yet. Resolved IDs are cached for the process lifetime.
func (m *GmailMailbox) labelID(ctx context.Context, label string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.labelIDs[label]; ok {
		return id, nil
	}

	list, err := m.service.Users.Labels.List(m.userEmail).Context(ctx).Do()
	if err != nil {
		return "", retry.Transientf("failed to list labels: %w", err)
	}
	for _, l := range list.Labels {
		if l.Name == label {
			m.labelIDs[label] = l.Id
			return l.Id, nil
		}
	}

	created, err := m.service.Users.Labels.Create(m.userEmail, &gmail.Label{Name: label}).Context(ctx).Do()
	if err != nil {
		return "", retry.Transientf("failed to create label %s: %w", label, err)
	}
	m.labelIDs[label] = created.Id
	return created.Id, nil
}

// Close closes the Gmail mailbox.
func (m *GmailMailbox) Close() error {
	// Gmail API service doesn't need explicit closing
	return nil
}
