// Package mailbox abstracts the external mail provider the pipeline
// reads referrals from. All operations may fail transiently and are
// wrapped for the retry layer accordingly.
package mailbox

import (
	"context"
	"fmt"
	"time"

	"referral-triage-go/internal/config"
	"referral-triage-go/internal/model"
)

// Mailbox is the set of operations the pipeline requires from the mail
// provider. Implementations are shared by all workers; they must be safe
// for concurrent use.
type Mailbox interface {
	// ListNewMessages returns provider-stable message IDs received
	// since the checkpoint, capped at max.
	ListNewMessages(ctx context.Context, since time.Time, max int) ([]string, error)
	// FetchMessage returns the full content snapshot of one message,
	// including its attachment manifest (bytes not included).
	FetchMessage(ctx context.Context, messageID string) (*model.InboundMessage, error)
	// FetchAttachment returns the raw bytes of one attachment.
	FetchAttachment(ctx context.Context, messageID string, ref model.AttachmentRef) (*model.AttachmentBlob, error)
	// MarkRead marks the message as read.
	MarkRead(ctx context.Context, messageID string) error
	// ApplyLabel applies a label/keyword to the message.
	ApplyLabel(ctx context.Context, messageID, label string) error
	Close() error
}

// New creates the mailbox implementation selected by configuration.
func New(cfg *config.MailboxConfig) (Mailbox, error) {
	if cfg.UseIMAP {
		m, err := NewIMAPMailbox(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create IMAP mailbox: %w", err)
		}
		return m, nil
	}
	m, err := NewGmailMailbox(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail mailbox: %w", err)
	}
	return m, nil
}
