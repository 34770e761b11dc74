package mailbox

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"referral-triage-go/internal/config"
	"referral-triage-go/internal/model"
	"referral-triage-go/internal/retry"
)

// IMAPMailbox implements Mailbox over a single IMAP connection. The
// underlying client is not safe for concurrent commands, so every
// operation holds the mailbox mutex.
type IMAPMailbox struct {
	mu     sync.Mutex
	client *client.Client
	folder string

	// Message-Id header -> IMAP UID, built during listing. The
	// Message-Id is the provider-stable identifier the pipeline keys
	// on; UIDs are connection-local detail.
	uids map[string]uint32

	// Attachment bytes parsed during FetchMessage, keyed by message ID
	// then attachment ref. Entries are dropped once served.
	attachments map[string]map[string][]byte
}

// NewIMAPMailbox connects and authenticates to the configured IMAP
// server.
func NewIMAPMailbox(cfg *config.MailboxConfig) (*IMAPMailbox, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(cfg.IMAPUser, cfg.IMAPPassword); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	folder := cfg.Folder
	if folder == "" {
		folder = "INBOX"
	}

	return &IMAPMailbox{
		client:      c,
		folder:      folder,
		uids:        make(map[string]uint32),
		attachments: make(map[string]map[string][]byte),
	}, nil
}

// ListNewMessages searches the folder for messages received since the
// checkpoint and returns their Message-Id headers.
func (m *IMAPMailbox) ListNewMessages(ctx context.Context, since time.Time, max int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.client.Select(m.folder, false); err != nil {
		return nil, retry.Transientf("failed to select %s: %w", m.folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, retry.Transientf("failed to search messages: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	if max > 0 && len(uids) > max {
		uids = uids[:max]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, messages)
	}()

	var ids []string
	for msg := range messages {
		if msg.Envelope == nil || msg.Envelope.MessageId == "" {
			logrus.Warnf("Skipping IMAP message with UID %d: no Message-Id", msg.Uid)
			continue
		}
		m.uids[msg.Envelope.MessageId] = msg.Uid
		ids = append(ids, msg.Envelope.MessageId)
	}

	if err := <-done; err != nil {
		return nil, retry.Transientf("failed to fetch envelopes: %w", err)
	}

	return ids, nil
}

// FetchMessage downloads and parses the full message body. Attachment
// bytes arrive in the same fetch and are cached for FetchAttachment.
func (m *IMAPMailbox) FetchMessage(ctx context.Context, messageID string) (*model.InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchMessageLocked(messageID)
}

func (m *IMAPMailbox) fetchMessageLocked(messageID string) (*model.InboundMessage, error) {
	uid, ok := m.uids[messageID]
	if !ok {
		return nil, retry.Permanentf("unknown message ID %s", messageID)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqset, items, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		return nil, retry.Transientf("failed to fetch message %s: %w", messageID, err)
	}
	if msg == nil {
		return nil, retry.Transientf("message %s not returned by server", messageID)
	}

	inbound := &model.InboundMessage{
		MessageID:  messageID,
		ReceivedAt: msg.InternalDate,
	}
	if msg.Envelope != nil {
		inbound.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			inbound.From = msg.Envelope.From[0].Address()
		}
	}

	r := msg.GetBody(section)
	if r == nil {
		return nil, retry.Transientf("failed to get body of message %s", messageID)
	}

	if err := m.parseBody(r, inbound); err != nil {
		return nil, retry.Permanentf("failed to parse message %s: %w", messageID, err)
	}

	return inbound, nil
}

// parseBody walks the MIME structure, collecting inline text and caching
// attachment bytes under generated refs.
func (m *IMAPMailbox) parseBody(r io.Reader, inbound *model.InboundMessage) error {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	cache := make(map[string][]byte)
	partIndex := 0

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			content, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("failed to read part body: %w", err)
			}
			contentType, _, _ := h.ContentType()
			switch contentType {
			case "text/plain":
				inbound.Body += string(content)
			case "text/html":
				inbound.HTMLBody += string(content)
			}
		case *mail.AttachmentHeader:
			content, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("failed to read attachment body: %w", err)
			}
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			partIndex++
			ref := fmt.Sprintf("part-%d", partIndex)
			cache[ref] = content
			inbound.Attachments = append(inbound.Attachments, model.AttachmentRef{
				Ref:         ref,
				Filename:    filename,
				ContentType: contentType,
				Size:        int64(len(content)),
			})
		}
	}

	m.attachments[inbound.MessageID] = cache
	return nil
}

// FetchAttachment serves attachment bytes from the parse cache,
// re-fetching the message if the cache was lost (e.g. after reconnect).
func (m *IMAPMailbox) FetchAttachment(ctx context.Context, messageID string, ref model.AttachmentRef) (*model.AttachmentBlob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cache, ok := m.attachments[messageID]
	if !ok {
		if _, err := m.fetchMessageLocked(messageID); err != nil {
			return nil, err
		}
		cache = m.attachments[messageID]
	}

	data, ok := cache[ref.Ref]
	if !ok {
		return nil, retry.Permanentf("attachment %s not found in message %s", ref.Ref, messageID)
	}

	return &model.AttachmentBlob{
		MessageID:   messageID,
		Filename:    ref.Filename,
		ContentType: ref.ContentType,
		Data:        data,
	}, nil
}

// MarkRead sets the \Seen flag. The attachment cache for the message is
// released here: a read message is done with extraction.
func (m *IMAPMailbox) MarkRead(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	uid, ok := m.uids[messageID]
	if !ok {
		return retry.Permanentf("unknown message ID %s", messageID)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.client.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return retry.Transientf("failed to mark message %s read: %w", messageID, err)
	}

	delete(m.attachments, messageID)
	return nil
}

// ApplyLabel stores the label as an IMAP keyword flag.
func (m *IMAPMailbox) ApplyLabel(ctx context.Context, messageID, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	uid, ok := m.uids[messageID]
	if !ok {
		return retry.Permanentf("unknown message ID %s", messageID)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.client.UidStore(seqset, item, []interface{}{label}, nil); err != nil {
		return retry.Transientf("failed to apply label %s to message %s: %w", label, messageID, err)
	}
	return nil
}

// Close logs out from the IMAP server.
func (m *IMAPMailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client.Logout()
}
