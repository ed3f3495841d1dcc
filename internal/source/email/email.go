// Package email polls an IMAP mailbox for unseen messages and feeds them
// into the triage pipeline.
package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/notification"
	"github.com/linnemanlabs/sift/internal/source"
)

// Adapter fetches unseen mail over IMAP on a fixed schedule. Fetching a
// message marks it \Seen on the server; the store's dedup key covers the
// case where the flag update is lost.
type Adapter struct {
	addr     string
	username string
	password string
	mailbox  string
	schedule source.Schedule
	ingestor source.Ingestor
	logger   log.Logger
}

// New creates an email adapter. addr is host:port of the IMAPS endpoint.
func New(addr, username, password, mailbox string, schedule source.Schedule, ingestor source.Ingestor, logger log.Logger) *Adapter {
	if logger == nil {
		logger = log.Nop()
	}
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &Adapter{
		addr:     addr,
		username: username,
		password: password,
		mailbox:  mailbox,
		schedule: schedule,
		ingestor: ingestor,
		logger:   logger,
	}
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return "email" }

// Run implements source.Adapter.
func (a *Adapter) Run(ctx context.Context) error {
	return source.RunEvery(ctx, a.schedule, a.logger, a.Name(), a.poll)
}

// poll connects, fetches every unseen message in the mailbox, and ingests
// each one. A fresh connection per pass keeps the adapter stateless across
// server restarts.
func (a *Adapter) poll(ctx context.Context) error {
	client, err := imapclient.DialTLS(a.addr, nil)
	if err != nil {
		return fmt.Errorf("connecting to IMAP %s: %w", a.addr, err)
	}
	defer func() { _ = client.Logout().Wait() }()

	if err := client.Login(a.username, a.password).Wait(); err != nil {
		return fmt.Errorf("authenticating %s: %w", a.username, err)
	}

	if _, err := client.Select(a.mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", a.mailbox, err)
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return fmt.Errorf("searching unseen messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	bodySection := &imap.FetchItemBodySection{}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	ingested := 0
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			a.logger.Warn(ctx, "collecting message failed", "error", err)
			continue
		}

		rec := a.recordFromMessage(buf, bodySection)
		if _, err := a.ingestor.Ingest(ctx, rec); err != nil {
			a.logger.Error(ctx, err, "email ingest failed", "external_id", rec.ExternalID)
			continue
		}
		ingested++
	}

	if err := fetchCmd.Close(); err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}

	a.logger.Info(ctx, "email poll complete", "unseen", len(uids), "ingested", ingested)
	return nil
}

// recordFromMessage maps one fetched message onto a notification record.
func (a *Adapter) recordFromMessage(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) *notification.Record {
	rec := &notification.Record{
		Source: notification.SourceEmail,
		// Stable fallback when the message carries no Message-ID.
		ExternalID: fmt.Sprintf("%s/%d", a.mailbox, buf.UID),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var subject string
	if env := buf.Envelope; env != nil {
		if env.MessageID != "" {
			rec.ExternalID = env.MessageID
		}
		subject = env.Subject
		if !env.Date.IsZero() {
			rec.Timestamp = env.Date.UTC().Format(time.RFC3339)
		}
		if len(env.From) > 0 {
			rec.SenderName = env.From[0].Name
			rec.SenderEmail = env.From[0].Addr()
			if rec.SenderName == "" {
				rec.SenderName = rec.SenderEmail
			}
		}
	}

	body := textFromRaw(buf.FindBodySection(section))
	switch {
	case subject != "" && body != "":
		rec.BodyText = subject + "\n\n" + body
	case subject != "":
		rec.BodyText = subject
	default:
		rec.BodyText = body
	}

	return rec
}

// textFromRaw extracts the text/plain part of an RFC 2822 message,
// falling back to the raw bytes when MIME parsing fails.
func textFromRaw(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(string(raw))
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if !strings.HasPrefix(contentType, "text/plain") {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		return strings.TrimSpace(string(body))
	}
	return ""
}
