package tilena

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"ayudapo/internal/devops"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const noSubject = "Sin asunto"

// Mail is one fetched notification.
type Mail struct {
	UID     uint32
	From    string
	Subject string
	Body    string
}

// Mailbox is the part of an IMAP inbox the sync needs.
type Mailbox interface {
	// Unseen returns the UIDs of unread messages whose sender contains from.
	Unseen(ctx context.Context, from string) ([]uint32, error)
	// Fetch reads a message without marking it seen.
	Fetch(ctx context.Context, uid uint32) (Mail, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}

type IMAPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Folder   string
	Timeout  time.Duration
}

// IMAPMailbox is a Mailbox over an IMAP TLS connection.
type IMAPMailbox struct {
	c *client.Client
}

// DialIMAP connects over TLS, logs in and selects the folder (INBOX by default).
func DialIMAP(cfg IMAPConfig) (*IMAPMailbox, error) {
	if strings.TrimSpace(cfg.User) == "" || cfg.Password == "" {
		return nil, fmt.Errorf("mail user and password are required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 993
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: cfg.Timeout}, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	c.Timeout = cfg.Timeout
	if err := c.Login(cfg.User, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(cfg.Folder, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("select %s: %w", cfg.Folder, err)
	}
	return &IMAPMailbox{c: c}, nil
}

func (m *IMAPMailbox) Unseen(ctx context.Context, from string) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	if from != "" {
		criteria.Header.Add("From", from)
	}
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	return uids, nil
}

func (m *IMAPMailbox) Fetch(ctx context.Context, uid uint32) (Mail, error) {
	if err := ctx.Err(); err != nil {
		return Mail{}, err
	}
	seq := new(imap.SeqSet)
	seq.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seq, []imap.FetchItem{section.FetchItem()}, messages)
	}()
	var msg *imap.Message
	for got := range messages {
		msg = got
	}
	if err := <-done; err != nil {
		return Mail{}, fmt.Errorf("imap fetch %d: %w", uid, err)
	}
	if msg == nil {
		return Mail{}, fmt.Errorf("imap fetch %d: message not found", uid)
	}
	body := msg.GetBody(section)
	if body == nil {
		return Mail{}, fmt.Errorf("imap fetch %d: empty body", uid)
	}
	parsed, err := ParseMail(body)
	if err != nil {
		return Mail{}, fmt.Errorf("parse message %d: %w", uid, err)
	}
	parsed.UID = uid
	return parsed, nil
}

func (m *IMAPMailbox) MarkSeen(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	seq := new(imap.SeqSet)
	seq.AddNum(uid)
	op := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.c.UidStore(seq, op, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("imap mark seen %d: %w", uid, err)
	}
	return nil
}

func (m *IMAPMailbox) Close() error {
	return m.c.Logout()
}

// ParseMail reads an RFC 822 message: decoded subject, sender and the body text.
// text/plain parts win over text/html; attachments are skipped; HTML is converted to text.
func ParseMail(r io.Reader) (Mail, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return Mail{}, err
	}
	out := Mail{Subject: noSubject}
	if s, err := mr.Header.Subject(); err == nil && strings.TrimSpace(s) != "" {
		out.Subject = s
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		out.From = from[0].Address
	}

	var plain, htmlBody string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if plain == "" && htmlBody == "" {
				return Mail{}, err
			}
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		// RFC 2045: no Content-Type means text/plain.
		ct := "text/plain"
		if h.Get("Content-Type") != "" {
			ct, _, _ = h.ContentType()
		}
		if ct != "text/plain" && ct != "text/html" {
			continue
		}
		data, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		text := strings.ToValidUTF8(string(data), "")
		if ct == "text/plain" && plain == "" {
			plain = text
		} else if ct == "text/html" && htmlBody == "" {
			htmlBody = text
		}
	}
	switch {
	case strings.TrimSpace(plain) != "":
		out.Body = strings.TrimSpace(plain)
	case htmlBody != "":
		out.Body = devops.HTMLToText(htmlBody)
	}
	return out, nil
}
