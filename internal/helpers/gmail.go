// Package helpers wraps vendor resources (Gmail messages, YouTube
// playlists, Drive takeout archives) that sit outside the generic
// provider capability surface.
package helpers

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/metrics"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/provider/google"
	"github.com/pysugar/service-interactor/internal/util"
	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
)

const me = "me"

// ErrNoTextBody is returned when a message has no text/plain part.
var ErrNoTextBody = errors.New("message has no text/plain body")

// Gmail returns the Gmail client of a Google adapter.
func Gmail(ctx context.Context, a provider.Adapter) (*gmail.Service, error) {
	g, ok := a.(*google.Adapter)
	if !ok {
		return nil, provider.NotSupported(a.Kind(), "mail")
	}
	return g.Gmail(ctx)
}

// Attachment is a decoded message attachment.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
	Size     int    `json:"size"`
}

// GmailMessage is one fetched Gmail message. Derived values are computed
// on first use and kept.
type GmailMessage struct {
	svc *gmail.Service
	msg *gmail.Message

	headers      map[string]string
	accountEmail string
	attachments  []Attachment
	fetchedFiles bool
}

// LoadMessage fetches message id in full format.
func LoadMessage(ctx context.Context, svc *gmail.Service, id string) (*GmailMessage, error) {
	msg, err := svc.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
	metrics.ObserveVendor("google", "gmail_get", err)
	if err != nil {
		return nil, err
	}
	return NewMessage(svc, msg), nil
}

// NewMessage wraps an already fetched message.
func NewMessage(svc *gmail.Service, msg *gmail.Message) *GmailMessage {
	return &GmailMessage{svc: svc, msg: msg}
}

func (m *GmailMessage) ID() string { return m.msg.Id }

func (m *GmailMessage) ThreadID() string { return m.msg.ThreadId }

func (m *GmailMessage) Snippet() string { return m.msg.Snippet }

func (m *GmailMessage) LabelIDs() []string { return m.msg.LabelIds }

// Headers maps header names to values. Repeated headers keep the last value.
func (m *GmailMessage) Headers() map[string]string {
	if m.headers == nil {
		m.headers = make(map[string]string)
		if m.msg.Payload != nil {
			for _, h := range m.msg.Payload.Headers {
				m.headers[h.Name] = h.Value
			}
		}
	}
	return m.headers
}

// Header looks a header up case-insensitively.
func (m *GmailMessage) Header(name string) string {
	h := m.Headers()
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func (m *GmailMessage) Subject() string { return m.Header("Subject") }

// FromName is the display name of the sender.
func (m *GmailMessage) FromName() string {
	from := m.Header("From")
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Name
	}
	name, _, _ := strings.Cut(from, "<")
	return strings.TrimSpace(name)
}

// FromEmail is the sender's address.
func (m *GmailMessage) FromEmail() string {
	from := m.Header("From")
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	start := strings.Index(from, "<")
	end := strings.LastIndex(from, ">")
	if start >= 0 && end > start {
		return from[start+1 : end]
	}
	return strings.TrimSpace(from)
}

// Body returns the decoded text/plain body. When the body is missing or
// cannot be decoded and fallbackToSnippet is set, a preview of the
// snippet is returned instead.
func (m *GmailMessage) Body(fallbackToSnippet bool) (string, error) {
	data := textPlainData(m.msg.Payload)
	if data == "" {
		if fallbackToSnippet {
			return util.Preview(m.msg.Snippet, util.DefaultPreviewLen), nil
		}
		return "", ErrNoTextBody
	}
	decoded, err := decodeBase64(data)
	if err != nil {
		if fallbackToSnippet {
			return util.Preview(m.msg.Snippet, util.DefaultPreviewLen), nil
		}
		return "", fmt.Errorf("decode body of %s: %w", m.msg.Id, err)
	}
	return strings.TrimSpace(string(decoded)), nil
}

// textPlainData finds the first text/plain body, searching one level of
// nested multipart parts.
func textPlainData(p *gmail.MessagePart) string {
	if p == nil {
		return ""
	}
	if p.MimeType == "text/plain" && p.Body != nil {
		return p.Body.Data
	}
	for _, part := range p.Parts {
		if len(part.Parts) > 0 {
			for _, sub := range part.Parts {
				if sub.MimeType == "text/plain" && sub.Body != nil && sub.Body.Data != "" {
					return sub.Body.Data
				}
			}
			continue
		}
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			return part.Body.Data
		}
	}
	return ""
}

// Attachments returns the message's file parts. A part that cannot be
// fetched or decoded is logged and skipped.
func (m *GmailMessage) Attachments(ctx context.Context) []Attachment {
	if m.fetchedFiles {
		return m.attachments
	}
	log := logging.From(ctx).With(zap.String("message_id", m.msg.Id))
	skipped := metrics.Attachments.WithLabelValues("google", metrics.OutcomeSkipped)
	returned := metrics.Attachments.WithLabelValues("google", metrics.OutcomeOK)
	for _, part := range fileParts(m.msg.Payload) {
		data := ""
		if part.Body != nil {
			data = part.Body.Data
		}
		if data == "" {
			if part.Body == nil || part.Body.AttachmentId == "" {
				log.Warn("attachment has neither data nor id", zap.String("filename", part.Filename))
				skipped.Inc()
				continue
			}
			body, err := m.svc.Users.Messages.Attachments.Get(me, m.msg.Id, part.Body.AttachmentId).Context(ctx).Do()
			metrics.ObserveVendor("google", "gmail_attachment", err)
			if err != nil {
				log.Warn("failed to download attachment", zap.String("filename", part.Filename), zap.Error(err))
				skipped.Inc()
				continue
			}
			data = body.Data
		}
		decoded, err := decodeBase64(data)
		if err != nil {
			log.Warn("failed to decode attachment", zap.String("filename", part.Filename), zap.Error(err))
			skipped.Inc()
			continue
		}
		m.attachments = append(m.attachments, Attachment{
			Name:     part.Filename,
			MimeType: part.MimeType,
			Data:     decoded,
			Size:     len(decoded),
		})
		returned.Inc()
	}
	m.fetchedFiles = true
	return m.attachments
}

func fileParts(p *gmail.MessagePart) []*gmail.MessagePart {
	if p == nil {
		return nil
	}
	var out []*gmail.MessagePart
	for _, part := range p.Parts {
		if part.Filename != "" {
			out = append(out, part)
			continue
		}
		out = append(out, fileParts(part)...)
	}
	return out
}

// decodeBase64 accepts the URL-safe alphabet Gmail uses, padded or not,
// and the standard alphabet.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// AccountEmail is the address of the mailbox owner.
func (m *GmailMessage) AccountEmail(ctx context.Context) (string, error) {
	if m.accountEmail == "" {
		email, err := ProfileEmail(ctx, m.svc)
		if err != nil {
			return "", err
		}
		m.accountEmail = email
	}
	return m.accountEmail, nil
}

// ProfileEmail returns the address of the authenticated mailbox.
func ProfileEmail(ctx context.Context, svc *gmail.Service) (string, error) {
	profile, err := svc.Users.GetProfile(me).Context(ctx).Do()
	metrics.ObserveVendor("google", "gmail_profile", err)
	if err != nil {
		return "", err
	}
	return profile.EmailAddress, nil
}

// LabelChange describes a label update. RemoveFromInbox and MarkAsRead add
// INBOX and UNREAD to the removed labels.
type LabelChange struct {
	Add             []string
	Remove          []string
	RemoveFromInbox bool
	MarkAsRead      bool
}

// Request builds the Gmail modify request for c.
func (c LabelChange) Request() *gmail.ModifyMessageRequest {
	remove := append([]string(nil), c.Remove...)
	if c.MarkAsRead {
		remove = append(remove, "UNREAD")
	}
	if c.RemoveFromInbox {
		remove = append(remove, "INBOX")
	}
	return &gmail.ModifyMessageRequest{
		AddLabelIds:    append([]string(nil), c.Add...),
		RemoveLabelIds: remove,
	}
}

// ModifyLabels applies change to the message.
func (m *GmailMessage) ModifyLabels(ctx context.Context, change LabelChange) (*gmail.Message, error) {
	res, err := m.svc.Users.Messages.Modify(me, m.msg.Id, change.Request()).Context(ctx).Do()
	metrics.ObserveVendor("google", "gmail_modify", err)
	return res, err
}

// Labels lists the mailbox labels.
func Labels(ctx context.Context, svc *gmail.Service) ([]*gmail.Label, error) {
	res, err := svc.Users.Labels.List(me).Context(ctx).Do()
	metrics.ObserveVendor("google", "gmail_labels", err)
	if err != nil {
		return nil, err
	}
	return res.Labels, nil
}

// OutgoingMail is a plain-text message to send.
type OutgoingMail struct {
	To       string
	From     string
	Subject  string
	Body     string
	ThreadID string
	// InReplyTo is the Message-ID being answered, if any.
	InReplyTo string
}

// Raw renders the message as RFC 2822 text.
func (o OutgoingMail) Raw() []byte {
	var buf bytes.Buffer
	writeHeader := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
		}
	}
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", `text/plain; charset="utf-8"`)
	writeHeader("To", o.To)
	writeHeader("From", o.From)
	writeHeader("Subject", o.Subject)
	writeHeader("In-Reply-To", o.InReplyTo)
	writeHeader("References", o.InReplyTo)
	buf.WriteString("\r\n")
	buf.WriteString(o.Body)
	return buf.Bytes()
}

// Send delivers out from the authenticated mailbox.
func Send(ctx context.Context, svc *gmail.Service, out OutgoingMail) (*gmail.Message, error) {
	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(out.Raw()),
		ThreadId: out.ThreadID,
	}
	res, err := svc.Users.Messages.Send(me, msg).Context(ctx).Do()
	metrics.ObserveVendor("google", "gmail_send", err)
	return res, err
}

// Reply answers the sender in the message's thread.
func (m *GmailMessage) Reply(ctx context.Context, body string) (*gmail.Message, error) {
	from, err := m.AccountEmail(ctx)
	if err != nil {
		return nil, err
	}
	return Send(ctx, m.svc, OutgoingMail{
		To:        m.FromEmail(),
		From:      from,
		Subject:   "Re: " + m.Subject(),
		Body:      body,
		ThreadID:  m.msg.ThreadId,
		InReplyTo: m.Header("Message-ID"),
	})
}
