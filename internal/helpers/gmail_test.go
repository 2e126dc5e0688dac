package helpers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pysugar/service-interactor/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func gmailService(t *testing.T, handler http.Handler) *gmail.Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return svc
}

func sampleMessage() *gmail.Message {
	return &gmail.Message{
		Id:       "m1",
		ThreadId: "t1",
		Snippet:  "Hi there, the report is attached",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Quarterly report"},
				{Name: "From", Value: "Jane Doe <jane@example.com>"},
				{Name: "Message-ID", Value: "<abc@mail.example.com>"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("  Hello Sam  \n")}},
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>Hello Sam</p>")}},
					},
				},
				{Filename: "inline.txt", MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("inline data")}},
				{Filename: "broken.bin", MimeType: "application/octet-stream", Body: &gmail.MessagePartBody{Data: "%%%not-base64%%%"}},
				{Filename: "remote.pdf", MimeType: "application/pdf", Body: &gmail.MessagePartBody{AttachmentId: "att-ok"}},
				{Filename: "gone.pdf", MimeType: "application/pdf", Body: &gmail.MessagePartBody{AttachmentId: "att-missing"}},
			},
		},
	}
}

func TestGmailMessage_Headers(t *testing.T) {
	m := NewMessage(nil, sampleMessage())
	assert.Equal(t, "Quarterly report", m.Subject())
	assert.Equal(t, "Jane Doe", m.FromName())
	assert.Equal(t, "jane@example.com", m.FromEmail())
	assert.Equal(t, "<abc@mail.example.com>", m.Header("message-id"))
	assert.Equal(t, "t1", m.ThreadID())
}

func TestGmailMessage_FromFallback(t *testing.T) {
	msg := &gmail.Message{Payload: &gmail.MessagePart{Headers: []*gmail.MessagePartHeader{
		{Name: "From", Value: "Jane, Team Lead <jane@example.com>"},
	}}}
	m := NewMessage(nil, msg)
	assert.Equal(t, "Jane, Team Lead", m.FromName())
	assert.Equal(t, "jane@example.com", m.FromEmail())
}

func TestGmailMessage_Body(t *testing.T) {
	m := NewMessage(nil, sampleMessage())
	body, err := m.Body(false)
	require.NoError(t, err)
	assert.Equal(t, "Hello Sam", body)
}

func TestGmailMessage_BodyFallsBackToSnippet(t *testing.T) {
	msg := &gmail.Message{
		Id:      "m2",
		Snippet: strings.Repeat("x", 300),
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "***"}},
			},
		},
	}
	m := NewMessage(nil, msg)

	body, err := m.Body(true)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 200)+"...", body)

	_, err = m.Body(false)
	assert.Error(t, err)
}

func TestGmailMessage_NoTextBody(t *testing.T) {
	m := NewMessage(nil, &gmail.Message{Payload: &gmail.MessagePart{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<b>x</b>")}}})
	_, err := m.Body(false)
	assert.ErrorIs(t, err, ErrNoTextBody)
}

func TestGmailMessage_AttachmentsSkipFailedParts(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages/m1/attachments/att-ok", func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, map[string]any{"data": b64("%PDF-1.4"), "size": 8})
	})
	mux.HandleFunc("GET /gmail/v1/users/me/messages/m1/attachments/att-missing", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
	})
	m := NewMessage(gmailService(t, mux), sampleMessage())
	skipped := metrics.Attachments.WithLabelValues("google", metrics.OutcomeSkipped)
	before := testutil.ToFloat64(skipped)

	atts := m.Attachments(context.Background())
	require.Len(t, atts, 2)
	assert.Equal(t, before+2, testutil.ToFloat64(skipped), "broken.bin and gone.pdf")
	assert.Equal(t, "inline.txt", atts[0].Name)
	assert.Equal(t, "inline data", string(atts[0].Data))
	assert.Equal(t, "remote.pdf", atts[1].Name)
	assert.Equal(t, "%PDF-1.4", string(atts[1].Data))
	assert.Equal(t, 8, atts[1].Size)

	again := m.Attachments(context.Background())
	assert.Len(t, again, 2)
	assert.Equal(t, 2, calls, "attachments are fetched once")
}

func TestLoadMessageAndReply(t *testing.T) {
	var sent gmail.Message
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "full", r.URL.Query().Get("format"))
		writeJSON(w, sampleMessage())
	})
	mux.HandleFunc("GET /gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"emailAddress": "sam@gmail.com"})
	})
	mux.HandleFunc("POST /gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		writeJSON(w, map[string]any{"id": "reply-1", "threadId": sent.ThreadId})
	})
	svc := gmailService(t, mux)
	ctx := context.Background()

	m, err := LoadMessage(ctx, svc, "m1")
	require.NoError(t, err)
	res, err := m.Reply(ctx, "Thanks!")
	require.NoError(t, err)
	assert.Equal(t, "reply-1", res.Id)

	assert.Equal(t, "t1", sent.ThreadId)
	raw, err := base64.URLEncoding.DecodeString(sent.Raw)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "To: jane@example.com\r\n")
	assert.Contains(t, text, "From: sam@gmail.com\r\n")
	assert.Contains(t, text, "Subject: Re: Quarterly report\r\n")
	assert.Contains(t, text, "In-Reply-To: <abc@mail.example.com>\r\n")
	assert.True(t, strings.HasSuffix(text, "\r\n\r\nThanks!"))
}

func TestModifyLabels(t *testing.T) {
	var got gmail.ModifyMessageRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /gmail/v1/users/me/messages/m1/modify", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, map[string]any{"id": "m1"})
	})
	m := NewMessage(gmailService(t, mux), sampleMessage())

	_, err := m.ModifyLabels(context.Background(), LabelChange{
		Add:             []string{"Label_7"},
		RemoveFromInbox: true,
		MarkAsRead:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Label_7"}, got.AddLabelIds)
	assert.Equal(t, []string{"UNREAD", "INBOX"}, got.RemoveLabelIds)
}

func TestLabelChange_DoesNotAliasInput(t *testing.T) {
	remove := make([]string, 1, 4)
	remove[0] = "Label_1"
	req := LabelChange{Remove: remove, RemoveFromInbox: true}.Request()
	assert.Equal(t, []string{"Label_1", "INBOX"}, req.RemoveLabelIds)
	assert.Equal(t, "Label_1", remove[0])
	assert.Len(t, remove, 1)
}
