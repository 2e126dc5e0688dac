package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/service-interactor/internal/helpers"
	"google.golang.org/api/gmail/v1"
)

type attachmentView struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
}

type messageView struct {
	ID          string           `json:"id"`
	ThreadID    string           `json:"thread_id"`
	Subject     string           `json:"subject"`
	FromName    string           `json:"from_name"`
	FromEmail   string           `json:"from_email"`
	Snippet     string           `json:"snippet"`
	Labels      []string         `json:"labels"`
	Body        string           `json:"body"`
	Attachments []attachmentView `json:"attachments"`
}

func loadMessage(w http.ResponseWriter, r *http.Request) (*helpers.GmailMessage, bool) {
	a, ok := active(w, r)
	if !ok {
		return nil, false
	}
	svc, err := helpers.Gmail(r.Context(), a)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	m, err := helpers.LoadMessage(r.Context(), svc, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return m, true
}

// GmailMessageHandler shows message {id} with its text body and the
// attachments that could be fetched.
func GmailMessageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := loadMessage(w, r)
		if !ok {
			return
		}
		body, _ := m.Body(true)
		atts := m.Attachments(r.Context())
		views := make([]attachmentView, 0, len(atts))
		for _, a := range atts {
			views = append(views, attachmentView{Name: a.Name, MimeType: a.MimeType, Size: a.Size})
		}
		writeJSON(w, http.StatusOK, messageView{
			ID:          m.ID(),
			ThreadID:    m.ThreadID(),
			Subject:     m.Subject(),
			FromName:    m.FromName(),
			FromEmail:   m.FromEmail(),
			Snippet:     m.Snippet(),
			Labels:      m.LabelIDs(),
			Body:        body,
			Attachments: views,
		})
	}
}

// GmailReplyHandler answers message {id} in its thread. Body: {"body": "..."}.
func GmailReplyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Body string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Body == "" {
			badRequest(w, "body is required")
			return
		}
		m, ok := loadMessage(w, r)
		if !ok {
			return
		}
		sent, err := m.Reply(r.Context(), in.Body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": sent.Id, "thread_id": sent.ThreadId})
	}
}

// GmailLabelsHandler changes the labels of message {id}.
func GmailLabelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Add             []string `json:"add"`
			Remove          []string `json:"remove"`
			RemoveFromInbox bool     `json:"remove_from_inbox"`
			MarkAsRead      bool     `json:"mark_as_read"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			badRequest(w, "invalid label change")
			return
		}
		m, ok := loadMessage(w, r)
		if !ok {
			return
		}
		res, err := m.ModifyLabels(r.Context(), helpers.LabelChange{
			Add:             in.Add,
			Remove:          in.Remove,
			RemoveFromInbox: in.RemoveFromInbox,
			MarkAsRead:      in.MarkAsRead,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": res.Id, "labels": labelsOf(res)})
	}
}

func labelsOf(m *gmail.Message) []string {
	if m.LabelIds == nil {
		return []string{}
	}
	return m.LabelIds
}
