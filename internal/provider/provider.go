// Package provider defines the vendor-neutral capability surface implemented
// by each OAuth provider adapter.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"
)

// Kind is the closed set of supported providers.
type Kind string

const (
	KindGoogle    Kind = "google"
	KindMicrosoft Kind = "microsoft"
	KindReddit    Kind = "reddit"
	KindFacebook  Kind = "facebook"
)

// Kinds lists every supported provider.
func Kinds() []Kind {
	return []Kind{KindGoogle, KindMicrosoft, KindReddit, KindFacebook}
}

var (
	// ErrNotSupported is returned by capabilities a provider does not implement.
	ErrNotSupported = errors.New("capability not supported")
	// ErrUnknownProvider is returned for provider names outside Kinds.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ParseKind maps a stored provider id onto a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindGoogle, KindMicrosoft, KindReddit, KindFacebook:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// Name is the human readable provider name.
func (k Kind) Name() string {
	switch k {
	case KindGoogle:
		return "Google"
	case KindMicrosoft:
		return "Microsoft"
	case KindReddit:
		return "Reddit"
	case KindFacebook:
		return "Facebook"
	}
	return string(k)
}

// NotSupported builds the error returned for an unimplemented capability.
func NotSupported(k Kind, capability string) error {
	return fmt.Errorf("%w: %s has no %s", ErrNotSupported, k.Name(), capability)
}

// Calendar is a vendor-neutral calendar.
type Calendar struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Link    string         `json:"link,omitempty"`
	Primary bool           `json:"primary"`
	CanEdit bool           `json:"can_edit"`
	Raw     map[string]any `json:"raw,omitempty"`
}

// CalendarEvent is a vendor-neutral calendar event.
type CalendarEvent struct {
	ID          string         `json:"id"`
	CalendarID  string         `json:"calendar_id"`
	Name        string         `json:"name"`
	Link        string         `json:"link"`
	Location    string         `json:"location,omitempty"`
	Description string         `json:"description,omitempty"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// EventInput describes an event to create.
type EventInput struct {
	Summary     string    `json:"summary"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// EventQuery narrows an event listing. Zero fields are not sent.
type EventQuery struct {
	TimeMin      time.Time
	TimeMax      time.Time
	MaxResults   int64
	SingleEvents bool
	OrderBy      string
}

// File is a vendor-neutral stored file.
type File struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	MimeType string         `json:"mime_type,omitempty"`
	Link     string         `json:"link,omitempty"`
	Size     int64          `json:"size,omitempty"`
	Created  time.Time      `json:"created,omitempty"`
	Raw      map[string]any `json:"raw,omitempty"`
}

// FileQuery narrows a file listing.
type FileQuery struct {
	// Query is passed through in the vendor's search syntax.
	Query    string
	OrderBy  string
	PageSize int64
}

// Adapter is implemented by every provider. Capabilities a provider lacks
// return ErrNotSupported; callers are expected to check the Has*Access
// predicates first.
type Adapter interface {
	Kind() Kind
	Email() string
	PrimaryEmailDomains() []string

	IsEnabled(ctx context.Context) bool
	HasCalendarAccess(ctx context.Context) bool
	HasFileAccess(ctx context.Context) bool
	HasYouTubeAccess(ctx context.Context) bool
	AccessGrantedAt(ctx context.Context, accessType string) (time.Time, bool)
	RequestScopes(ctx context.Context, accessType string) ([]string, error)

	Calendars(ctx context.Context) iter.Seq2[Calendar, error]
	CalendarEvents(ctx context.Context, calendarID string, q EventQuery) iter.Seq2[CalendarEvent, error]
	CreateCalendarEvent(ctx context.Context, calendarID string, in EventInput) (CalendarEvent, error)
	DeleteCalendarEvent(ctx context.Context, calendarID, eventID string) error

	Files(ctx context.Context, q FileQuery) iter.Seq2[File, error]
	FileDetails(ctx context.Context, fileID string) (File, error)
	DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error)
	ExportFile(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error)
}

// DisplayName renders an adapter as "Provider (user)" where user is the
// local part for the provider's own mail domains and the full address
// otherwise.
func DisplayName(a Adapter) string {
	name := a.Kind().Name()
	email := a.Email()
	if email == "" {
		return name
	}
	local, domain, found := strings.Cut(email, "@")
	if !found {
		return fmt.Sprintf("%s (%s)", name, email)
	}
	for _, d := range a.PrimaryEmailDomains() {
		if strings.EqualFold(d, domain) {
			return fmt.Sprintf("%s (%s)", name, local)
		}
	}
	return fmt.Sprintf("%s (%s@%s)", name, local, domain)
}
