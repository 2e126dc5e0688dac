// Package microsoft adapts Microsoft Graph calendars and OneDrive to the
// provider capability surface.
package microsoft

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pysugar/service-interactor/internal/credential"
	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/scopes"
)

const (
	// GraphURL is the Microsoft Graph v1.0 root.
	GraphURL = "https://graph.microsoft.com/v1.0"
	// TokenURL is the common-tenant v2 token endpoint.
	TokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
)

// graphTimeLayout is the zone-less dateTime Graph uses in DateTimeTimeZone.
const graphTimeLayout = "2006-01-02T15:04:05.999999999"

// PrimaryEmailDomains are Microsoft's consumer mail domains.
var PrimaryEmailDomains = []string{"live.ca", "live.com", "hotmail.com", "outlook.com", "msn.com", "msn.net"}

// Endpoint is the refresh configuration for Microsoft accounts.
func Endpoint() credential.Endpoint {
	return credential.Endpoint{TokenURL: TokenURL}
}

// Adapter talks to Microsoft Graph on behalf of one linked account.
type Adapter struct {
	provider.Base

	graphURL string
	client   *http.Client
}

var _ provider.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithGraphURL points the adapter at another Graph root.
func WithGraphURL(u string) Option {
	return func(a *Adapter) { a.graphURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// New creates the adapter.
func New(account *models.SocialAccount, ledger *scopes.Ledger, holder *credential.Holder, opts ...Option) *Adapter {
	a := &Adapter{
		Base: provider.NewBase(provider.KindMicrosoft, account, ledger, holder, provider.BaseOptions{
			PrimaryEmailDomains: PrimaryEmailDomains,
			EmailKey:            "userPrincipalName",
		}),
		graphURL: GraphURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DateTimeTimeZone is Graph's zone-qualified local time.
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphCalendar struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	CanEdit           bool   `json:"canEdit"`
	IsDefaultCalendar bool   `json:"isDefaultCalendar"`
}

type graphEvent struct {
	ID          string           `json:"id"`
	ICalUID     string           `json:"iCalUId"`
	Subject     string           `json:"subject"`
	WebLink     string           `json:"webLink"`
	BodyPreview string           `json:"bodyPreview"`
	Start       DateTimeTimeZone `json:"start"`
	End         DateTimeTimeZone `json:"end"`
	Location    struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
}

type driveItem struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Size            int64     `json:"size"`
	WebURL          string    `json:"webUrl"`
	CreatedDateTime time.Time `json:"createdDateTime"`
	File            *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
}

// utcPreference asks Graph to express event times in UTC instead of the
// mailbox's Windows time zone name.
var utcPreference = http.Header{"Prefer": {`outlook.timezone="UTC"`}}

// Calendars lists the user's calendars. The default calendar is primary.
func (a *Adapter) Calendars(ctx context.Context) iter.Seq2[provider.Calendar, error] {
	return list(ctx, a, request{op: "calendars", method: http.MethodGet, path: "/me/calendars"},
		func(raw json.RawMessage) (provider.Calendar, error) {
			var c graphCalendar
			if err := json.Unmarshal(raw, &c); err != nil {
				return provider.Calendar{}, err
			}
			return provider.Calendar{
				ID:      c.ID,
				Name:    c.Name,
				CanEdit: c.CanEdit,
				Primary: c.IsDefaultCalendar || c.Name == "Calendar",
				Raw:     toRaw(raw),
			}, nil
		})
}

// CalendarEvents lists events of calendarID, or of the default calendar
// when calendarID is empty.
func (a *Adapter) CalendarEvents(ctx context.Context, calendarID string, q provider.EventQuery) iter.Seq2[provider.CalendarEvent, error] {
	path := "/me/events"
	if calendarID != "" {
		path = "/me/calendars/" + url.PathEscape(calendarID) + "/events"
	}
	params := url.Values{}
	if q.MaxResults > 0 {
		params.Set("$top", fmt.Sprint(q.MaxResults))
	}
	if q.OrderBy == "startTime" {
		params.Set("$orderby", "start/dateTime")
	}
	var filters []string
	if !q.TimeMin.IsZero() {
		filters = append(filters, fmt.Sprintf("start/dateTime ge '%s'", q.TimeMin.UTC().Format(graphTimeLayout)))
	}
	if !q.TimeMax.IsZero() {
		filters = append(filters, fmt.Sprintf("end/dateTime le '%s'", q.TimeMax.UTC().Format(graphTimeLayout)))
	}
	if len(filters) > 0 {
		params.Set("$filter", strings.Join(filters, " and "))
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	return list(ctx, a, request{op: "calendar_events", method: http.MethodGet, path: path, header: utcPreference},
		func(raw json.RawMessage) (provider.CalendarEvent, error) {
			var e graphEvent
			if err := json.Unmarshal(raw, &e); err != nil {
				return provider.CalendarEvent{}, err
			}
			ev, err := toEvent(e)
			if err != nil {
				return provider.CalendarEvent{}, err
			}
			ev.CalendarID = calendarID
			if calendarID == "" {
				ev.CalendarID = e.ICalUID
			}
			ev.Raw = toRaw(raw)
			return ev, nil
		})
}

func toEvent(e graphEvent) (provider.CalendarEvent, error) {
	start, err := ParseDateTime(e.Start)
	if err != nil {
		return provider.CalendarEvent{}, fmt.Errorf("event %s start: %w", e.ID, err)
	}
	end, err := ParseDateTime(e.End)
	if err != nil {
		return provider.CalendarEvent{}, fmt.Errorf("event %s end: %w", e.ID, err)
	}
	return provider.CalendarEvent{
		ID:          e.ID,
		Name:        e.Subject,
		Link:        e.WebLink,
		Location:    e.Location.DisplayName,
		Description: e.BodyPreview,
		Start:       start,
		End:         end,
	}, nil
}

// ParseDateTime interprets a Graph DateTimeTimeZone value. Only IANA zone
// names and UTC are understood.
func ParseDateTime(dt DateTimeTimeZone) (time.Time, error) {
	if dt.DateTime == "" {
		return time.Time{}, nil
	}
	loc := time.UTC
	if dt.TimeZone != "" && !strings.EqualFold(dt.TimeZone, "UTC") {
		l, err := time.LoadLocation(dt.TimeZone)
		if err != nil {
			return time.Time{}, err
		}
		loc = l
	}
	return time.ParseInLocation(graphTimeLayout, dt.DateTime, loc)
}

// FormatEvent renders an event input as a Graph event body in UTC.
func FormatEvent(in provider.EventInput) map[string]any {
	return map[string]any{
		"subject": in.Summary,
		"body": map[string]any{
			"content":     in.Description,
			"contentType": "text",
		},
		"start": DateTimeTimeZone{
			DateTime: in.Start.UTC().Format("2006-01-02T15:04:05"),
			TimeZone: "UTC",
		},
		"end": DateTimeTimeZone{
			DateTime: in.End.UTC().Format("2006-01-02T15:04:05"),
			TimeZone: "UTC",
		},
		"location": map[string]any{
			"displayName": in.Location,
		},
	}
}

func (a *Adapter) CreateCalendarEvent(ctx context.Context, calendarID string, in provider.EventInput) (provider.CalendarEvent, error) {
	var raw json.RawMessage
	err := a.call(ctx, request{
		op:     "create_event",
		method: http.MethodPost,
		path:   "/me/calendars/" + url.PathEscape(calendarID) + "/events",
		body:   FormatEvent(in),
		header: utcPreference,
	}, &raw)
	if err != nil {
		return provider.CalendarEvent{}, err
	}
	var e graphEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return provider.CalendarEvent{}, fmt.Errorf("decode created event: %w", err)
	}
	return provider.CalendarEvent{
		ID:         e.ID,
		CalendarID: calendarID,
		Link:       e.WebLink,
		Raw:        toRaw(raw),
	}, nil
}

func (a *Adapter) DeleteCalendarEvent(ctx context.Context, calendarID, eventID string) error {
	return a.call(ctx, request{
		op:     "delete_event",
		method: http.MethodDelete,
		path:   "/me/calendars/" + url.PathEscape(calendarID) + "/events/" + url.PathEscape(eventID),
	}, nil)
}

// Files lists the OneDrive root, or searches the drive when q.Query is set.
func (a *Adapter) Files(ctx context.Context, q provider.FileQuery) iter.Seq2[provider.File, error] {
	path := "/me/drive/root/children"
	if q.Query != "" {
		escaped := strings.ReplaceAll(q.Query, "'", "''")
		path = "/me/drive/root/search(q='" + url.PathEscape(escaped) + "')"
	}
	params := url.Values{}
	if q.PageSize > 0 {
		params.Set("$top", fmt.Sprint(q.PageSize))
	}
	if q.OrderBy != "" {
		params.Set("$orderby", q.OrderBy)
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return list(ctx, a, request{op: "files", method: http.MethodGet, path: path}, toFile)
}

func (a *Adapter) FileDetails(ctx context.Context, fileID string) (provider.File, error) {
	var raw json.RawMessage
	err := a.call(ctx, request{op: "file_details", method: http.MethodGet, path: "/me/drive/items/" + url.PathEscape(fileID)}, &raw)
	if err != nil {
		return provider.File{}, err
	}
	return toFile(raw)
}

// DownloadFile streams a OneDrive file. The caller closes the body.
func (a *Adapter) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := a.do(ctx, request{op: "download_file", method: http.MethodGet, path: "/me/drive/items/" + url.PathEscape(fileID) + "/content"})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// exportFormats maps the MIME types OneDrive can convert to onto the
// format parameter of the content endpoint.
var exportFormats = map[string]string{
	"application/pdf": "pdf",
	"text/html":       "html",
}

// ExportFile converts a OneDrive file to PDF or HTML.
func (a *Adapter) ExportFile(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	format, ok := exportFormats[mimeType]
	if !ok {
		return nil, provider.NotSupported(provider.KindMicrosoft, "export to "+mimeType)
	}
	resp, err := a.do(ctx, request{
		op:     "export_file",
		method: http.MethodGet,
		path:   "/me/drive/items/" + url.PathEscape(fileID) + "/content?format=" + format,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func toFile(raw json.RawMessage) (provider.File, error) {
	var item driveItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return provider.File{}, err
	}
	f := provider.File{
		ID:      item.ID,
		Name:    item.Name,
		Link:    item.WebURL,
		Size:    item.Size,
		Created: item.CreatedDateTime,
		Raw:     toRaw(raw),
	}
	if item.File != nil {
		f.MimeType = item.File.MimeType
	}
	return f, nil
}
