// Package google adapts Google Calendar, Drive, Gmail and YouTube to the
// provider capability surface.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pysugar/service-interactor/internal/credential"
	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/metrics"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/scopes"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// TokenURL is Google's token endpoint.
const TokenURL = "https://accounts.google.com/o/oauth2/token"

// FolderMimeType marks Drive folders.
const FolderMimeType = "application/vnd.google-apps.folder"

const fileFields = "id, name, mimeType, size, createdTime, webViewLink, parents"

// PrimaryEmailDomains are Google's consumer mail domains.
var PrimaryEmailDomains = []string{"gmail.com", "googlemail.com", "google.com"}

// Endpoint is the refresh configuration for Google accounts.
func Endpoint() credential.Endpoint {
	return credential.Endpoint{TokenURL: TokenURL}
}

// Adapter talks to Google APIs on behalf of one linked account.
// Vendor clients are built on first use and kept for the adapter's lifetime.
type Adapter struct {
	provider.Base

	opts []option.ClientOption

	calendar *calendar.Service
	drive    *drive.Service
	gmail    *gmail.Service
	youtube  *youtube.Service
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates the adapter. opts are appended after the holder's token
// source, so option.WithHTTPClient overrides authentication.
func New(account *models.SocialAccount, ledger *scopes.Ledger, holder *credential.Holder, opts ...option.ClientOption) *Adapter {
	return &Adapter{
		Base: provider.NewBase(provider.KindGoogle, account, ledger, holder, provider.BaseOptions{
			RequireAccessToken:  true,
			PrimaryEmailDomains: PrimaryEmailDomains,
		}),
		opts: opts,
	}
}

func (a *Adapter) clientOptions(ctx context.Context) []option.ClientOption {
	out := []option.ClientOption{option.WithTokenSource(a.Holder().TokenSource(ctx))}
	return append(out, a.opts...)
}

// Calendar returns the Calendar API client.
func (a *Adapter) Calendar(ctx context.Context) (*calendar.Service, error) {
	if a.calendar == nil {
		svc, err := calendar.NewService(ctx, a.clientOptions(ctx)...)
		if err != nil {
			return nil, fmt.Errorf("calendar client: %w", err)
		}
		a.calendar = svc
	}
	return a.calendar, nil
}

// Drive returns the Drive API client.
func (a *Adapter) Drive(ctx context.Context) (*drive.Service, error) {
	if a.drive == nil {
		svc, err := drive.NewService(ctx, a.clientOptions(ctx)...)
		if err != nil {
			return nil, fmt.Errorf("drive client: %w", err)
		}
		a.drive = svc
	}
	return a.drive, nil
}

// Gmail returns the Gmail API client.
func (a *Adapter) Gmail(ctx context.Context) (*gmail.Service, error) {
	if a.gmail == nil {
		svc, err := gmail.NewService(ctx, a.clientOptions(ctx)...)
		if err != nil {
			return nil, fmt.Errorf("gmail client: %w", err)
		}
		a.gmail = svc
	}
	return a.gmail, nil
}

// YouTube returns the YouTube Data API client.
func (a *Adapter) YouTube(ctx context.Context) (*youtube.Service, error) {
	if a.youtube == nil {
		svc, err := youtube.NewService(ctx, a.clientOptions(ctx)...)
		if err != nil {
			return nil, fmt.Errorf("youtube client: %w", err)
		}
		a.youtube = svc
	}
	return a.youtube, nil
}

// Calendars lists the calendars on the user's calendar list.
func (a *Adapter) Calendars(ctx context.Context) iter.Seq2[provider.Calendar, error] {
	svc, err := a.Calendar(ctx)
	if err != nil {
		return provider.Fail[provider.Calendar](err)
	}
	return provider.Paginate(ctx, func(ctx context.Context, token string) ([]provider.Calendar, string, error) {
		call := svc.CalendarList.List().Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}
		res, err := call.Do()
		metrics.ObserveVendor("google", "calendars", err)
		if err != nil {
			return nil, "", err
		}
		out := make([]provider.Calendar, 0, len(res.Items))
		for _, item := range res.Items {
			out = append(out, provider.Calendar{
				ID:      item.Id,
				Name:    item.Summary,
				Primary: item.Primary,
				CanEdit: item.AccessRole == "owner" || item.AccessRole == "writer",
				Raw:     toRaw(item),
			})
		}
		return out, res.NextPageToken, nil
	})
}

// CalendarEvents lists events of calendarID.
func (a *Adapter) CalendarEvents(ctx context.Context, calendarID string, q provider.EventQuery) iter.Seq2[provider.CalendarEvent, error] {
	svc, err := a.Calendar(ctx)
	if err != nil {
		return provider.Fail[provider.CalendarEvent](err)
	}
	return provider.Paginate(ctx, func(ctx context.Context, token string) ([]provider.CalendarEvent, string, error) {
		call := svc.Events.List(calendarID).Context(ctx)
		if !q.TimeMin.IsZero() {
			call = call.TimeMin(q.TimeMin.UTC().Format(time.RFC3339))
		}
		if !q.TimeMax.IsZero() {
			call = call.TimeMax(q.TimeMax.UTC().Format(time.RFC3339))
		}
		if q.MaxResults > 0 {
			call = call.MaxResults(q.MaxResults)
		}
		if q.SingleEvents {
			call = call.SingleEvents(true)
		}
		if q.OrderBy != "" {
			call = call.OrderBy(q.OrderBy)
		}
		if token != "" {
			call = call.PageToken(token)
		}
		res, err := call.Do()
		metrics.ObserveVendor("google", "calendar_events", err)
		if err != nil {
			return nil, "", err
		}
		out := make([]provider.CalendarEvent, 0, len(res.Items))
		for _, item := range res.Items {
			ev, err := toEvent(calendarID, item)
			if err != nil {
				return out, "", err
			}
			out = append(out, ev)
		}
		return out, res.NextPageToken, nil
	})
}

// FormatEvent renders an event input as a Calendar API event in UTC.
func FormatEvent(in provider.EventInput) *calendar.Event {
	return &calendar.Event{
		Summary:     in.Summary,
		Location:    in.Location,
		Description: in.Description,
		Start: &calendar.EventDateTime{
			DateTime: in.Start.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &calendar.EventDateTime{
			DateTime: in.End.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
	}
}

func (a *Adapter) CreateCalendarEvent(ctx context.Context, calendarID string, in provider.EventInput) (provider.CalendarEvent, error) {
	svc, err := a.Calendar(ctx)
	if err != nil {
		return provider.CalendarEvent{}, err
	}
	created, err := svc.Events.Insert(calendarID, FormatEvent(in)).Context(ctx).Do()
	metrics.ObserveVendor("google", "create_event", err)
	if err != nil {
		return provider.CalendarEvent{}, err
	}
	return provider.CalendarEvent{
		ID:         created.Id,
		CalendarID: calendarID,
		Link:       created.HtmlLink,
		Raw:        toRaw(created),
	}, nil
}

func (a *Adapter) DeleteCalendarEvent(ctx context.Context, calendarID, eventID string) error {
	svc, err := a.Calendar(ctx)
	if err != nil {
		return err
	}
	err = svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	metrics.ObserveVendor("google", "delete_event", err)
	return err
}

// Files lists Drive files matching q.
func (a *Adapter) Files(ctx context.Context, q provider.FileQuery) iter.Seq2[provider.File, error] {
	svc, err := a.Drive(ctx)
	if err != nil {
		return provider.Fail[provider.File](err)
	}
	return provider.Paginate(ctx, func(ctx context.Context, token string) ([]provider.File, string, error) {
		call := svc.Files.List().
			Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")")).
			Context(ctx)
		if q.Query != "" {
			call = call.Q(q.Query)
		}
		if q.OrderBy != "" {
			call = call.OrderBy(q.OrderBy)
		}
		if q.PageSize > 0 {
			call = call.PageSize(q.PageSize)
		}
		if token != "" {
			call = call.PageToken(token)
		}
		res, err := call.Do()
		metrics.ObserveVendor("google", "files", err)
		if err != nil {
			return nil, "", err
		}
		out := make([]provider.File, 0, len(res.Files))
		for _, f := range res.Files {
			out = append(out, toFile(f))
		}
		return out, res.NextPageToken, nil
	})
}

func (a *Adapter) FileDetails(ctx context.Context, fileID string) (provider.File, error) {
	svc, err := a.Drive(ctx)
	if err != nil {
		return provider.File{}, err
	}
	f, err := svc.Files.Get(fileID).Fields(googleapi.Field(fileFields)).Context(ctx).Do()
	metrics.ObserveVendor("google", "file_details", err)
	if err != nil {
		return provider.File{}, err
	}
	return toFile(f), nil
}

// DownloadFile streams a binary Drive file. The caller closes the body.
func (a *Adapter) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	svc, err := a.Drive(ctx)
	if err != nil {
		return nil, err
	}
	res, err := svc.Files.Get(fileID).Context(ctx).Download()
	metrics.ObserveVendor("google", "download_file", err)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// ExportFile converts a Google Docs editor file to mimeType. Drive caps
// exports at 10 MB.
func (a *Adapter) ExportFile(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	svc, err := a.Drive(ctx)
	if err != nil {
		return nil, err
	}
	res, err := svc.Files.Export(fileID, mimeType).Context(ctx).Download()
	metrics.ObserveVendor("google", "export_file", err)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// FolderQuery is the Drive search expression for non-trashed folders,
// optionally restricted to an exact name.
func FolderQuery(name string) string {
	q := fmt.Sprintf("mimeType = '%s' and trashed = false", FolderMimeType)
	if name != "" {
		q += fmt.Sprintf(" and name = '%s'", escapeQuery(name))
	}
	return q
}

// Folders lists Drive folders, optionally only those called name.
func (a *Adapter) Folders(ctx context.Context, name string) iter.Seq2[provider.File, error] {
	return a.Files(ctx, provider.FileQuery{Query: FolderQuery(name)})
}

// GetOrCreateFolder returns the first folder called name, creating it in
// the Drive root when none exists.
func (a *Adapter) GetOrCreateFolder(ctx context.Context, name string) (provider.File, error) {
	folder, ok, err := provider.First(a.Folders(ctx, name))
	if err != nil || ok {
		return folder, err
	}
	svc, err := a.Drive(ctx)
	if err != nil {
		return provider.File{}, err
	}
	created, err := svc.Files.Create(&drive.File{Name: name, MimeType: FolderMimeType}).
		Fields(googleapi.Field(fileFields)).
		Context(ctx).
		Do()
	metrics.ObserveVendor("google", "create_folder", err)
	if err != nil {
		return provider.File{}, err
	}
	return toFile(created), nil
}

func toEvent(calendarID string, item *calendar.Event) (provider.CalendarEvent, error) {
	start, err := ParseEventTime(item.Start)
	if err != nil {
		return provider.CalendarEvent{}, fmt.Errorf("event %s start: %w", item.Id, err)
	}
	end, err := ParseEventTime(item.End)
	if err != nil {
		return provider.CalendarEvent{}, fmt.Errorf("event %s end: %w", item.Id, err)
	}
	return provider.CalendarEvent{
		ID:          item.Id,
		CalendarID:  calendarID,
		Name:        item.Summary,
		Link:        item.HtmlLink,
		Location:    item.Location,
		Description: item.Description,
		Start:       start,
		End:         end,
		Raw:         toRaw(item),
	}, nil
}

// ParseEventTime returns the instant of a Calendar API time, expressed in
// the event's own time zone when one is given. All-day events resolve to
// midnight in that zone.
func ParseEventTime(dt *calendar.EventDateTime) (time.Time, error) {
	if dt == nil {
		return time.Time{}, nil
	}
	loc := time.UTC
	if dt.TimeZone != "" {
		l, err := time.LoadLocation(dt.TimeZone)
		if err != nil {
			return time.Time{}, err
		}
		loc = l
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	}
	if dt.Date != "" {
		return time.ParseInLocation(time.DateOnly, dt.Date, loc)
	}
	return time.Time{}, nil
}

func toFile(f *drive.File) provider.File {
	out := provider.File{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Link:     f.WebViewLink,
		Size:     f.Size,
		Raw:      toRaw(f),
	}
	if f.CreatedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
			out.Created = t
		}
	}
	return out
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// toRaw flattens an API resource to its JSON form.
func toRaw(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
