package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pysugar/service-interactor/internal/credential"
	"github.com/pysugar/service-interactor/internal/db/dbtest"
	"github.com/pysugar/service-interactor/internal/db/models"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/scopes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	database := dbtest.New(t)
	user := models.User{Email: "jane@gmail.com"}
	require.NoError(t, database.Create(&user).Error)
	account := models.SocialAccount{UserID: user.ID, Provider: "google", UID: "g-1"}
	require.NoError(t, account.SetExtra(map[string]any{"email": "jane@gmail.com"}))
	require.NoError(t, database.Create(&account).Error)
	exp := time.Now().Add(time.Hour)
	require.NoError(t, database.Create(&models.SocialToken{AccountID: account.ID, Token: "access", TokenSecret: "refresh", ExpiresAt: &exp}).Error)

	ledger := scopes.NewLedger(database)
	holder := credential.NewHolder(database, ledger, &account, Endpoint())
	return New(&account, ledger, holder,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
}

func TestAdapter_Identity(t *testing.T) {
	a := newAdapter(t, http.NotFoundHandler())
	assert.Equal(t, provider.KindGoogle, a.Kind())
	assert.Equal(t, "jane@gmail.com", a.Email())
	assert.Equal(t, "Google (jane)", provider.DisplayName(a))
	assert.True(t, a.IsEnabled(context.Background()))
}

func TestCalendars_Paginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/me/calendarList", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"items":         []map[string]any{{"id": "primary-id", "summary": "Jane", "primary": true, "accessRole": "owner"}},
				"nextPageToken": "p2",
			})
			return
		}
		writeJSON(w, map[string]any{
			"items": []map[string]any{{"id": "holidays", "summary": "Holidays", "accessRole": "reader"}},
		})
	})
	a := newAdapter(t, mux)

	cals, err := provider.Collect(a.Calendars(context.Background()))
	require.NoError(t, err)
	require.Len(t, cals, 2)
	assert.Equal(t, "primary-id", cals[0].ID)
	assert.True(t, cals[0].Primary)
	assert.True(t, cals[0].CanEdit)
	assert.Equal(t, "Holidays", cals[1].Name)
	assert.False(t, cals[1].Primary)
	assert.False(t, cals[1].CanEdit)
	assert.Equal(t, "reader", cals[1].Raw["accessRole"])
}

func TestCalendarEvents_TimeZones(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "startTime", r.URL.Query().Get("orderBy"))
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		assert.Equal(t, "2024-03-01T00:00:00Z", r.URL.Query().Get("timeMin"))
		writeJSON(w, map[string]any{"items": []map[string]any{
			{
				"id": "e1", "summary": "Standup", "htmlLink": "https://calendar.example/e1",
				"location": "Room 1", "description": "daily",
				"start": map[string]any{"dateTime": "2024-03-04T09:00:00-05:00", "timeZone": "America/New_York"},
				"end":   map[string]any{"dateTime": "2024-03-04T09:15:00-05:00", "timeZone": "America/New_York"},
			},
			{
				"id": "e2", "summary": "Holiday",
				"start": map[string]any{"date": "2024-03-08"},
				"end":   map[string]any{"date": "2024-03-09"},
			},
		}})
	})
	a := newAdapter(t, mux)

	events, err := provider.Collect(a.CalendarEvents(context.Background(), "primary", provider.EventQuery{
		TimeMin:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		SingleEvents: true,
		OrderBy:      "startTime",
	}))
	require.NoError(t, err)
	require.Len(t, events, 2)

	standup := events[0]
	assert.Equal(t, "primary", standup.CalendarID)
	assert.Equal(t, "Standup", standup.Name)
	assert.Equal(t, "Room 1", standup.Location)
	assert.Equal(t, "America/New_York", standup.Start.Location().String())
	assert.True(t, standup.Start.Equal(time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)))
	assert.Equal(t, 15*time.Minute, standup.End.Sub(standup.Start))

	holiday := events[1]
	assert.True(t, holiday.Start.Equal(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)))
}

func TestParseEventTime_UnknownZone(t *testing.T) {
	_, err := ParseEventTime(&calendar.EventDateTime{DateTime: "2024-03-04T09:00:00Z", TimeZone: "Mars/Olympus"})
	assert.Error(t, err)
}

func TestCreateAndDeleteEvent(t *testing.T) {
	deleted := false
	mux := http.NewServeMux()
	mux.HandleFunc("POST /calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		var ev calendar.Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, "Lunch", ev.Summary)
		assert.Equal(t, "UTC", ev.Start.TimeZone)
		assert.Equal(t, "2024-03-04T12:00:00Z", ev.Start.DateTime)
		writeJSON(w, map[string]any{"id": "new-1", "htmlLink": "https://calendar.example/new-1", "summary": ev.Summary})
	})
	mux.HandleFunc("DELETE /calendars/primary/events/new-1", func(w http.ResponseWriter, r *http.Request) {
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})
	a := newAdapter(t, mux)
	ctx := context.Background()

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	ev, err := a.CreateCalendarEvent(ctx, "primary", provider.EventInput{
		Summary: "Lunch",
		Start:   time.Date(2024, 3, 4, 13, 0, 0, 0, berlin),
		End:     time.Date(2024, 3, 4, 14, 0, 0, 0, berlin),
	})
	require.NoError(t, err)
	assert.Equal(t, "new-1", ev.ID)
	assert.Equal(t, "https://calendar.example/new-1", ev.Link)

	require.NoError(t, a.DeleteCalendarEvent(ctx, "primary", "new-1"))
	assert.True(t, deleted)
}

func TestFiles_QueryAndPaging(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "name contains 'report'", r.URL.Query().Get("q"))
		assert.Equal(t, "modifiedTime desc", r.URL.Query().Get("orderBy"))
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"files":         []map[string]any{{"id": "f1", "name": "report.pdf", "mimeType": "application/pdf", "size": "2048", "createdTime": "2024-01-02T03:04:05Z"}},
				"nextPageToken": "next",
			})
			return
		}
		writeJSON(w, map[string]any{"files": []map[string]any{{"id": "f2", "name": "report-2.pdf"}}})
	})
	a := newAdapter(t, mux)

	files, err := provider.Collect(a.Files(context.Background(), provider.FileQuery{Query: "name contains 'report'", OrderBy: "modifiedTime desc"}))
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(2048), files[0].Size)
	assert.Equal(t, 2024, files[0].Created.Year())
	assert.Equal(t, "f2", files[1].ID)
}

func TestDownloadAndExport(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/f1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "media" {
			_, _ = w.Write([]byte("binary-content"))
			return
		}
		writeJSON(w, map[string]any{"id": "f1", "name": "a.bin", "mimeType": "application/octet-stream"})
	})
	mux.HandleFunc("GET /files/doc1/export", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.URL.Query().Get("mimeType"))
		_, _ = w.Write([]byte("exported text"))
	})
	a := newAdapter(t, mux)
	ctx := context.Background()

	details, err := a.FileDetails(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "a.bin", details.Name)

	body, err := a.DownloadFile(ctx, "f1")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, body.Close())
	require.NoError(t, err)
	assert.Equal(t, "binary-content", string(data))

	body, err = a.ExportFile(ctx, "doc1", "text/plain")
	require.NoError(t, err)
	data, err = io.ReadAll(body)
	require.NoError(t, body.Close())
	require.NoError(t, err)
	assert.Equal(t, "exported text", string(data))
}

func TestFileDetails_VendorError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found"}}`))
	})
	a := newAdapter(t, mux)

	_, err := a.FileDetails(context.Background(), "missing")
	var apiErr *googleapi.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
}

func TestGetOrCreateFolder(t *testing.T) {
	t.Run("existing", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, FolderQuery("Backups"), r.URL.Query().Get("q"))
			writeJSON(w, map[string]any{"files": []map[string]any{{"id": "folder-1", "name": "Backups", "mimeType": FolderMimeType}}})
		})
		mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
			t.Error("folder must not be created when it exists")
		})
		a := newAdapter(t, mux)

		folder, err := a.GetOrCreateFolder(context.Background(), "Backups")
		require.NoError(t, err)
		assert.Equal(t, "folder-1", folder.ID)
	})

	t.Run("created", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"files": []map[string]any{}})
		})
		mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Backups", body["name"])
			assert.Equal(t, FolderMimeType, body["mimeType"])
			writeJSON(w, map[string]any{"id": "folder-2", "name": "Backups", "mimeType": FolderMimeType})
		})
		a := newAdapter(t, mux)

		folder, err := a.GetOrCreateFolder(context.Background(), "Backups")
		require.NoError(t, err)
		assert.Equal(t, "folder-2", folder.ID)
	})
}

func TestFolderQuery_Escapes(t *testing.T) {
	assert.Equal(t,
		`mimeType = 'application/vnd.google-apps.folder' and trashed = false and name = 'Jane\'s'`,
		FolderQuery("Jane's"))
	assert.Equal(t, `mimeType = 'application/vnd.google-apps.folder' and trashed = false`, FolderQuery(""))
}
