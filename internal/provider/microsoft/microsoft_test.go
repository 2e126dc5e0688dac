package microsoft

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
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type staticRefresher struct {
	calls int
}

func (r *staticRefresher) Refresh(ctx context.Context, cred credential.Credential, ep credential.Endpoint) (*oauth2.Token, error) {
	r.calls++
	return &oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)}, nil
}

type fixture struct {
	db        *gorm.DB
	adapter   *Adapter
	srv       *httptest.Server
	refresher *staticRefresher
}

func newFixture(t *testing.T, handler http.Handler, expiresAt time.Time) fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	database := dbtest.New(t)
	require.NoError(t, database.Create(&models.SocialApp{Provider: "microsoft", Name: "Microsoft", ClientID: "cid", Secret: "secret"}).Error)
	user := models.User{Email: "sam@outlook.com"}
	require.NoError(t, database.Create(&user).Error)
	account := models.SocialAccount{UserID: user.ID, Provider: "microsoft", UID: "ms-1"}
	require.NoError(t, account.SetExtra(map[string]any{"userPrincipalName": "sam@outlook.com", "mail": "other@contoso.com"}))
	require.NoError(t, database.Create(&account).Error)
	require.NoError(t, database.Create(&models.SocialToken{AccountID: account.ID, Token: "stored", TokenSecret: "refresh", ExpiresAt: &expiresAt}).Error)

	refresher := &staticRefresher{}
	ledger := scopes.NewLedger(database)
	holder := credential.NewHolder(database, ledger, &account, Endpoint(), credential.WithRefresher(refresher))
	return fixture{
		db:        database,
		adapter:   New(&account, ledger, holder, WithGraphURL(srv.URL+"/v1.0/"), WithHTTPClient(srv.Client())),
		srv:       srv,
		refresher: refresher,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestAdapter_EmailFromPrincipalName(t *testing.T) {
	f := newFixture(t, http.NotFoundHandler(), time.Now().Add(time.Hour))
	assert.Equal(t, "sam@outlook.com", f.adapter.Email())
	assert.Equal(t, "Microsoft (sam)", provider.DisplayName(f.adapter))
}

func TestCalendars_FollowsNextLink(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1.0/me/calendars", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer stored", r.Header.Get("Authorization"))
		if r.URL.Query().Get("$skiptoken") == "" {
			writeJSON(w, map[string]any{
				"value":           []map[string]any{{"id": "c1", "name": "Calendar", "canEdit": true}},
				"@odata.nextLink": srvURL + "/v1.0/me/calendars?$skiptoken=abc",
			})
			return
		}
		writeJSON(w, map[string]any{
			"value": []map[string]any{{"id": "c2", "name": "Birthdays", "canEdit": false}},
		})
	})
	f := newFixture(t, mux, time.Now().Add(time.Hour))
	srvURL = f.srv.URL

	cals, err := provider.Collect(f.adapter.Calendars(context.Background()))
	require.NoError(t, err)
	require.Len(t, cals, 2)
	assert.True(t, cals[0].Primary)
	assert.True(t, cals[0].CanEdit)
	assert.False(t, cals[1].Primary)
	assert.Equal(t, "Birthdays", cals[1].Raw["name"])
}

func TestCalendarEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1.0/me/calendars/c1/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `outlook.timezone="UTC"`, r.Header.Get("Prefer"))
		assert.Equal(t, "5", r.URL.Query().Get("$top"))
		assert.Equal(t, "start/dateTime", r.URL.Query().Get("$orderby"))
		assert.Equal(t, "start/dateTime ge '2024-03-01T00:00:00'", r.URL.Query().Get("$filter"))
		writeJSON(w, map[string]any{"value": []map[string]any{{
			"id":          "e1",
			"iCalUId":     "ical-1",
			"subject":     "Review",
			"webLink":     "https://outlook.example/e1",
			"bodyPreview": "Quarterly review",
			"location":    map[string]any{"displayName": "Room 7"},
			"start":       map[string]any{"dateTime": "2024-03-04T14:00:00.0000000", "timeZone": "UTC"},
			"end":         map[string]any{"dateTime": "2024-03-04T15:30:00.0000000", "timeZone": "UTC"},
		}}})
	})
	f := newFixture(t, mux, time.Now().Add(time.Hour))

	events, err := provider.Collect(f.adapter.CalendarEvents(context.Background(), "c1", provider.EventQuery{
		TimeMin:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		MaxResults: 5,
		OrderBy:    "startTime",
	}))
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "c1", ev.CalendarID)
	assert.Equal(t, "Review", ev.Name)
	assert.Equal(t, "Room 7", ev.Location)
	assert.Equal(t, "Quarterly review", ev.Description)
	assert.True(t, ev.Start.Equal(time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)))
	assert.Equal(t, 90*time.Minute, ev.End.Sub(ev.Start))
}

func TestParseDateTime(t *testing.T) {
	got, err := ParseDateTime(DateTimeTimeZone{DateTime: "2024-07-01T09:00:00.0000000", TimeZone: "Europe/Paris"})
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 7, 1, 7, 0, 0, 0, time.UTC)))

	_, err = ParseDateTime(DateTimeTimeZone{DateTime: "2024-07-01T09:00:00", TimeZone: "Not/AZone"})
	assert.Error(t, err)

	zero, err := ParseDateTime(DateTimeTimeZone{})
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestCreateAndDeleteEvent(t *testing.T) {
	deleted := false
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1.0/me/calendars/c1/events", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Lunch", body["subject"])
		start := body["start"].(map[string]any)
		assert.Equal(t, "2024-03-04T12:00:00", start["dateTime"])
		assert.Equal(t, "UTC", start["timeZone"])
		assert.Equal(t, "Cafe", body["location"].(map[string]any)["displayName"])
		writeJSON(w, map[string]any{"id": "new", "iCalUId": "ical-new", "webLink": "https://outlook.example/new"})
	})
	mux.HandleFunc("DELETE /v1.0/me/calendars/c1/events/new", func(w http.ResponseWriter, r *http.Request) {
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})
	f := newFixture(t, mux, time.Now().Add(time.Hour))
	ctx := context.Background()

	ev, err := f.adapter.CreateCalendarEvent(ctx, "c1", provider.EventInput{
		Summary:  "Lunch",
		Location: "Cafe",
		Start:    time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "new", ev.ID)
	assert.Equal(t, "c1", ev.CalendarID)
	assert.Equal(t, "https://outlook.example/new", ev.Link)

	require.NoError(t, f.adapter.DeleteCalendarEvent(ctx, "c1", "new"))
	assert.True(t, deleted)
}

func TestGraphError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1.0/me/drive/items/nope", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"itemNotFound","message":"The resource could not be found."}}`))
	})
	f := newFixture(t, mux, time.Now().Add(time.Hour))

	_, err := f.adapter.FileDetails(context.Background(), "nope")
	var gerr *GraphError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusNotFound, gerr.Status)
	assert.Equal(t, "itemNotFound", gerr.Code)
}

func TestFiles_SearchAndDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1.0/me/drive/root/search(q='budget')", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"value": []map[string]any{
			{"id": "i1", "name": "budget.xlsx", "size": 512, "webUrl": "https://onedrive.example/i1",
				"createdDateTime": "2024-02-01T10:00:00Z", "file": map[string]any{"mimeType": "application/vnd.ms-excel"}},
			{"id": "i2", "name": "budget", "folder": map[string]any{"childCount": 3}},
		}})
	})
	mux.HandleFunc("GET /v1.0/me/drive/items/i1/content", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "pdf" {
			_, _ = w.Write([]byte("%PDF"))
			return
		}
		_, _ = w.Write([]byte("xlsx-bytes"))
	})
	f := newFixture(t, mux, time.Now().Add(time.Hour))
	ctx := context.Background()

	files, err := provider.Collect(f.adapter.Files(ctx, provider.FileQuery{Query: "budget"}))
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "application/vnd.ms-excel", files[0].MimeType)
	assert.Equal(t, int64(512), files[0].Size)
	assert.Equal(t, 2024, files[0].Created.Year())
	assert.Empty(t, files[1].MimeType)

	body, err := f.adapter.DownloadFile(ctx, "i1")
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	require.NoError(t, body.Close())
	assert.Equal(t, "xlsx-bytes", string(data))

	body, err = f.adapter.ExportFile(ctx, "i1", "application/pdf")
	require.NoError(t, err)
	data, _ = io.ReadAll(body)
	require.NoError(t, body.Close())
	assert.Equal(t, "%PDF", string(data))

	_, err = f.adapter.ExportFile(ctx, "i1", "text/csv")
	assert.ErrorIs(t, err, provider.ErrNotSupported)
}

func TestExpiredTokenIsRefreshedBeforeCall(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1.0/me/calendars", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{"value": []map[string]any{}})
	})
	f := newFixture(t, mux, time.Now().Add(-time.Minute))

	_, err := provider.Collect(f.adapter.Calendars(context.Background()))
	require.NoError(t, err)
	_, err = provider.Collect(f.adapter.Calendars(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, 1, f.refresher.calls)

	var tok models.SocialToken
	require.NoError(t, f.db.First(&tok).Error)
	assert.Equal(t, "fresh", tok.Token)
}
