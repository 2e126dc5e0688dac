package helpers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

func playlistsFor(t *testing.T, handler http.Handler) *Playlists {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc, err := youtube.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewPlaylists(svc)
}

func TestPlaylists_ListPaginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /youtube/v3/playlists", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("mine"))
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"items": []map[string]any{{
					"id":             "PL1",
					"snippet":        map[string]any{"title": "Favourites"},
					"status":         map[string]any{"privacyStatus": "public"},
					"contentDetails": map[string]any{"itemCount": 12},
				}},
				"nextPageToken": "CAUQAA",
			})
			return
		}
		writeJSON(w, map[string]any{"items": []map[string]any{{"id": "PL2", "snippet": map[string]any{"title": "Later"}}}})
	})
	p := playlistsFor(t, mux)

	lists, err := provider.Collect(p.List(context.Background()))
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, Playlist{ID: "PL1", Title: "Favourites", Privacy: "public", ItemCount: 12}, lists[0])
	assert.Equal(t, "Later", lists[1].Title)
}

func TestPlaylists_CreateDeleteAndItems(t *testing.T) {
	deleted := ""
	mux := http.NewServeMux()
	mux.HandleFunc("POST /youtube/v3/playlists", func(w http.ResponseWriter, r *http.Request) {
		var body youtube.Playlist
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "private", body.Status.PrivacyStatus)
		body.Id = "PL9"
		writeJSON(w, body)
	})
	mux.HandleFunc("DELETE /youtube/v3/playlists", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.URL.Query().Get("id")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		var body youtube.PlaylistItem
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "youtube#video", body.Snippet.ResourceId.Kind)
		body.Id = "item-1"
		writeJSON(w, body)
	})
	mux.HandleFunc("GET /youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PL9", r.URL.Query().Get("playlistId"))
		writeJSON(w, map[string]any{"items": []map[string]any{{
			"id":      "item-1",
			"snippet": map[string]any{"title": "Talk", "position": 0, "resourceId": map[string]any{"videoId": "vid-1"}},
		}}})
	})
	p := playlistsFor(t, mux)
	ctx := context.Background()

	created, err := p.Create(ctx, PlaylistInput{Title: "Talks"})
	require.NoError(t, err)
	assert.Equal(t, "PL9", created.ID)
	assert.Equal(t, "Talks", created.Title)

	item, err := p.AddVideo(ctx, "PL9", "vid-1")
	require.NoError(t, err)
	assert.Equal(t, "vid-1", item.VideoID)

	items, err := provider.Collect(p.Items(ctx, "PL9"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Talk", items[0].Title)

	require.NoError(t, p.Delete(ctx, "PL9"))
	assert.Equal(t, "PL9", deleted)
}
