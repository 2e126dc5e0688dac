package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/service-interactor/internal/helpers"
)

func playlists(w http.ResponseWriter, r *http.Request) (*helpers.Playlists, bool) {
	a, ok := active(w, r)
	if !ok {
		return nil, false
	}
	svc, err := helpers.YouTube(r.Context(), a)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return helpers.NewPlaylists(svc), true
}

// PlaylistsHandler lists the channel's playlists.
func PlaylistsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := playlists(w, r)
		if !ok {
			return
		}
		limit, err := intParam(r, "limit", DefaultLimit)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		items, err := take(p.List(r.Context()), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"playlists": items, "count": len(items)})
	}
}

// CreatePlaylistHandler creates a playlist from a JSON PlaylistInput.
func CreatePlaylistHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in helpers.PlaylistInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Title == "" {
			badRequest(w, "title is required")
			return
		}
		p, ok := playlists(w, r)
		if !ok {
			return
		}
		created, err := p.Create(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func DeletePlaylistHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := playlists(w, r)
		if !ok {
			return
		}
		if err := p.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PlaylistItemsHandler lists the videos of playlist {id}.
func PlaylistItemsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := playlists(w, r)
		if !ok {
			return
		}
		limit, err := intParam(r, "limit", DefaultLimit)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		items, err := take(p.Items(r.Context(), chi.URLParam(r, "id")), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	}
}

// AddPlaylistItemHandler appends a video. Body: {"video_id": "..."}.
func AddPlaylistItemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			VideoID string `json:"video_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.VideoID == "" {
			badRequest(w, "video_id is required")
			return
		}
		p, ok := playlists(w, r)
		if !ok {
			return
		}
		item, err := p.AddVideo(r.Context(), chi.URLParam(r, "id"), in.VideoID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}
}
