package helpers

import (
	"context"
	"iter"

	"github.com/pysugar/service-interactor/internal/metrics"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/provider/google"
	"google.golang.org/api/youtube/v3"
)

// YouTube returns the YouTube client of a Google adapter.
func YouTube(ctx context.Context, a provider.Adapter) (*youtube.Service, error) {
	g, ok := a.(*google.Adapter)
	if !ok {
		return nil, provider.NotSupported(a.Kind(), "video playlists")
	}
	return g.YouTube(ctx)
}

// Playlist is a YouTube playlist of the authenticated channel.
type Playlist struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Privacy     string `json:"privacy,omitempty"`
	ItemCount   int64  `json:"item_count"`
}

// PlaylistItem is one video in a playlist.
type PlaylistItem struct {
	ID       string `json:"id"`
	VideoID  string `json:"video_id"`
	Title    string `json:"title"`
	Position int64  `json:"position"`
}

// PlaylistInput describes a playlist to create. Privacy defaults to private.
type PlaylistInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Privacy     string `json:"privacy"`
}

// Playlists manages the playlists of the authenticated channel.
type Playlists struct {
	svc *youtube.Service
}

func NewPlaylists(svc *youtube.Service) *Playlists {
	return &Playlists{svc: svc}
}

// List pages through the channel's playlists.
func (p *Playlists) List(ctx context.Context) iter.Seq2[Playlist, error] {
	return provider.Paginate(ctx, func(ctx context.Context, token string) ([]Playlist, string, error) {
		call := p.svc.Playlists.List([]string{"snippet", "status", "contentDetails"}).
			Mine(true).
			MaxResults(50).
			Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}
		res, err := call.Do()
		metrics.ObserveVendor("google", "youtube_playlists", err)
		if err != nil {
			return nil, "", err
		}
		out := make([]Playlist, 0, len(res.Items))
		for _, item := range res.Items {
			out = append(out, toPlaylist(item))
		}
		return out, res.NextPageToken, nil
	})
}

// Create adds a playlist.
func (p *Playlists) Create(ctx context.Context, in PlaylistInput) (Playlist, error) {
	privacy := in.Privacy
	if privacy == "" {
		privacy = "private"
	}
	created, err := p.svc.Playlists.Insert([]string{"snippet", "status"}, &youtube.Playlist{
		Snippet: &youtube.PlaylistSnippet{Title: in.Title, Description: in.Description},
		Status:  &youtube.PlaylistStatus{PrivacyStatus: privacy},
	}).Context(ctx).Do()
	metrics.ObserveVendor("google", "youtube_create_playlist", err)
	if err != nil {
		return Playlist{}, err
	}
	return toPlaylist(created), nil
}

// Delete removes a playlist.
func (p *Playlists) Delete(ctx context.Context, id string) error {
	err := p.svc.Playlists.Delete(id).Context(ctx).Do()
	metrics.ObserveVendor("google", "youtube_delete_playlist", err)
	return err
}

// Items pages through the videos of playlistID.
func (p *Playlists) Items(ctx context.Context, playlistID string) iter.Seq2[PlaylistItem, error] {
	return provider.Paginate(ctx, func(ctx context.Context, token string) ([]PlaylistItem, string, error) {
		call := p.svc.PlaylistItems.List([]string{"snippet"}).
			PlaylistId(playlistID).
			MaxResults(50).
			Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}
		res, err := call.Do()
		metrics.ObserveVendor("google", "youtube_playlist_items", err)
		if err != nil {
			return nil, "", err
		}
		out := make([]PlaylistItem, 0, len(res.Items))
		for _, item := range res.Items {
			out = append(out, toPlaylistItem(item))
		}
		return out, res.NextPageToken, nil
	})
}

// AddVideo appends videoID to playlistID.
func (p *Playlists) AddVideo(ctx context.Context, playlistID, videoID string) (PlaylistItem, error) {
	created, err := p.svc.PlaylistItems.Insert([]string{"snippet"}, &youtube.PlaylistItem{
		Snippet: &youtube.PlaylistItemSnippet{
			PlaylistId: playlistID,
			ResourceId: &youtube.ResourceId{Kind: "youtube#video", VideoId: videoID},
		},
	}).Context(ctx).Do()
	metrics.ObserveVendor("google", "youtube_add_video", err)
	if err != nil {
		return PlaylistItem{}, err
	}
	return toPlaylistItem(created), nil
}

func toPlaylist(item *youtube.Playlist) Playlist {
	out := Playlist{ID: item.Id}
	if item.Snippet != nil {
		out.Title = item.Snippet.Title
		out.Description = item.Snippet.Description
	}
	if item.Status != nil {
		out.Privacy = item.Status.PrivacyStatus
	}
	if item.ContentDetails != nil {
		out.ItemCount = item.ContentDetails.ItemCount
	}
	return out
}

func toPlaylistItem(item *youtube.PlaylistItem) PlaylistItem {
	out := PlaylistItem{ID: item.Id}
	if s := item.Snippet; s != nil {
		out.Title = s.Title
		out.Position = s.Position
		if s.ResourceId != nil {
			out.VideoID = s.ResourceId.VideoId
		}
	}
	return out
}
