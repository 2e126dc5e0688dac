package helpers

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFiles struct {
	files   []provider.File
	details map[string]provider.File
	query   provider.FileQuery
}

func (f *fakeFiles) Files(ctx context.Context, q provider.FileQuery) iter.Seq2[provider.File, error] {
	f.query = q
	return provider.Paginate(ctx, func(ctx context.Context, token string) ([]provider.File, string, error) {
		return f.files, "", nil
	})
}

func (f *fakeFiles) FileDetails(ctx context.Context, id string) (provider.File, error) {
	d, ok := f.details[id]
	if !ok {
		return provider.File{}, errors.New("not found")
	}
	return d, nil
}

func TestTakeoutQuery(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "mimeType='application/x-zip' and name contains 'takeout-202403'", TakeoutQuery(now))
}

func TestTakeoutFiles(t *testing.T) {
	created := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	src := &fakeFiles{
		files: []provider.File{{ID: "small"}, {ID: "large"}, {ID: "unknown"}, {ID: "small"}},
		details: map[string]provider.File{
			"small": {ID: "small", Size: 4 * 1000 * 1000, Created: created},
			"large": {ID: "large", Size: 25 * 1000 * 1000},
		},
	}
	opts := TakeoutOptions{
		IncludeDetails: true,
		Now:            func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) },
	}

	got, err := TakeoutFiles(context.Background(), src, opts)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "small", got[0].ID)
	assert.Equal(t, created, got[0].Created)
	assert.Equal(t, "unknown", got[1].ID)
	assert.Zero(t, got[1].Size)
	assert.Equal(t, "createdTime desc", src.query.OrderBy)
	assert.Contains(t, src.query.Query, "takeout-202403")

	opts.AllowLarge = true
	got, err = TakeoutFiles(context.Background(), src, opts)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestTakeoutFiles_WithoutDetails(t *testing.T) {
	src := &fakeFiles{files: []provider.File{{ID: "a"}, {ID: "b"}}}
	got, err := TakeoutFiles(context.Background(), src, TakeoutOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
