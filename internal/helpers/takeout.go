package helpers

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/provider"
	"go.uber.org/zap"
)

// TakeoutSizeLimit is the largest archive returned unless AllowLarge is set.
const TakeoutSizeLimit = 10 * 1000 * 1000

// FileSource lists and describes stored files.
type FileSource interface {
	Files(ctx context.Context, q provider.FileQuery) iter.Seq2[provider.File, error]
	FileDetails(ctx context.Context, fileID string) (provider.File, error)
}

// TakeoutOptions controls TakeoutFiles.
type TakeoutOptions struct {
	// IncludeDetails fetches size and creation time per archive.
	IncludeDetails bool
	// AllowLarge keeps archives over TakeoutSizeLimit.
	AllowLarge bool
	// Now defaults to time.Now; it selects the takeout-YYYYMM prefix.
	Now func() time.Time
}

// TakeoutQuery is the Drive search for this month's takeout archives.
func TakeoutQuery(now time.Time) string {
	return fmt.Sprintf("mimeType='application/x-zip' and name contains 'takeout-%s'", now.Format("200601"))
}

// TakeoutFiles finds Google Takeout zip archives created this month, newest
// first. Archives whose details cannot be read are kept without size.
func TakeoutFiles(ctx context.Context, src FileSource, opts TakeoutOptions) ([]provider.File, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	log := logging.From(ctx)

	var out []provider.File
	seen := make(map[string]bool)
	for file, err := range src.Files(ctx, provider.FileQuery{
		Query:   TakeoutQuery(now()),
		OrderBy: "createdTime desc",
	}) {
		if err != nil {
			return out, err
		}
		if seen[file.ID] {
			continue
		}
		if opts.IncludeDetails {
			details, err := src.FileDetails(ctx, file.ID)
			if err != nil {
				log.Warn("takeout details unavailable", zap.String("file_id", file.ID), zap.Error(err))
				file.Size = 0
				file.Created = time.Time{}
			} else {
				file.Size = details.Size
				file.Created = details.Created
			}
			if !opts.AllowLarge && file.Size > TakeoutSizeLimit {
				continue
			}
		}
		seen[file.ID] = true
		out = append(out, file)
	}
	return out, nil
}
