package provider

import (
	"context"
	"errors"
	"iter"
)

// ErrConsumed is yielded when a one-shot listing is ranged over twice.
var ErrConsumed = errors.New("listing already consumed")

// PageFunc fetches one page. An empty next token ends the listing.
type PageFunc[T any] func(ctx context.Context, pageToken string) (items []T, next string, err error)

// Paginate turns a page fetcher into a lazy one-shot sequence. Pages are
// requested only as the caller advances; breaking out stops fetching.
func Paginate[T any](ctx context.Context, fetch PageFunc[T]) iter.Seq2[T, error] {
	used := false
	return func(yield func(T, error) bool) {
		var zero T
		if used {
			yield(zero, ErrConsumed)
			return
		}
		used = true

		token := ""
		for {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}
			items, next, err := fetch(ctx, token)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			if next == "" {
				return
			}
			token = next
		}
	}
}

// Fail returns a sequence yielding only err.
func Fail[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}

// Collect drains seq, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// First returns the first item of seq, reporting false when it is empty.
func First[T any](seq iter.Seq2[T, error]) (T, bool, error) {
	var zero T
	for item, err := range seq {
		if err != nil {
			return zero, false, err
		}
		return item, true, nil
	}
	return zero, false, nil
}
