package source

import (
	"context"
	"time"

	"github.com/elonfeng/sentradar/internal/logging"
	"github.com/elonfeng/sentradar/pkg/fetch"
)

// DefaultPageDelay is the courtesy pause between page requests.
const DefaultPageDelay = 500 * time.Millisecond

// PageOptions tunes Paginate.
type PageOptions struct {
	Delay time.Duration
	Sleep fetch.SleepFunc
	Log   logging.Logger
}

// Result is what Paginate collected. Partial is set when pagination stopped on an
// error; Items still holds everything gathered before it.
type Result struct {
	Items   []Record
	Partial bool
	Err     error
	Pages   int
}

// Paginate walks a source's cursor until target records are collected, the source
// runs dry, the cursor stops advancing, or a fetch fails.
func Paginate(ctx context.Context, src Source, q Query, target int, opts PageOptions) Result {
	if opts.Sleep == nil {
		opts.Sleep = fetch.Sleep
	}
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	entry := opts.Log.WithFields(logging.Fields{"source": src.Name(), "bucket": q.Bucket})

	var res Result
	if target <= 0 {
		return res
	}

	seen := make(map[string]struct{})
	cursor := src.StartCursor()

	for len(res.Items) < target {
		if res.Pages > 0 {
			if err := opts.Sleep(ctx, opts.Delay); err != nil {
				res.Partial, res.Err = true, err
				return res
			}
		}
		if err := ctx.Err(); err != nil {
			res.Partial, res.Err = true, err
			return res
		}

		limit := target - len(res.Items)
		if size := src.PageSize(); size > 0 && limit > size {
			limit = size
		}

		page, err := src.FetchPage(ctx, q, cursor, limit)
		res.Pages++
		if err != nil {
			entry.WithError(err).WithField("collected", len(res.Items)).Warn("pagination stopped")
			res.Partial, res.Err = true, err
			return res
		}
		if len(page.Items) == 0 {
			break
		}

		for _, item := range page.Items {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			res.Items = append(res.Items, item)
			if len(res.Items) >= target {
				break
			}
		}
		entry.WithFields(logging.Fields{"page": res.Pages, "collected": len(res.Items)}).Debug("page fetched")

		if page.Next == "" || page.Next == cursor {
			break
		}
		cursor = page.Next
	}

	return res
}
