package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/edgeops/cfaudit/internal/cloudflare"
	"github.com/edgeops/cfaudit/internal/platform"
)

// Per-item outcomes shown next to zones whose numbers could not be read.
const (
	StatusOK               = "OK"
	StatusAccessRestricted = "Access Restricted"
	StatusError            = "Error occurred"
	StatusNoData           = "No data available"
	StatusDNSPartial       = "DNS partial"
)

// Client is the part of the Cloudflare API the analytics reports use.
type Client interface {
	GraphQL(ctx context.Context, req cloudflare.GraphQLRequest, data any) (json.RawMessage, error)
	DNSQueryCount(ctx context.Context, zoneID string, since, until time.Time) (*cloudflare.DNSReport, json.RawMessage, error)
}

type Analyzer struct {
	client       Client
	logger       *logrus.Logger
	workers      int
	hideProgress bool
}

func NewAnalyzer(client Client, logger *logrus.Logger, workers int, hideProgress bool) *Analyzer {
	if workers < 1 {
		workers = 1
	}

	return &Analyzer{
		client:       client,
		logger:       logger,
		workers:      workers,
		hideProgress: hideProgress,
	}
}

// each calls fn for every index below n with at most a.workers calls in
// flight. fn stores its own result by index, so callers keep input order.
func (a *Analyzer) each(ctx context.Context, description string, n int, fn func(ctx context.Context, i int)) error {
	bar := platform.NewProgressBar(description, "zone", n, a.hideProgress)
	var barMu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			fn(gCtx, i)

			barMu.Lock()
			bar.Add(1)
			barMu.Unlock()

			return gCtx.Err()
		})
	}

	err := g.Wait()
	bar.Finish()

	if err != nil {
		return errors.Wrap(err, "query interrupted")
	}

	return nil
}

// statusOf maps a failed query to the label printed in place of its numbers.
func statusOf(err error) string {
	var gqlErr *cloudflare.GraphQLError
	if errors.As(err, &gqlErr) && gqlErr.IsAccessRestricted() {
		return StatusAccessRestricted
	}

	return StatusError
}

// Response shapes shared by the zone and account scoped queries.

type zonesData[T any] struct {
	Viewer struct {
		Zones []T `json:"zones"`
	} `json:"viewer"`
}

func (d *zonesData[T]) first() (*T, bool) {
	if len(d.Viewer.Zones) == 0 {
		return nil, false
	}
	return &d.Viewer.Zones[0], true
}

type accountsData[T any] struct {
	Viewer struct {
		Accounts []T `json:"accounts"`
	} `json:"viewer"`
}

func (d *accountsData[T]) first() (*T, bool) {
	if len(d.Viewer.Accounts) == 0 {
		return nil, false
	}
	return &d.Viewer.Accounts[0], true
}

type countGroup struct {
	Count int64 `json:"count"`
}

func firstCount(groups []countGroup) int64 {
	if len(groups) == 0 {
		return 0
	}
	return groups[0].Count
}
