package rules

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/edgeops/cfaudit/internal/cloudflare"
	"github.com/edgeops/cfaudit/internal/platform"
	"github.com/edgeops/cfaudit/internal/zone"
)

// Source fetches rulesets of an account or a zone.
type Source interface {
	ListRulesets(ctx context.Context, scope cloudflare.Scope) ([]cloudflare.Ruleset, error)
	GetRuleset(ctx context.Context, scope cloudflare.Scope, rulesetID string) (*cloudflare.Ruleset, error)
}

// Target is one ruleset owner. Owner is the label written to the Domain
// column of every record found there.
type Target struct {
	Owner string
	Scope cloudflare.Scope
}

func AccountTarget(accountID string) Target {
	return Target{Owner: AccountLevel, Scope: cloudflare.AccountScope(accountID)}
}

func ZoneTargets(zones []zone.Info) []Target {
	targets := make([]Target, 0, len(zones))
	for _, z := range zones {
		targets = append(targets, Target{Owner: z.Domain, Scope: cloudflare.ZoneScope(z.ZoneID)})
	}
	return targets
}

type Result struct {
	Details  []Details
	Rulesets int
	Rules    int

	// Skipped holds one error per owner or ruleset that could not be fetched.
	Skipped *multierror.Error
}

func (r *Result) SkippedCount() int {
	if r.Skipped == nil {
		return 0
	}
	return len(r.Skipped.Errors)
}

type Finder struct {
	source       Source
	matcher      Matcher
	logger       *logrus.Logger
	workers      int
	hideProgress bool
}

func NewFinder(source Source, matcher Matcher, logger *logrus.Logger, workers int, hideProgress bool) *Finder {
	if workers < 1 {
		workers = 1
	}

	return &Finder{
		source:       source,
		matcher:      matcher,
		logger:       logger,
		workers:      workers,
		hideProgress: hideProgress,
	}
}

type targetResult struct {
	details  []Details
	rulesets int
	rules    int
	skipped  []error
}

// Scan fetches every ruleset of every target and matches its rules. Records
// keep target order regardless of the worker count. Fetch failures skip the
// affected owner or ruleset; only cancellation aborts the scan, in which case
// the records collected so far are returned with the context error.
func (f *Finder) Scan(ctx context.Context, targets []Target) (*Result, error) {
	results := make([]targetResult, len(targets))

	bar := platform.NewProgressBar("Scanning rulesets", "owner", len(targets), f.hideProgress)
	var barMu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for i, target := range targets {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			results[i] = f.scanTarget(gCtx, target)

			barMu.Lock()
			bar.Add(1)
			barMu.Unlock()

			return gCtx.Err()
		})
	}

	waitErr := g.Wait()
	bar.Finish()

	result := &Result{}
	for _, r := range results {
		result.Details = append(result.Details, r.details...)
		result.Rulesets += r.rulesets
		result.Rules += r.rules
		for _, err := range r.skipped {
			result.Skipped = multierror.Append(result.Skipped, err)
		}
	}

	if waitErr != nil {
		return result, errors.Wrap(waitErr, "scan interrupted")
	}

	return result, nil
}

func (f *Finder) scanTarget(ctx context.Context, target Target) targetResult {
	var res targetResult

	log := f.logger.WithField("owner", target.Owner)
	if !target.Scope.IsAccount() {
		log = log.WithField("zone", target.Scope.ID())
	}

	log.Debug("Listing rulesets")

	headers, err := f.source.ListRulesets(ctx, target.Scope)
	if err != nil {
		if ctx.Err() != nil {
			return res
		}
		log.WithError(err).Warn("Couldn't list rulesets, skipping")
		res.skipped = append(res.skipped, errors.Wrap(err, target.Owner))
		return res
	}

	for i := range headers {
		header := &headers[i]
		rsLog := log.WithField("ruleset", header.Name)

		full, err := f.source.GetRuleset(ctx, target.Scope, header.ID)
		if err != nil {
			if ctx.Err() != nil {
				return res
			}
			rsLog.WithError(err).Warn("Couldn't get ruleset details, skipping")
			res.skipped = append(res.skipped, errors.Wrapf(err, "%s: %s", target.Owner, header.Name))
			continue
		}

		res.rulesets++

		// Records carry the name and phase from the listing.
		named := *full
		named.Name, named.Phase = header.Name, header.Phase

		for j := range full.Rules {
			res.rules++
			res.details = append(res.details, f.matcher.Match(target.Owner, &named, &full.Rules[j])...)
		}

		rsLog.WithField("rules", len(full.Rules)).Debug("Ruleset checked")
	}

	return res
}
