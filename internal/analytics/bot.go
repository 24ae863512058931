package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/edgeops/cfaudit/internal/cloudflare"
	"github.com/edgeops/cfaudit/internal/config"
	"github.com/edgeops/cfaudit/internal/daterange"
	"github.com/edgeops/cfaudit/internal/report"
	"github.com/edgeops/cfaudit/internal/zone"
)

const likelyHumanQuery = `query ZoneHttpRequestsAdaptive($zoneTag: string!, $likelyHumanFilter: ZoneHttpRequestsAdaptiveGroupsFilter_InputObject!) {
  viewer {
    zones(filter: {zoneTag: $zoneTag}) {
      likely_human: httpRequestsAdaptiveGroups(filter: $likelyHumanFilter, limit: 10000) {
        count
      }
    }
  }
}`

const botBreakdownQuery = `query BotScoreBreakdown(
  $zoneTag: string!,
  $filter: ZoneHttpRequestsAdaptiveGroupsFilter_InputObject!,
  $automatedFilter: ZoneHttpRequestsAdaptiveGroupsFilter_InputObject!,
  $likelyAutomatedFilter: ZoneHttpRequestsAdaptiveGroupsFilter_InputObject!,
  $likelyHumanFilter: ZoneHttpRequestsAdaptiveGroupsFilter_InputObject!,
  $verifiedBotFilter: ZoneHttpRequestsAdaptiveGroupsFilter_InputObject!
) {
  viewer {
    zones(filter: {zoneTag: $zoneTag}) {
      Total: httpRequestsAdaptiveGroups(filter: $filter, limit: 10000) {
        count
      }
      automated: httpRequestsAdaptiveGroups(filter: {AND: [{botManagementDecision_neq: "verified_bot"}, $automatedFilter]}, limit: 10000) {
        count
      }
      likely_automated: httpRequestsAdaptiveGroups(filter: {AND: [{botManagementDecision_neq: "verified_bot"}, $likelyAutomatedFilter]}, limit: 10000) {
        count
      }
      likely_human: httpRequestsAdaptiveGroups(filter: {AND: [{botManagementDecision_neq: "verified_bot"}, $likelyHumanFilter]}, limit: 10000) {
        count
      }
      verified_bot: httpRequestsAdaptiveGroups(filter: {AND: [{botManagementDecision: "verified_bot"}, $verifiedBotFilter]}, limit: 10000) {
        count
      }
    }
  }
}`

type botCounts struct {
	Total           []countGroup `json:"Total"`
	Automated       []countGroup `json:"automated"`
	LikelyAutomated []countGroup `json:"likely_automated"`
	LikelyHuman     []countGroup `json:"likely_human"`
	VerifiedBot     []countGroup `json:"verified_bot"`
}

// eyeballFilter is the base filter of every bot management count.
func eyeballFilter(extra map[string]any) map[string]any {
	filter := map[string]any{
		"requestSource":             "eyeball",
		"botManagementDecision_neq": "other",
	}
	for k, v := range extra {
		filter[k] = v
	}
	return filter
}

// ZoneCount is the likely human count of one zone; Err is set when the zone
// could not be queried and then Count is not part of any sum.
type ZoneCount struct {
	ZoneID string
	Count  int64
	Err    error
}

// GroupUsage sums a zone group. PrimaryCount and OthersCount are only split
// when the group has a primary zone.
type GroupUsage struct {
	Name         string
	Primary      string
	PrimaryCount int64
	OthersCount  int64
	Total        int64
	Zones        []ZoneCount
}

// BotDay is the likely human usage of one business day.
type BotDay struct {
	Date   time.Time
	Start  time.Time
	End    time.Time
	Groups []GroupUsage

	Skipped *multierror.Error
}

// groupZones lists the primary zone first followed by the other zones.
func groupZones(g config.ZoneGroup) []string {
	var out []string
	if g.Primary != "" {
		out = append(out, g.Primary)
	}
	for _, id := range g.Zones {
		if id != g.Primary {
			out = append(out, id)
		}
	}
	return out
}

// BotUsage counts likely human requests per zone group for each business day
// (05:00 to 04:59:59 KST). Cancellation returns the days completed so far.
func (a *Analyzer) BotUsage(ctx context.Context, dates []time.Time, groups []config.ZoneGroup) ([]BotDay, error) {
	type job struct {
		group int
		zone  string
	}

	var jobs []job
	for gi, g := range groups {
		for _, id := range groupZones(g) {
			jobs = append(jobs, job{group: gi, zone: id})
		}
	}

	var days []BotDay

	for _, date := range dates {
		start, end := daterange.BusinessDay(date)
		log := a.logger.WithField("date", date.Format(daterange.Layout))

		counts := make([]ZoneCount, len(jobs))
		err := a.each(ctx, "Bot usage "+date.Format(daterange.Layout), len(jobs), func(ctx context.Context, i int) {
			id := jobs[i].zone
			count, err := a.likelyHuman(ctx, id, start, end)
			if err != nil && ctx.Err() == nil {
				log.WithField("zone", id).WithError(err).Warn("Couldn't query likely human requests, skipping")
			}
			counts[i] = ZoneCount{ZoneID: id, Count: count, Err: err}
		})
		if err != nil {
			return days, err
		}

		day := BotDay{Date: date, Start: start, End: end}
		for _, g := range groups {
			day.Groups = append(day.Groups, GroupUsage{Name: g.Name, Primary: g.Primary})
		}

		for i, c := range counts {
			usage := &day.Groups[jobs[i].group]
			usage.Zones = append(usage.Zones, c)

			if c.Err != nil {
				day.Skipped = multierror.Append(day.Skipped, errors.Wrap(c.Err, c.ZoneID))
				continue
			}

			if usage.Primary != "" && c.ZoneID == usage.Primary {
				usage.PrimaryCount += c.Count
			} else {
				usage.OthersCount += c.Count
			}
			usage.Total += c.Count
		}

		days = append(days, day)
	}

	return days, nil
}

func (a *Analyzer) likelyHuman(ctx context.Context, zoneID string, start, end time.Time) (int64, error) {
	req := cloudflare.GraphQLRequest{
		Query: likelyHumanQuery,
		Variables: map[string]any{
			"zoneTag": zoneID,
			"likelyHumanFilter": eyeballFilter(map[string]any{
				"botScore_geq": 30,
				"botScore_leq": 99,
				"datetime_geq": daterange.GraphQLTime(start),
				"datetime_leq": daterange.GraphQLTime(end),
			}),
		},
	}

	var data zonesData[botCounts]
	if _, err := a.client.GraphQL(ctx, req, &data); err != nil {
		return 0, err
	}

	z, ok := data.first()
	if !ok {
		return 0, nil
	}

	return firstCount(z.LikelyHuman), nil
}

// BotTable renders one business day in KST.
func BotTable(day BotDay) *report.Table {
	t := &report.Table{
		Title: fmt.Sprintf("[%s ~ %s] Bot Management Usage Summary",
			daterange.KSTTime(day.Start), daterange.KSTTime(day.End)),
		Header: []string{"Group", "Scope", "Likely Human"},
	}

	for _, g := range day.Groups {
		if g.Primary != "" {
			t.Rows = append(t.Rows,
				[]string{g.Name, "primary " + g.Primary, FormatCount(g.PrimaryCount)},
				[]string{g.Name, "others", FormatCount(g.OthersCount)},
			)
		}
		t.Rows = append(t.Rows, []string{g.Name, "total", FormatCount(g.Total)})
	}

	if n := skippedCount(day.Skipped); n > 0 {
		t.Footer = []string{"Skipped zones", fmt.Sprintf("%d", n), ""}
	}

	return t
}

// BotBreakdown holds the bot score classes of one zone over a date range.
type BotBreakdown struct {
	Domain          string `json:"domain"`
	ZoneID          string `json:"zone_id"`
	Total           int64  `json:"total"`
	Automated       int64  `json:"automated"`
	LikelyAutomated int64  `json:"likely_automated"`
	LikelyHuman     int64  `json:"likely_human"`
	VerifiedBot     int64  `json:"verified_bot"`
	Status          string `json:"status"`
}

// BotBreakdowns queries every zone and archives each raw response under
// rawDir as bot_<start>_<end>_<zone>.json. A zone that fails keeps its
// status and zero counts.
func (a *Analyzer) BotBreakdowns(ctx context.Context, zones []zone.Info, r daterange.DateRange, rawDir string) ([]BotBreakdown, error) {
	results := make([]BotBreakdown, len(zones))

	err := a.each(ctx, "Bot breakdown", len(zones), func(ctx context.Context, i int) {
		z := zones[i]
		results[i] = BotBreakdown{Domain: z.Domain, ZoneID: z.ZoneID, Status: StatusOK}
		log := a.logger.WithField("zone", z.Domain)

		var data zonesData[botCounts]
		raw, err := a.client.GraphQL(ctx, botBreakdownRequest(z.ZoneID, r), &data)

		if len(raw) > 0 && rawDir != "" {
			path := filepath.Join(rawDir, fmt.Sprintf("bot_%s_%s_%s.json", r.StartDate(), r.EndDate(), z.ZoneID))
			if saveErr := report.WriteJSON(path, json.RawMessage(raw)); saveErr != nil {
				log.WithError(saveErr).Warn("Couldn't save raw response")
			} else {
				log.WithField("file", path).Debug("Raw response saved")
			}
		}

		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("Couldn't query bot score breakdown")
			}
			results[i].Status = statusOf(err)
			return
		}

		counts, ok := data.first()
		if !ok {
			results[i].Status = StatusNoData
			return
		}

		results[i].Total = firstCount(counts.Total)
		results[i].Automated = firstCount(counts.Automated)
		results[i].LikelyAutomated = firstCount(counts.LikelyAutomated)
		results[i].LikelyHuman = firstCount(counts.LikelyHuman)
		results[i].VerifiedBot = firstCount(counts.VerifiedBot)
	})

	return results, err
}

func botBreakdownRequest(zoneID string, r daterange.DateRange) cloudflare.GraphQLRequest {
	dates := func(extra map[string]any) map[string]any {
		extra["date_geq"] = r.StartDate()
		extra["date_leq"] = r.EndDate()
		return eyeballFilter(extra)
	}

	return cloudflare.GraphQLRequest{
		Query: botBreakdownQuery,
		Variables: map[string]any{
			"zoneTag":               zoneID,
			"filter":                dates(map[string]any{}),
			"automatedFilter":       dates(map[string]any{"botScore": 1}),
			"likelyAutomatedFilter": dates(map[string]any{"botScore_geq": 2, "botScore_leq": 29}),
			"likelyHumanFilter":     dates(map[string]any{"botScore_geq": 30, "botScore_leq": 99}),
			"verifiedBotFilter":     dates(map[string]any{"botScoreSrcName": "verified_bot"}),
		},
	}
}

// BotBreakdownTable lists every zone with the likely human total as footer.
func BotBreakdownTable(r daterange.DateRange, results []BotBreakdown) *report.Table {
	t := &report.Table{
		Title:  fmt.Sprintf("Bot score breakdown %s", r),
		Header: []string{"Domain", "Zone ID", "Total", "Automated", "Likely Automated", "Likely Human", "Verified Bot", "Status"},
	}

	var likelyHuman int64
	for _, b := range results {
		t.Rows = append(t.Rows, []string{
			b.Domain,
			b.ZoneID,
			FormatCount(b.Total),
			FormatCount(b.Automated),
			FormatCount(b.LikelyAutomated),
			FormatCount(b.LikelyHuman),
			FormatCount(b.VerifiedBot),
			b.Status,
		})
		likelyHuman += b.LikelyHuman
	}

	t.Footer = []string{"Total likely human", "", "", "", "", FormatCount(likelyHuman), "", ""}

	return t
}

func skippedCount(err *multierror.Error) int {
	if err == nil {
		return 0
	}
	return len(err.Errors)
}
