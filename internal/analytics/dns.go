package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edgeops/cfaudit/internal/daterange"
	"github.com/edgeops/cfaudit/internal/report"
)

// DNSZoneResult is the query count of one zone in one period. A partial
// result is saved with query_count "DNS partial" and is left out of the
// period total.
type DNSZoneResult struct {
	ZoneID     string
	QueryCount int64
	Partial    bool
	FullResult json.RawMessage
}

func (z DNSZoneResult) MarshalJSON() ([]byte, error) {
	out := struct {
		ZoneID     string          `json:"zone_id"`
		QueryCount any             `json:"query_count"`
		FullResult json.RawMessage `json:"full_result"`
	}{
		ZoneID:     z.ZoneID,
		QueryCount: z.QueryCount,
		FullResult: z.FullResult,
	}

	if z.Partial {
		out.QueryCount = StatusDNSPartial
		out.FullResult = json.RawMessage(fmt.Sprintf(`{"error":%q}`, StatusDNSPartial))
	}
	if len(out.FullResult) == 0 {
		out.FullResult = json.RawMessage("null")
	}

	return json.Marshal(out)
}

type DNSPeriod struct {
	Range daterange.DateRange `json:"-"`

	QueryPeriod string          `json:"query_period"`
	Zones       []DNSZoneResult `json:"zone_data"`
	Total       int64           `json:"total_query_count"`
}

// DNSQueries reads DNS analytics query counts of every zone for each
// period. Periods finished before a cancellation are returned with the
// error, so they can still be saved.
func (a *Analyzer) DNSQueries(ctx context.Context, zoneIDs []string, periods []daterange.DateRange) ([]DNSPeriod, error) {
	var out []DNSPeriod

	for _, r := range periods {
		log := a.logger.WithField("range", r.String())

		results := make([]DNSZoneResult, len(zoneIDs))
		err := a.each(ctx, "DNS queries "+r.Key(), len(zoneIDs), func(ctx context.Context, i int) {
			id := zoneIDs[i]
			results[i].ZoneID = id

			rep, raw, err := a.client.DNSQueryCount(ctx, id, r.Start, r.End)
			if err != nil {
				if ctx.Err() == nil {
					log.WithField("zone", id).WithError(err).Warn("Couldn't read DNS analytics, zone is partial")
				}
				results[i].Partial = true
				return
			}

			results[i].QueryCount = rep.QueryCount()
			results[i].FullResult = raw
		})
		if err != nil {
			return out, err
		}

		period := DNSPeriod{
			Range:       r,
			QueryPeriod: r.String(),
			Zones:       results,
		}
		for _, z := range results {
			if !z.Partial {
				period.Total += z.QueryCount
			}
		}

		out = append(out, period)
	}

	return out, nil
}

// DNSResultsByPeriod keys the periods the way the saved file stores them.
func DNSResultsByPeriod(periods []DNSPeriod) map[string]DNSPeriod {
	out := make(map[string]DNSPeriod, len(periods))
	for _, p := range periods {
		out[p.Range.Key()] = p
	}
	return out
}

func DNSTable(p DNSPeriod) *report.Table {
	t := &report.Table{
		Title:  fmt.Sprintf("DNS queries %s", p.QueryPeriod),
		Header: []string{"Zone ID", "Query Count"},
		Footer: []string{"Total", fmt.Sprintf("%d", p.Total)},
	}

	for _, z := range p.Zones {
		count := fmt.Sprintf("%d", z.QueryCount)
		if z.Partial {
			count = StatusDNSPartial
		}
		t.Rows = append(t.Rows, []string{z.ZoneID, count})
	}

	return t
}
