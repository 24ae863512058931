package analytics

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/edgeops/cfaudit/internal/cloudflare"
	"github.com/edgeops/cfaudit/internal/daterange"
	"github.com/edgeops/cfaudit/internal/report"
	"github.com/edgeops/cfaudit/internal/zone"
)

const countryTrafficQuery = `query ZoneTrafficByCountry($zoneTag: string!, $filter: ZoneHttpRequestsOverviewAdaptiveGroupsFilter_InputObject!) {
  viewer {
    zones(filter: {zoneTag: $zoneTag}) {
      httpRequestsOverviewAdaptiveGroups(limit: 10000, filter: $filter) {
        dimensions {
          clientCountryName
        }
        sum {
          bytes
          requests
        }
      }
    }
  }
}`

const zoneTrafficQuery = `query ZoneTraffic($zoneTag: string!, $filter: ZoneHttpRequestsOverviewAdaptiveGroupsFilter_InputObject!) {
  viewer {
    zones(filter: {zoneTag: $zoneTag}) {
      httpRequestsOverviewAdaptiveGroups(limit: 10000, filter: $filter) {
        sum {
          bytes
          requests
        }
      }
    }
  }
}`

type trafficSum struct {
	Bytes    int64 `json:"bytes"`
	Requests int64 `json:"requests"`
}

type trafficGroup struct {
	Dimensions struct {
		ClientCountryName string `json:"clientCountryName"`
	} `json:"dimensions"`
	Sum trafficSum `json:"sum"`
}

type trafficZone struct {
	Groups []trafficGroup `json:"httpRequestsOverviewAdaptiveGroups"`
}

func trafficRequest(query, zoneID string, r daterange.DateRange) cloudflare.GraphQLRequest {
	return cloudflare.GraphQLRequest{
		Query: query,
		Variables: map[string]any{
			"zoneTag": zoneID,
			"filter": map[string]any{
				"date_geq": r.StartDate(),
				"date_leq": r.EndDate(),
			},
		},
	}
}

type CountryTraffic struct {
	Country  string
	Bytes    int64
	Requests int64
}

// CountryReport sums traffic per client country over all queried zones.
// Countries keep the order in which they were first seen.
type CountryReport struct {
	Countries []CountryTraffic
	Bytes     int64
	Requests  int64

	Skipped *multierror.Error
}

// Countries queries every zone and merges their per-country sums.
func (a *Analyzer) Countries(ctx context.Context, zones []zone.Info, r daterange.DateRange) (*CountryReport, error) {
	type zoneResult struct {
		groups []trafficGroup
		err    error
	}

	results := make([]zoneResult, len(zones))

	err := a.each(ctx, "Country traffic", len(zones), func(ctx context.Context, i int) {
		var data zonesData[trafficZone]
		_, qErr := a.client.GraphQL(ctx, trafficRequest(countryTrafficQuery, zones[i].ZoneID, r), &data)
		if qErr != nil {
			if ctx.Err() == nil {
				a.logger.WithField("zone", zones[i].Domain).WithError(qErr).Warn("Couldn't query country traffic, skipping")
			}
			results[i].err = errors.Wrap(qErr, zones[i].Domain)
			return
		}

		if z, ok := data.first(); ok {
			results[i].groups = z.Groups
		}
	})

	rep := &CountryReport{}
	index := make(map[string]int)

	for _, res := range results {
		if res.err != nil {
			rep.Skipped = multierror.Append(rep.Skipped, res.err)
			continue
		}

		for _, g := range res.groups {
			country := g.Dimensions.ClientCountryName
			pos, ok := index[country]
			if !ok {
				pos = len(rep.Countries)
				index[country] = pos
				rep.Countries = append(rep.Countries, CountryTraffic{Country: country})
			}

			rep.Countries[pos].Bytes += g.Sum.Bytes
			rep.Countries[pos].Requests += g.Sum.Requests
			rep.Bytes += g.Sum.Bytes
			rep.Requests += g.Sum.Requests
		}
	}

	return rep, err
}

// Table lists raw and formatted values with a Total row, the CSV layout of
// the country report.
func (r *CountryReport) Table() *report.Table {
	t := &report.Table{
		Title:  "Traffic by country",
		Header: []string{"Country", "Bytes", "Formatted Bytes", "Requests", "Formatted Requests"},
	}

	for _, c := range r.Countries {
		t.Rows = append(t.Rows, []string{
			c.Country,
			fmt.Sprintf("%d", c.Bytes),
			FormatBytes(float64(c.Bytes)),
			fmt.Sprintf("%d", c.Requests),
			FormatRequests(c.Requests),
		})
	}

	t.Footer = []string{
		"Total",
		fmt.Sprintf("%d", r.Bytes),
		FormatBytes(float64(r.Bytes)),
		fmt.Sprintf("%d", r.Requests),
		FormatRequests(r.Requests),
	}

	return t
}

type ZoneTraffic struct {
	Domain   string
	ZoneID   string
	Bytes    int64
	Requests int64
	Status   string
}

// TrafficReport holds per-zone sums. Only zones with status OK are counted
// in the totals.
type TrafficReport struct {
	Zones    []ZoneTraffic
	Counted  int
	Bytes    int64
	Requests int64
}

// Traffic queries the bytes and requests of every zone.
func (a *Analyzer) Traffic(ctx context.Context, zones []zone.Info, r daterange.DateRange) (*TrafficReport, error) {
	results := make([]ZoneTraffic, len(zones))

	err := a.each(ctx, "Zone traffic", len(zones), func(ctx context.Context, i int) {
		z := zones[i]
		results[i] = ZoneTraffic{Domain: z.Domain, ZoneID: z.ZoneID, Status: StatusOK}

		var data zonesData[trafficZone]
		_, qErr := a.client.GraphQL(ctx, trafficRequest(zoneTrafficQuery, z.ZoneID, r), &data)
		if qErr != nil {
			if ctx.Err() == nil {
				a.logger.WithField("zone", z.Domain).WithError(qErr).Warn("Couldn't query zone traffic")
			}
			results[i].Status = statusOf(qErr)
			return
		}

		tz, ok := data.first()
		if !ok || len(tz.Groups) == 0 {
			results[i].Status = StatusNoData
			return
		}

		results[i].Bytes = tz.Groups[0].Sum.Bytes
		results[i].Requests = tz.Groups[0].Sum.Requests
	})

	rep := &TrafficReport{Zones: results}
	for _, z := range results {
		if z.Status != StatusOK {
			continue
		}
		rep.Counted++
		rep.Bytes += z.Bytes
		rep.Requests += z.Requests
	}

	return rep, err
}

func (r *TrafficReport) Table() *report.Table {
	t := &report.Table{
		Title:  "Traffic by zone",
		Header: []string{"Domain", "Zone ID", "Bytes", "Converted", "Requests", "Requests (Millions)", "Status"},
	}

	for _, z := range r.Zones {
		t.Rows = append(t.Rows, []string{
			z.Domain,
			z.ZoneID,
			fmt.Sprintf("%d", z.Bytes),
			FormatBytes(float64(z.Bytes)),
			fmt.Sprintf("%d", z.Requests),
			fmt.Sprintf("%.2fM", float64(z.Requests)/1e6),
			z.Status,
		})
	}

	t.Footer = []string{
		fmt.Sprintf("Total (%d zones)", r.Counted),
		"",
		fmt.Sprintf("%d", r.Bytes),
		FormatBytes(float64(r.Bytes)),
		fmt.Sprintf("%d", r.Requests),
		fmt.Sprintf("%.2fM", float64(r.Requests)/1e6),
		"",
	}

	return t
}
