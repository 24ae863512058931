package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/edgeops/cfaudit/internal/cloudflare"
	"github.com/edgeops/cfaudit/internal/daterange"
	"github.com/edgeops/cfaudit/internal/zone"
)

var trafficZones = []zone.Info{
	{Domain: "one.com", ZoneID: "z1"},
	{Domain: "two.com", ZoneID: "z2"},
	{Domain: "three.com", ZoneID: "z3"},
}

func testRange(t *testing.T) daterange.DateRange {
	t.Helper()

	r, err := daterange.New("2024-03-01", "2024-03-31")
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestCountries(t *testing.T) {
	responses := map[string]string{
		"z1": `{"viewer":{"zones":[{"httpRequestsOverviewAdaptiveGroups":[
			{"dimensions":{"clientCountryName":"KR"},"sum":{"bytes":1000,"requests":10}},
			{"dimensions":{"clientCountryName":"US"},"sum":{"bytes":500,"requests":5}}
		]}]}}`,
		"z2": `{"viewer":{"zones":[{"httpRequestsOverviewAdaptiveGroups":[
			{"dimensions":{"clientCountryName":"JP"},"sum":{"bytes":1,"requests":1}},
			{"dimensions":{"clientCountryName":"KR"},"sum":{"bytes":2000,"requests":20}}
		]}]}}`,
	}

	client := &fakeClient{
		graphql: func(req cloudflare.GraphQLRequest) (string, error) {
			body, ok := responses[zoneTag(req)]
			if !ok {
				return "", errors.New("zone not found")
			}
			return body, nil
		},
	}

	rep, err := newTestAnalyzer(client, 3).Countries(context.Background(), trafficZones, testRange(t))
	if err != nil {
		t.Fatalf("Countries: %v", err)
	}

	want := []CountryTraffic{
		{Country: "KR", Bytes: 3000, Requests: 30},
		{Country: "US", Bytes: 500, Requests: 5},
		{Country: "JP", Bytes: 1, Requests: 1},
	}
	if len(rep.Countries) != len(want) {
		t.Fatalf("got %+v, want %+v", rep.Countries, want)
	}
	for i := range want {
		if rep.Countries[i] != want[i] {
			t.Errorf("country %d: got %+v, want %+v", i, rep.Countries[i], want[i])
		}
	}

	if rep.Bytes != 3501 || rep.Requests != 36 {
		t.Errorf("unexpected totals: %d bytes, %d requests", rep.Bytes, rep.Requests)
	}
	if rep.Skipped == nil || len(rep.Skipped.Errors) != 1 {
		t.Errorf("z3 must be skipped: %v", rep.Skipped)
	}

	table := rep.Table()
	if table.Header[2] != "Formatted Bytes" || table.Rows[0][2] != "3.00 KB" {
		t.Errorf("unexpected table rows: %v", table.Rows)
	}
	if table.Footer[0] != "Total" || table.Footer[1] != "3501" {
		t.Errorf("unexpected footer: %v", table.Footer)
	}
}

func TestTraffic(t *testing.T) {
	client := &fakeClient{
		graphql: func(req cloudflare.GraphQLRequest) (string, error) {
			switch zoneTag(req) {
			case "z1":
				return `{"viewer":{"zones":[{"httpRequestsOverviewAdaptiveGroups":[{"sum":{"bytes":2500000,"requests":1500000}}]}]}}`, nil
			case "z2":
				return `{"viewer":{"zones":[{"httpRequestsOverviewAdaptiveGroups":[]}]}}`, nil
			default:
				return "", &cloudflare.GraphQLError{Messages: []string{"does not have access to the field"}}
			}
		},
	}

	rep, err := newTestAnalyzer(client, 1).Traffic(context.Background(), trafficZones, testRange(t))
	if err != nil {
		t.Fatalf("Traffic: %v", err)
	}

	statuses := []string{StatusOK, StatusNoData, StatusAccessRestricted}
	for i, want := range statuses {
		if rep.Zones[i].Status != want {
			t.Errorf("zone %d: status %q, want %q", i, rep.Zones[i].Status, want)
		}
	}

	if rep.Counted != 1 || rep.Bytes != 2_500_000 || rep.Requests != 1_500_000 {
		t.Errorf("unexpected totals: %+v", rep)
	}

	filter, _ := client.requests[0].Variables["filter"].(map[string]any)
	if filter["date_geq"] != "2024-03-01" || filter["date_leq"] != "2024-03-31" {
		t.Errorf("unexpected filter: %v", filter)
	}

	table := rep.Table()
	if table.Rows[0][3] != "2.50 MB" || table.Rows[0][5] != "1.50M" {
		t.Errorf("unexpected first row: %v", table.Rows[0])
	}
}
