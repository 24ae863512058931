package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/edgeops/cfaudit/internal/daterange"
)

func TestDNSQueries(t *testing.T) {
	var windows [][2]time.Time

	client := &fakeClient{
		dns: func(zoneID string, since, until time.Time) (int64, error) {
			if zoneID == "broken" {
				return 0, errors.New("HTTP 500")
			}
			windows = append(windows, [2]time.Time{since, until})
			return int64(len(zoneID)) * 100, nil
		},
	}

	first, _ := daterange.New("2024-06-18", "2024-07-17")
	second, _ := daterange.New("2024-07-18", "2024-08-17")

	periods, err := newTestAnalyzer(client, 1).DNSQueries(context.Background(), []string{"z1", "broken", "zone3"}, []daterange.DateRange{first, second})
	if err != nil {
		t.Fatalf("DNSQueries: %v", err)
	}
	if len(periods) != 2 {
		t.Fatalf("got %d periods, want 2", len(periods))
	}

	p := periods[0]
	if p.Total != 700 {
		t.Errorf("got total %d, want 700", p.Total)
	}
	if !p.Zones[1].Partial || p.Zones[0].QueryCount != 200 || p.Zones[2].QueryCount != 500 {
		t.Errorf("unexpected zones: %+v", p.Zones)
	}
	if !windows[0][0].Equal(first.Start) || !windows[0][1].Equal(first.End) {
		t.Errorf("unexpected query window: %v", windows[0])
	}

	raw, err := json.Marshal(DNSResultsByPeriod(periods))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var saved map[string]struct {
		QueryPeriod string `json:"query_period"`
		ZoneData    []struct {
			ZoneID     string          `json:"zone_id"`
			QueryCount any             `json:"query_count"`
			FullResult json.RawMessage `json:"full_result"`
		} `json:"zone_data"`
		Total int64 `json:"total_query_count"`
	}
	if err = json.Unmarshal(raw, &saved); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	period, ok := saved["2024-06-18_2024-07-17"]
	if !ok {
		t.Fatalf("period key missing: %s", raw)
	}
	if period.QueryPeriod != "2024-06-18 ~ 2024-07-17" || period.Total != 700 {
		t.Errorf("unexpected period: %+v", period)
	}
	if period.ZoneData[1].QueryCount != StatusDNSPartial {
		t.Errorf("partial zone saved as %v", period.ZoneData[1].QueryCount)
	}
	if period.ZoneData[0].QueryCount != float64(200) {
		t.Errorf("zone count saved as %v", period.ZoneData[0].QueryCount)
	}

	table := DNSTable(p)
	if table.Rows[1][1] != StatusDNSPartial || table.Footer[1] != "700" {
		t.Errorf("unexpected table: %v %v", table.Rows, table.Footer)
	}
}

func TestDNSQueriesKeepsFinishedPeriods(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	client := &fakeClient{
		dns: func(zoneID string, since, until time.Time) (int64, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return 1, nil
		},
	}

	first, _ := daterange.New("2024-06-18", "2024-07-17")
	second, _ := daterange.New("2024-07-18", "2024-08-17")

	periods, err := newTestAnalyzer(client, 1).DNSQueries(ctx, []string{"z1"}, []daterange.DateRange{first, second})
	if err == nil {
		t.Fatalf("expected an error after cancellation")
	}
	if len(periods) != 1 || periods[0].Total != 1 {
		t.Errorf("finished period must be kept: %+v", periods)
	}
}
