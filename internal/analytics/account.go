package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/edgeops/cfaudit/internal/cloudflare"
	"github.com/edgeops/cfaudit/internal/daterange"
	"github.com/edgeops/cfaudit/internal/report"
)

// MaxKVRangeDays bounds the Workers KV query range.
const MaxKVRangeDays = 365

const kvUsageQuery = `query KVOperationsSummaryByAccount($accountTag: string!, $fromDatetimeMinute: Time, $toDatetimeMinute: Time) {
  viewer {
    accounts(filter: {accountTag: $accountTag}) {
      reads: kvOperationsAdaptiveGroups(limit: 1, filter: {actionType: "read", datetimeMinute_geq: $fromDatetimeMinute, datetimeMinute_leq: $toDatetimeMinute}) {
        sum {
          requests
        }
      }
      writes: kvOperationsAdaptiveGroups(limit: 1, filter: {actionType: "write", datetimeMinute_geq: $fromDatetimeMinute, datetimeMinute_leq: $toDatetimeMinute}) {
        sum {
          requests
        }
      }
      lists: kvOperationsAdaptiveGroups(limit: 1, filter: {actionType: "list", datetimeMinute_geq: $fromDatetimeMinute, datetimeMinute_leq: $toDatetimeMinute}) {
        sum {
          requests
        }
      }
      deletes: kvOperationsAdaptiveGroups(limit: 1, filter: {actionType: "delete", datetimeMinute_geq: $fromDatetimeMinute, datetimeMinute_leq: $toDatetimeMinute}) {
        sum {
          requests
        }
      }
      storage: kvStorageAdaptiveGroups(limit: 744, filter: {datetimeMinute_geq: $fromDatetimeMinute, datetimeMinute_leq: $toDatetimeMinute}) {
        max {
          byteCount
        }
      }
    }
  }
}`

const workersUsageQuery = `query WorkersBillingMetrics($accountTag: string!, $filter: AccountWorkersInvocationsAdaptiveFilter_InputObject, $overviewFilter: AccountWorkersOverviewRequestsAdaptiveGroupsFilter_InputObject) {
  viewer {
    accounts(filter: {accountTag: $accountTag}) {
      workersInvocationsAdaptive(limit: 10000, filter: $filter) {
        sum {
          standardRequests: requests
        }
        dimensions {
          usageModel
        }
      }
      workersOverviewRequestsAdaptiveGroups(limit: 1000, filter: $overviewFilter) {
        sum {
          cpuTime: cpuTimeUs
        }
        dimensions {
          usageModel
        }
      }
    }
  }
}`

const streamUsageQuery = `query StreamMinutesViewed($accountTag: string!, $filter: AccountStreamMinutesViewedAdaptiveGroupsFilter_InputObject!) {
  viewer {
    accounts(filter: {accountTag: $accountTag}) {
      Total: streamMinutesViewedAdaptiveGroups(filter: $filter, limit: 10000) {
        sum {
          minutesViewed
        }
      }
    }
  }
}`

// Usage models the Workers billing metrics are read for.
const (
	standardUsageModel = "standard"
	overviewUsageModel = "3"
)

type requestsGroup struct {
	Sum struct {
		Requests int64 `json:"requests"`
	} `json:"sum"`
}

type kvAccount struct {
	Reads   []requestsGroup `json:"reads"`
	Writes  []requestsGroup `json:"writes"`
	Lists   []requestsGroup `json:"lists"`
	Deletes []requestsGroup `json:"deletes"`
	Storage []struct {
		Max struct {
			ByteCount *int64 `json:"byteCount"`
		} `json:"max"`
	} `json:"storage"`
}

func firstRequests(groups []requestsGroup) int64 {
	if len(groups) == 0 {
		return 0
	}
	return groups[0].Sum.Requests
}

// KVUsage is the Workers KV operation counts of an account. StorageBytes is
// nil when the API reported no storage sample.
type KVUsage struct {
	Reads        int64  `json:"reads"`
	Writes       int64  `json:"writes"`
	Lists        int64  `json:"lists"`
	Deletes      int64  `json:"deletes"`
	StorageBytes *int64 `json:"storage_bytes"`
}

// KVUsage queries KV operations from the first minute of the start day to
// the last second of the end day. The range may not exceed a year nor end
// after now. The raw response is returned whenever the API answered.
func (a *Analyzer) KVUsage(ctx context.Context, accountID string, r daterange.DateRange, now time.Time) (*KVUsage, json.RawMessage, error) {
	if err := r.CheckLimits(MaxKVRangeDays, now); err != nil {
		return nil, nil, err
	}

	req := cloudflare.GraphQLRequest{
		Query: kvUsageQuery,
		Variables: map[string]any{
			"accountTag":         accountID,
			"fromDatetimeMinute": daterange.GraphQLTime(r.Start),
			"toDatetimeMinute":   daterange.GraphQLTime(r.EndOfDay()),
		},
	}

	a.logger.WithField("account", accountID).WithField("range", r.String()).Debug("Querying Workers KV usage")

	var data accountsData[kvAccount]
	raw, err := a.client.GraphQL(ctx, req, &data)
	if err != nil {
		return nil, raw, errors.Wrap(err, "couldn't query Workers KV usage")
	}

	acc, ok := data.first()
	if !ok {
		return nil, raw, errors.Errorf("no account data for %s", accountID)
	}

	usage := &KVUsage{
		Reads:   firstRequests(acc.Reads),
		Writes:  firstRequests(acc.Writes),
		Lists:   firstRequests(acc.Lists),
		Deletes: firstRequests(acc.Deletes),
	}
	if len(acc.Storage) > 0 {
		usage.StorageBytes = acc.Storage[0].Max.ByteCount
	}

	return usage, raw, nil
}

func (u *KVUsage) Table(r daterange.DateRange) *report.Table {
	storage := "N/A"
	if u.StorageBytes != nil {
		storage = fmt.Sprintf("%.2f GB", Gigabytes(*u.StorageBytes))
	}

	return &report.Table{
		Title:  fmt.Sprintf("Workers KV usage %s", r),
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Read operations", fmt.Sprintf("%.2f MM", Millions(u.Reads))},
			{"Storage (current)", storage},
			{"Write operations", fmt.Sprintf("%.2f MM", Millions(u.Writes))},
			{"List operations", fmt.Sprintf("%.2f MM", Millions(u.Lists))},
			{"Delete operations", fmt.Sprintf("%.2f MM", Millions(u.Deletes))},
		},
	}
}

type workersAccount struct {
	Invocations []struct {
		Sum struct {
			StandardRequests int64 `json:"standardRequests"`
		} `json:"sum"`
		Dimensions usageDimensions `json:"dimensions"`
	} `json:"workersInvocationsAdaptive"`
	Overview []struct {
		Sum struct {
			CPUTime int64 `json:"cpuTime"`
		} `json:"sum"`
		Dimensions usageDimensions `json:"dimensions"`
	} `json:"workersOverviewRequestsAdaptiveGroups"`
}

// usageDimensions keeps usageModel raw: the invocations dataset reports it as
// a string, the overview dataset as a number.
type usageDimensions struct {
	UsageModel json.RawMessage `json:"usageModel"`
}

func (d usageDimensions) is(model string) bool {
	var s string
	if err := json.Unmarshal(d.UsageModel, &s); err == nil {
		return s == model
	}
	return strings.TrimSpace(string(d.UsageModel)) == model
}

// WorkersUsage holds the billed Workers metrics; a nil member was not found
// in the response.
type WorkersUsage struct {
	StandardRequests *int64 `json:"standard_requests"`
	CPUTimeUs        *int64 `json:"cpu_time_us"`
}

// WorkersUsage reads standard usage model requests and CPU time of an
// account. CPU time is read from 00:00 UTC of the start day to 15:00 UTC of
// the end day, the end of the KST billing day.
func (a *Analyzer) WorkersUsage(ctx context.Context, accountID string, r daterange.DateRange) (*WorkersUsage, json.RawMessage, error) {
	req := cloudflare.GraphQLRequest{
		Query: workersUsageQuery,
		Variables: map[string]any{
			"accountTag": accountID,
			"filter": map[string]any{
				"date_geq": r.StartDate(),
				"date_leq": r.EndDate(),
			},
			"overviewFilter": map[string]any{
				"datetime_geq": r.StartDate() + "T00:00:00.000Z",
				"datetime_leq": r.EndDate() + "T15:00:00.000Z",
			},
		},
	}

	var data accountsData[workersAccount]
	raw, err := a.client.GraphQL(ctx, req, &data)
	if err != nil {
		return nil, raw, errors.Wrap(err, "couldn't query Workers usage")
	}

	acc, ok := data.first()
	if !ok {
		return nil, raw, errors.Errorf("no account data for %s", accountID)
	}

	usage := &WorkersUsage{}

	for _, g := range acc.Overview {
		if g.Dimensions.is(overviewUsageModel) {
			cpu := g.Sum.CPUTime
			usage.CPUTimeUs = &cpu
			break
		}
	}

	for _, g := range acc.Invocations {
		if g.Dimensions.is(standardUsageModel) {
			requests := g.Sum.StandardRequests
			usage.StandardRequests = &requests
			break
		}
	}

	return usage, raw, nil
}

func (u *WorkersUsage) Table(r daterange.DateRange) *report.Table {
	cpu, requests := "Not found", "Not found"
	if u.CPUTimeUs != nil {
		cpu = FormatMicros(*u.CPUTimeUs)
	}
	if u.StandardRequests != nil {
		requests = FormatMetric(*u.StandardRequests)
	}

	return &report.Table{
		Title:  fmt.Sprintf("Workers usage %s", r),
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"CPU time (usage model 3)", cpu},
			{"Standard requests", requests},
		},
	}
}

type streamAccount struct {
	Total []struct {
		Sum struct {
			MinutesViewed float64 `json:"minutesViewed"`
		} `json:"sum"`
	} `json:"Total"`
}

// StreamUsage is the saved summary of the stream report.
type StreamUsage struct {
	QueryPeriod   string  `json:"query_period"`
	AccountID     string  `json:"account_id"`
	MinutesViewed float64 `json:"minutes_viewed"`
}

// StreamUsage sums Stream minutes viewed over the date range.
func (a *Analyzer) StreamUsage(ctx context.Context, accountID string, r daterange.DateRange) (*StreamUsage, error) {
	req := cloudflare.GraphQLRequest{
		Query: streamUsageQuery,
		Variables: map[string]any{
			"accountTag": accountID,
			"filter": map[string]any{
				"date_geq": r.StartDate(),
				"date_leq": r.EndDate(),
			},
		},
	}

	var data accountsData[streamAccount]
	if _, err := a.client.GraphQL(ctx, req, &data); err != nil {
		return nil, errors.Wrap(err, "couldn't query Stream minutes")
	}

	usage := &StreamUsage{QueryPeriod: r.Key(), AccountID: accountID}

	acc, ok := data.first()
	if !ok {
		return nil, errors.Errorf("no account data for %s", accountID)
	}
	if len(acc.Total) > 0 {
		usage.MinutesViewed = acc.Total[0].Sum.MinutesViewed
	}

	return usage, nil
}
