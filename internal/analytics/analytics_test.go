package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edgeops/cfaudit/internal/cloudflare"
)

// fakeClient answers GraphQL requests with the data member returned by
// graphql, wrapped the way the API wraps it.
type fakeClient struct {
	mu       sync.Mutex
	requests []cloudflare.GraphQLRequest

	graphql func(req cloudflare.GraphQLRequest) (string, error)
	dns     func(zoneID string, since, until time.Time) (int64, error)
}

func (f *fakeClient) GraphQL(_ context.Context, req cloudflare.GraphQLRequest, data any) (json.RawMessage, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	body, err := f.graphql(req)
	if body == "" {
		body = "null"
	}
	raw := json.RawMessage(`{"data":` + body + `}`)

	if err != nil {
		return raw, err
	}

	if data != nil {
		if err := json.Unmarshal([]byte(body), data); err != nil {
			return raw, err
		}
	}

	return raw, nil
}

func (f *fakeClient) DNSQueryCount(_ context.Context, zoneID string, since, until time.Time) (*cloudflare.DNSReport, json.RawMessage, error) {
	count, err := f.dns(zoneID, since, until)
	if err != nil {
		return nil, nil, err
	}

	raw := json.RawMessage(fmt.Sprintf(`{"success":true,"result":{"rows":1,"totals":{"queryCount":%d}}}`, count))
	return &cloudflare.DNSReport{Rows: 1, Totals: map[string]float64{"queryCount": float64(count)}}, raw, nil
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestAnalyzer(client Client, workers int) *Analyzer {
	return NewAnalyzer(client, newTestLogger(), workers, true)
}

func zoneTag(req cloudflare.GraphQLRequest) string {
	tag, _ := req.Variables["zoneTag"].(string)
	return tag
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
