package rules

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/edgeops/cfaudit/internal/cloudflare"
	"github.com/edgeops/cfaudit/internal/config"
	"github.com/edgeops/cfaudit/internal/zone"
)

type fakeSource struct {
	mu       sync.Mutex
	rulesets map[string][]cloudflare.Ruleset
	failList map[string]bool
	failGet  map[string]bool
	calls    int
}

func (s *fakeSource) ListRulesets(_ context.Context, scope cloudflare.Scope) ([]cloudflare.Ruleset, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.failList[scope.ID()] {
		return nil, fmt.Errorf("list failed for %s", scope)
	}

	var headers []cloudflare.Ruleset
	for _, rs := range s.rulesets[scope.ID()] {
		headers = append(headers, cloudflare.Ruleset{ID: rs.ID, Name: rs.Name, Phase: rs.Phase})
	}
	return headers, nil
}

func (s *fakeSource) GetRuleset(_ context.Context, scope cloudflare.Scope, id string) (*cloudflare.Ruleset, error) {
	if s.failGet[id] {
		return nil, fmt.Errorf("get failed for %s", id)
	}

	for _, rs := range s.rulesets[scope.ID()] {
		if rs.ID == id {
			rs := rs
			return &rs, nil
		}
	}
	return nil, fmt.Errorf("ruleset %s not found", id)
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testSource() *fakeSource {
	return &fakeSource{
		rulesets: map[string][]cloudflare.Ruleset{
			"acc": {{
				ID: "a1", Name: "Account custom", Phase: "http_request_firewall_custom",
				Rules: []cloudflare.Rule{{ID: "ar1", Description: "Block IP ranges", Expression: "ip.src in $bad", Enabled: true}},
			}},
			"z1": {{
				ID: "z1rs", Name: "Zone custom", Phase: "http_request_firewall_custom",
				Rules: []cloudflare.Rule{
					{ID: "zr1", Description: "block-ip for zone", Enabled: true},
					{ID: "zr2", Description: "allow traffic", Enabled: false},
				},
			}},
			"z2": {
				{ID: "broken", Name: "Broken", Phase: "http_ratelimit"},
				{ID: "z2rs", Name: "Rate limits", Phase: "http_ratelimit", Rules: []cloudflare.Rule{{ID: "zr3", Description: "blockip"}}},
			},
		},
		failList: map[string]bool{"z3": true},
		failGet:  map[string]bool{"broken": true},
	}
}

func testTargets() []Target {
	zones := []zone.Info{
		{Domain: "coupang.com", ZoneID: "z1"},
		{Domain: "coupang.jp", ZoneID: "z2"},
		{Domain: "coupang.tw", ZoneID: "z3"},
	}
	return append([]Target{AccountTarget("acc")}, ZoneTargets(zones)...)
}

func TestFinderScan(t *testing.T) {
	m, err := NewTermMatcher([]string{"block_ip", "allow"}, AllFields, false)
	if err != nil {
		t.Fatalf("NewTermMatcher: %v", err)
	}

	finder := NewFinder(testSource(), m, newTestLogger(), 1, true)

	res, err := finder.Scan(context.Background(), testTargets())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	want := []struct{ domain, rule, term string }{
		{AccountLevel, "ar1", "block_ip"},
		{"coupang.com", "zr1", "block_ip"},
		{"coupang.com", "zr2", "allow"},
	}

	if len(res.Details) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(res.Details), len(want), res.Details)
	}

	for i, w := range want {
		d := res.Details[i]
		if d.Domain != w.domain || d.RuleID != w.rule || d.MatchedTerm != w.term {
			t.Errorf("record %d: got %s/%s/%s, want %s/%s/%s", i, d.Domain, d.RuleID, d.MatchedTerm, w.domain, w.rule, w.term)
		}
	}

	if res.SkippedCount() != 2 {
		t.Errorf("got %d skipped items, want 2", res.SkippedCount())
	}
	if res.Rulesets != 3 || res.Rules != 4 {
		t.Errorf("got %d rulesets and %d rules, want 3 and 4", res.Rulesets, res.Rules)
	}
}

func TestFinderParallelKeepsOrder(t *testing.T) {
	m, err := NewTermMatcher([]string{"block"}, AllFields, false)
	if err != nil {
		t.Fatalf("NewTermMatcher: %v", err)
	}

	sequential, err := NewFinder(testSource(), m, newTestLogger(), 1, true).Scan(context.Background(), testTargets())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	parallel, err := NewFinder(testSource(), m, newTestLogger(), 8, true).Scan(context.Background(), testTargets())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(sequential.Details) != len(parallel.Details) {
		t.Fatalf("got %d and %d records", len(sequential.Details), len(parallel.Details))
	}
	for i := range sequential.Details {
		if sequential.Details[i] != parallel.Details[i] {
			t.Errorf("record %d differs: %+v vs %+v", i, sequential.Details[i], parallel.Details[i])
		}
	}
}

func TestFinderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := testSource()
	res, err := NewFinder(src, MissingHostMatcher{}, newTestLogger(), 1, true).Scan(ctx, testTargets())
	if err == nil {
		t.Fatalf("expected an error for a canceled context")
	}
	if res == nil {
		t.Fatalf("partial result must be returned")
	}
	if src.calls != 0 {
		t.Errorf("no ruleset must be fetched after cancellation, got %d calls", src.calls)
	}
}

func TestNoHostScanUsesListingNames(t *testing.T) {
	src := testSource()
	src.rulesets["z1"][0].Rules[0].Expression = `http.host eq "coupang.com"`

	res, err := NewFinder(src, MissingHostMatcher{}, newTestLogger(), 1, true).
		Scan(context.Background(), ZoneTargets([]zone.Info{{Domain: "coupang.com", ZoneID: "z1"}}))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(res.Details) != 1 || res.Details[0].RuleID != "zr2" || res.Details[0].RulesetName != "Zone custom" {
		t.Errorf("unexpected records: %+v", res.Details)
	}
}

func TestFinderScanOverAPI(t *testing.T) {
	mux := http.NewServeMux()
	respond := func(path, body string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		})
	}

	respond("/accounts/acc/rulesets", `{"success":true,"errors":[],"result":[{"id":"a1","name":"Account custom","phase":"http_request_firewall_custom"}]}`)
	respond("/accounts/acc/rulesets/a1", `{"success":true,"errors":[],"result":{"id":"a1","name":"Account custom","phase":"http_request_firewall_custom","rules":[
		{"id":"ar1","description":"Block IP ranges","expression":"ip.src in $bad","action":"block"}
	]}}`)
	respond("/zones/z1/rulesets", `{"success":true,"errors":[],"result":[{"id":"z1rs","phase":"http_request_firewall_custom"}]}`)
	respond("/zones/z1/rulesets/z1rs", `{"success":true,"errors":[],"result":{"id":"z1rs","phase":"http_request_firewall_custom","rules":[
		{"id":"zr1","expression":"http.host eq \"coupang.com\" and ip.src eq 10.0.0.1","action":"block","description":"block-ip for zone"},
		{"id":"zr2","expression":"true","action":"log","enabled":false}
	]}}`)
	mux.HandleFunc("/zones/z2/rulesets", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"success":false,"errors":[{"code":10000,"message":"Authentication error"}]}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := cloudflare.NewClient(&config.Config{APIToken: "token", BaseURL: srv.URL, TLSVerify: true, Timeout: 5})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	m, err := NewTermMatcher([]string{"block_ip"}, AllFields, false)
	if err != nil {
		t.Fatalf("NewTermMatcher: %v", err)
	}

	targets := append([]Target{AccountTarget("acc")}, ZoneTargets([]zone.Info{
		{Domain: "coupang.com", ZoneID: "z1"},
		{Domain: "coupang.jp", ZoneID: "z2"},
	})...)

	res, err := NewFinder(client, m, newTestLogger(), 2, true).Scan(context.Background(), targets)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(res.Details) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(res.Details), res.Details)
	}

	account, zoneRule := res.Details[0], res.Details[1]
	if account.Domain != AccountLevel || account.RuleID != "ar1" || account.RulesetName != "Account custom" {
		t.Errorf("unexpected account record: %+v", account)
	}
	if zoneRule.Domain != "coupang.com" || zoneRule.RuleID != "zr1" || zoneRule.RulesetName != cloudflare.DefaultRulesetName {
		t.Errorf("unexpected zone record: %+v", zoneRule)
	}

	if res.Rulesets != 2 || res.Rules != 3 {
		t.Errorf("got %d rulesets and %d rules, want 2 and 3", res.Rulesets, res.Rules)
	}
	if res.SkippedCount() != 1 {
		t.Errorf("got %d skipped owners, want 1", res.SkippedCount())
	}
}
