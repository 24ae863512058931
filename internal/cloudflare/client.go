package cloudflare

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go/v4"
	"github.com/cloudflare/cloudflare-go/v4/option"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/edgeops/cfaudit/internal/config"
	"github.com/edgeops/cfaudit/internal/helpers"
)

const (
	graphQLPath  = "graphql"
	zonesPerPage = 50
)

// Client talks to the Cloudflare v4 API. Requests go through the SDK client
// for auth, base URL and retries; bodies are decoded into the local models.
type Client struct {
	api *cloudflare.Client
}

// NewClient builds an API client from the merged configuration.
func NewClient(cfg *config.Config) (*Client, error) {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.TLSVerify},
		IdleConnTimeout: 30 * time.Second,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't parse proxy URL")
		}

		tr.Proxy = http.ProxyURL(proxyURL)
	}

	var rt http.RoundTripper = tr
	if cfg.RateLimit > 0 {
		rt = &limitedTransport{
			next:    tr,
			limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		}
	}

	httpClient := &http.Client{
		Transport: rt,
		Timeout:   time.Duration(cfg.Timeout) * time.Second,
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}

	if cfg.APIToken != "" {
		opts = append(opts, option.WithAPIToken(cfg.APIToken))
	} else {
		opts = append(opts,
			option.WithAPIEmail(cfg.AuthEmail),
			option.WithAPIKey(cfg.AuthKey),
		)
	}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}

	for header, value := range helpers.DeepCopyMap(cfg.HTTPHeaders) {
		opts = append(opts, option.WithHeader(header, value))
	}

	return &Client{api: cloudflare.NewClient(opts...)}, nil
}

// limitedTransport paces outgoing requests.
type limitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	return t.next.RoundTrip(req)
}

// ListZones returns every zone visible to the credentials. Zones are read
// page by page from the raw endpoint since the SDK zone model carries no
// plan.
func (c *Client) ListZones(ctx context.Context) ([]ZoneSummary, error) {
	var result []ZoneSummary

	for page := 1; ; page++ {
		var records []zoneRecord

		info, err := c.getPage(ctx, "zones", page, &records)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't list zones")
		}

		for _, z := range records {
			result = append(result, ZoneSummary{
				ID:        z.ID,
				Name:      z.Name,
				Plan:      z.Plan.Name,
				AccountID: z.Account.ID,
			})
		}

		if len(records) == 0 || info == nil || !info.hasMore(page, len(result)) {
			break
		}
	}

	return result, nil
}

// ListRulesets returns the ruleset headers (without rules) of a scope.
func (c *Client) ListRulesets(ctx context.Context, scope Scope) ([]Ruleset, error) {
	var rulesets []Ruleset

	if _, err := c.getResult(ctx, scope.rulesetsPath(), &rulesets); err != nil {
		return nil, errors.Wrapf(err, "couldn't list %s rulesets", scope)
	}

	return rulesets, nil
}

// GetRuleset returns one ruleset including its rules.
func (c *Client) GetRuleset(ctx context.Context, scope Scope, rulesetID string) (*Ruleset, error) {
	var ruleset Ruleset

	path := scope.rulesetsPath() + "/" + url.PathEscape(rulesetID)
	if _, err := c.getResult(ctx, path, &ruleset); err != nil {
		return nil, errors.Wrapf(err, "couldn't get ruleset %s of %s", rulesetID, scope)
	}

	return &ruleset, nil
}

// DNSQueryCount fetches the DNS analytics report totals of a zone. The raw
// response body is returned for archiving, also when the request failed.
func (c *Client) DNSQueryCount(ctx context.Context, zoneID string, since, until time.Time) (*DNSReport, json.RawMessage, error) {
	path := fmt.Sprintf("zones/%s/dns_analytics/report", url.PathEscape(zoneID))

	var report DNSReport
	raw, err := c.getResult(ctx, path, &report,
		option.WithQuery("metrics", "queryCount"),
		option.WithQuery("sort", "-queryCount"),
		option.WithQuery("limit", "100"),
		option.WithQuery("since", since.UTC().Format(time.RFC3339)),
		option.WithQuery("until", until.UTC().Format(time.RFC3339)),
	)
	if err != nil {
		return nil, raw, errors.Wrapf(err, "couldn't get DNS analytics of zone %s", zoneID)
	}

	return &report, raw, nil
}

// GraphQL runs an analytics query and decodes its data member into data.
// The raw response body is returned even when the query reported errors.
func (c *Client) GraphQL(ctx context.Context, req GraphQLRequest, data any) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't encode GraphQL request")
	}

	raw, reqErr := c.do(ctx, http.MethodPost, graphQLPath, body)
	if reqErr != nil && len(raw) == 0 {
		return nil, errors.Wrap(reqErr, "GraphQL request failed")
	}

	var resp graphQLResponse
	if err = json.Unmarshal(raw, &resp); err != nil {
		if reqErr != nil {
			return raw, errors.Wrap(reqErr, "GraphQL request failed")
		}
		return raw, errors.Wrap(err, "couldn't decode GraphQL response")
	}

	if len(resp.Errors) > 0 {
		return raw, &GraphQLError{Messages: resp.Errors.messages()}
	}

	if reqErr != nil {
		return raw, errors.Wrap(reqErr, "GraphQL request failed")
	}

	if data != nil && len(resp.Data) > 0 {
		if err = json.Unmarshal(resp.Data, data); err != nil {
			return raw, errors.Wrap(err, "couldn't decode GraphQL data")
		}
	}

	return raw, nil
}

// do sends one request and returns the response body. Bodies of error
// responses are returned along with the error.
func (c *Client) do(ctx context.Context, method, path string, body []byte, opts ...option.RequestOption) (json.RawMessage, error) {
	var (
		res    *http.Response
		params any
	)
	if body != nil {
		params = body
	}

	err := c.api.Execute(ctx, method, path, params, &res, opts...)

	var raw []byte
	if res != nil && res.Body != nil {
		var readErr error
		raw, readErr = io.ReadAll(res.Body)
		res.Body.Close()
		if readErr != nil && err == nil {
			err = errors.Wrap(readErr, "couldn't read response body")
		}
	}

	return raw, err
}

// getResult fetches path and unpacks the v4 envelope into result.
func (c *Client) getResult(ctx context.Context, path string, result any, opts ...option.RequestOption) (json.RawMessage, error) {
	raw, err := c.do(ctx, http.MethodGet, path, nil, opts...)
	if err != nil {
		if apiErr := envelopeError(raw); apiErr != nil {
			return raw, apiErr
		}
		return raw, err
	}

	_, err = decodeResult(raw, result)

	return raw, err
}

func (c *Client) getPage(ctx context.Context, path string, page int, result any) (*resultInfo, error) {
	raw, err := c.do(ctx, http.MethodGet, path, nil,
		option.WithQuery("page", strconv.Itoa(page)),
		option.WithQuery("per_page", strconv.Itoa(zonesPerPage)),
	)
	if err != nil {
		if apiErr := envelopeError(raw); apiErr != nil {
			return nil, apiErr
		}
		return nil, err
	}

	return decodeResult(raw, result)
}

// envelopeError returns the API messages of an error response body.
func envelopeError(raw []byte) error {
	var env envelope
	if len(raw) == 0 || json.Unmarshal(raw, &env) != nil || len(env.Errors) == 0 {
		return nil
	}

	return &APIError{Messages: env.Errors.messages()}
}

// decodeResult unpacks the v4 response envelope.
func decodeResult(raw []byte, result any) (*resultInfo, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "malformed API response")
	}

	if !env.Success {
		return nil, &APIError{Messages: env.Errors.messages()}
	}

	if len(env.Result) == 0 || string(env.Result) == "null" {
		return env.ResultInfo, nil
	}

	if err := json.Unmarshal(env.Result, result); err != nil {
		return nil, errors.Wrap(err, "couldn't decode API result")
	}

	return env.ResultInfo, nil
}
