package cloudflare

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultRulesetName  = "Unnamed ruleset"
	DefaultRulesetPhase = "Unknown phase"
	DefaultDescription  = "No description"
	Unknown             = "Unknown"

	accessRestrictedMarker = "does not have access to the field"
)

// Scope selects the owner of a ruleset collection.
type Scope struct {
	kind string
	id   string
}

func AccountScope(accountID string) Scope {
	return Scope{kind: "accounts", id: accountID}
}

func ZoneScope(zoneID string) Scope {
	return Scope{kind: "zones", id: zoneID}
}

func (s Scope) IsAccount() bool {
	return s.kind == "accounts"
}

func (s Scope) ID() string {
	return s.id
}

func (s Scope) String() string {
	if s.IsAccount() {
		return "account " + s.id
	}
	return "zone " + s.id
}

func (s Scope) rulesetsPath() string {
	return fmt.Sprintf("%s/%s/rulesets", s.kind, url.PathEscape(s.id))
}

type ZoneSummary struct {
	ID        string
	Name      string
	Plan      string
	AccountID string
}

// zoneRecord is the subset of a zone object read by ListZones.
type zoneRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Plan struct {
		Name string `json:"name"`
	} `json:"plan"`
	Account struct {
		ID string `json:"id"`
	} `json:"account"`
}

// Ruleset and Rule take defaults for absent members only; an explicit empty
// string is kept.
type Ruleset struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phase string `json:"phase"`
	Kind  string `json:"kind"`
	Rules []Rule `json:"rules"`
}

func (r *Ruleset) UnmarshalJSON(data []byte) error {
	type plain Ruleset

	p := plain{Name: DefaultRulesetName, Phase: DefaultRulesetPhase}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	*r = Ruleset(p)

	return nil
}

type Rule struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Expression  string `json:"expression"`
	Action      string `json:"action"`
	Enabled     bool   `json:"enabled"`
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule

	p := plain{
		ID:          Unknown,
		Description: DefaultDescription,
		Action:      Unknown,
		Enabled:     true,
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	*r = Rule(p)

	return nil
}

// DNSReport is the result member of the DNS analytics report endpoint.
type DNSReport struct {
	Rows   int                `json:"rows"`
	Totals map[string]float64 `json:"totals"`
}

func (r *DNSReport) QueryCount() int64 {
	if r == nil {
		return 0
	}
	return int64(r.Totals["queryCount"])
}

type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type responseMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type responseMessages []responseMessage

func (m responseMessages) messages() []string {
	result := make([]string, 0, len(m))
	for _, msg := range m {
		result = append(result, msg.Message)
	}
	return result
}

type envelope struct {
	Success    bool             `json:"success"`
	Errors     responseMessages `json:"errors"`
	Result     json.RawMessage  `json:"result"`
	ResultInfo *resultInfo      `json:"result_info"`
}

type resultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// hasMore reports whether a page after page exists, seen items read so far.
func (i *resultInfo) hasMore(page, seen int) bool {
	switch {
	case i.TotalPages > 0:
		return page < i.TotalPages
	case i.TotalCount > 0:
		return seen < i.TotalCount
	default:
		return i.PerPage > 0 && i.Count == i.PerPage
	}
}

type graphQLResponse struct {
	Data   json.RawMessage  `json:"data"`
	Errors responseMessages `json:"errors"`
}

// APIError is returned when the REST envelope reports success=false.
type APIError struct {
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return "API request was not successful"
	}
	return "API error: " + strings.Join(e.Messages, "; ")
}

// GraphQLError carries the errors member of a GraphQL response.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "GraphQL error: " + strings.Join(e.Messages, "; ")
}

// IsAccessRestricted reports whether the token lacks access to a queried
// dataset.
func (e *GraphQLError) IsAccessRestricted() bool {
	for _, msg := range e.Messages {
		if strings.Contains(msg, accessRestrictedMarker) {
			return true
		}
	}
	return false
}
