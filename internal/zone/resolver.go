package zone

import (
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeHost lower-cases host, drops a trailing dot and converts
// internationalized labels to their ASCII form. Hosts idna rejects are
// returned lower-cased as is.
func NormalizeHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return host
	}

	return ascii
}

// Candidates returns the zone lookup keys for host, most specific first.
//
//	coupang.com        -> [coupang.com]
//	cmapi.coupang.com  -> [cmapi.coupang.com coupang.com]
//	ljc.jp.coupang.com -> [jp.coupang.com coupang.com]
func Candidates(host string) []string {
	host = NormalizeHost(host)
	labels := strings.Split(host, ".")

	switch n := len(labels); {
	case n <= 2:
		return []string{host}
	case n == 3:
		return []string{host, strings.Join(labels[1:], ".")}
	default:
		return []string{
			strings.Join(labels[n-3:], "."),
			strings.Join(labels[n-2:], "."),
		}
	}
}

// Related returns the zone owning host: the first inventory entry equal to a
// candidate, trying candidates in order. The result is empty when no zone
// matches and holds one zone otherwise.
func Related(zones []Info, host string) []Info {
	for _, candidate := range Candidates(host) {
		if z, ok := Find(zones, candidate); ok {
			return []Info{z}
		}
	}

	return nil
}

// Target is a hostname together with the zones whose rules apply to it.
type Target struct {
	Host  string
	Zones []Info
}

// ResolveTargets maps every host to its related zones.
func ResolveTargets(zones []Info, hosts []string) []Target {
	targets := make([]Target, 0, len(hosts))
	for _, host := range hosts {
		targets = append(targets, Target{
			Host:  host,
			Zones: Related(zones, host),
		})
	}

	return targets
}

// UniqueZones returns the zones of all targets with duplicates removed,
// keeping first-seen order.
func UniqueZones(targets []Target) []Info {
	seen := make(map[string]struct{})

	var zones []Info
	for _, t := range targets {
		for _, z := range t.Zones {
			if _, ok := seen[z.ZoneID]; ok {
				continue
			}
			seen[z.ZoneID] = struct{}{}
			zones = append(zones, z)
		}
	}

	return zones
}
