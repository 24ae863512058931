package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/edgeops/cfaudit/internal/cloudflare"
	"github.com/edgeops/cfaudit/internal/zone"
)

func TestNormalizeArgs(t *testing.T) {
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	flags.String("accountID", "", "")
	flags.String("apiToken", "", "")
	flags.String("reportName", "", "")
	flags.StringSlice("reportFormat", nil, "")
	flags.Bool("quiet", false, "")
	flags.Bool("tlsVerify", true, "")
	flags.Int("workers", 1, "")
	flags.Float64("rateLimit", 0, "")
	flags.String("untouched", "x", "")

	err := flags.Parse([]string{
		"--accountID=abc",
		"--apiToken=secret-token",
		"--reportName=my report",
		"--reportFormat=xlsx,json",
		"--quiet",
		"--tlsVerify=false",
		"--workers=4",
		"--rateLimit=2.5",
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := normalizeArgs(flags)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"--accountID=abc",
		"--apiToken=***",
		"--quiet",
		"--rateLimit=2.5",
		"--reportFormat=xlsx,json",
		`--reportName="my report"`,
		"--tlsVerify=false",
		"--workers=4",
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNormalizeArgsUnknownType(t *testing.T) {
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	flags.Duration("wait", 0, "")

	if err := flags.Parse([]string{"--wait=1s"}); err != nil {
		t.Fatal(err)
	}

	if _, err := normalizeArgs(flags); err == nil {
		t.Fatal("expected an error for a duration flag")
	}
}

func TestValidateLogFormat(t *testing.T) {
	for _, f := range []string{"text", "json"} {
		if err := validateLogFormat(f); err != nil {
			t.Errorf("%s rejected: %v", f, err)
		}
	}

	if err := validateLogFormat("xml"); err == nil {
		t.Error("xml accepted")
	}
}

func TestParsePeriod(t *testing.T) {
	r, err := parsePeriod("2024-03-01:2024-03-31")
	if err != nil {
		t.Fatal(err)
	}
	if r.Key() != "2024-03-01_2024-03-31" {
		t.Errorf("got %s", r.Key())
	}

	for _, bad := range []string{"2024-03-01", "2024-03-31:2024-03-01", "2024-13-01:2024-13-02"} {
		if _, err = parsePeriod(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestPrompt(t *testing.T) {
	var out bytes.Buffer

	got, err := prompt(strings.NewReader("  example.com \n"), &out, "Domain: ")
	if err != nil {
		t.Fatal(err)
	}
	if got != "example.com" {
		t.Errorf("got %q", got)
	}
	if out.String() != "Domain: " {
		t.Errorf("label %q", out.String())
	}

	// last line without newline
	got, err = prompt(strings.NewReader("example.org"), &out, "")
	if err != nil || got != "example.org" {
		t.Errorf("got %q, %v", got, err)
	}

	if _, err = prompt(strings.NewReader(""), &out, ""); err == nil {
		t.Error("expected an error on empty input")
	}
}

func TestPromptPeriods(t *testing.T) {
	input := strings.Join([]string{
		"2024-01-01", "2024-01-31",
		"2024-02-30", "2024-02-28", // invalid, asked again
		"2024-02-01", "2024-02-29",
		"q",
	}, "\n") + "\n"

	var out bytes.Buffer

	ranges, err := promptPeriods(strings.NewReader(input), &out)
	if err != nil {
		t.Fatal(err)
	}

	var keys []string
	for _, r := range ranges {
		keys = append(keys, r.Key())
	}

	want := []string{"2024-01-01_2024-01-31", "2024-02-01_2024-02-29"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("got %v, want %v", keys, want)
	}

	if !strings.Contains(out.String(), "Invalid period") {
		t.Errorf("invalid period not reported: %q", out.String())
	}
}

func TestPromptPeriodsEmpty(t *testing.T) {
	var out bytes.Buffer

	if _, err := promptPeriods(strings.NewReader("\n"), &out); err == nil {
		t.Fatal("expected an error without periods")
	}
	if _, err := promptPeriods(strings.NewReader(""), &out); err == nil {
		t.Fatal("expected an error on EOF")
	}
}

func TestFilterZones(t *testing.T) {
	all := []cloudflare.ZoneSummary{
		{ID: "1", Name: "a.example", Plan: defaultPlan, AccountID: "acc"},
		{ID: "2", Name: "b.example", Plan: "Free Website", AccountID: "acc"},
		{ID: "3", Name: "c.example", Plan: defaultPlan, AccountID: "other"},
		{ID: "4", Name: "d.example", Plan: defaultPlan, AccountID: "acc"},
	}

	got := filterZones(all, "acc", defaultPlan)
	want := []zone.Info{
		{Domain: "a.example", Plan: defaultPlan, ZoneID: "1"},
		{Domain: "d.example", Plan: defaultPlan, ZoneID: "4"},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `apiToken: token-from-file
workers: 3
zoneGroups:
  - name: shop
    primary: shop.example
    zones: [shop.example, img.shop.example]
headers:
  X-Audit: cfaudit
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CFAUDIT_ACCOUNTID", "0123456789abcdef0123456789abcdef")

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	root := newRootCmd(logger)
	c := &cli{logger: logger, configPath: path}

	if err := root.ParseFlags([]string{"--workers=5"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := c.loadConfig(root)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.APIToken != "token-from-file" {
		t.Errorf("apiToken %q", cfg.APIToken)
	}
	if cfg.Workers != 5 {
		t.Errorf("flag should override the file, workers %d", cfg.Workers)
	}
	if cfg.AccountID != "0123456789abcdef0123456789abcdef" {
		t.Errorf("accountID %q", cfg.AccountID)
	}
	if len(cfg.ZoneGroups) != 1 || cfg.ZoneGroups[0].Primary != "shop.example" || len(cfg.ZoneGroups[0].Zones) != 2 {
		t.Errorf("zoneGroups %+v", cfg.ZoneGroups)
	}
	if !cfg.TLSVerify {
		t.Error("tlsVerify should default to true")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	missing := filepath.Join(t.TempDir(), "config.yaml")

	root := newRootCmd(logger)
	c := &cli{logger: logger, configPath: missing}

	if _, err := c.loadConfig(root); err != nil {
		t.Fatalf("missing default config should be tolerated: %v", err)
	}

	root = newRootCmd(logger)
	if err := root.ParseFlags([]string{"--configPath=" + missing}); err != nil {
		t.Fatal(err)
	}

	if _, err := c.loadConfig(root); err == nil {
		t.Fatal("missing explicit config should fail")
	}
}
