package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/edgeops/cfaudit/internal/helpers"
	"github.com/edgeops/cfaudit/internal/report"
	"github.com/edgeops/cfaudit/internal/rules"
	"github.com/edgeops/cfaudit/internal/zone"
)

func newRulesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Search account and zone rulesets",
	}

	cmd.AddCommand(
		newRulesFindCmd(c),
		newRulesDomainsCmd(c),
		newRulesNoHostCmd(c),
	)

	return cmd
}

// ruleSearch describes one rule search run and the report it produces.
type ruleSearch struct {
	report   report.Report
	baseName string
	matcher  rules.Matcher
	targets  []rules.Target
	group    func(details []rules.Details) []report.Group
}

func (c *cli) runRuleSearch(ctx context.Context, s ruleSearch) error {
	client, err := c.newClient()
	if err != nil {
		return err
	}

	c.logger.WithField("owners", len(s.targets)).Info("Rule search started")

	finder := rules.NewFinder(client, s.matcher, c.logger, c.cfg.Workers, c.hideProgress())

	res, err := finder.Scan(ctx, s.targets)
	if err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"rulesets": res.Rulesets,
		"rules":    res.Rules,
		"matches":  len(res.Details),
		"skipped":  res.SkippedCount(),
	}).Info("Rule search finished")

	reportTime := time.Now()

	r := s.report
	r.Groups = s.group(res.Details)
	r.GeneratedAt = reportTime
	r.Args = c.cfg.Args

	if !c.quiet {
		if err = report.RenderConsoleReport(os.Stdout, &r, c.logFormat); err != nil {
			return err
		}
	}

	baseName := s.baseName
	if c.cfg.ReportName != "" {
		baseName = c.cfg.ReportName
	}

	reportFiles, err := report.ExportReport(&r, report.ReportFile(c.cfg.ReportPath, baseName, reportTime), c.cfg.ReportFormat)
	if errors.Is(err, report.ErrEmptyReport) {
		c.logger.Info("No matching rules found, report is not written")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "couldn't export report")
	}

	for _, file := range reportFiles {
		reportExt := strings.ToUpper(strings.Trim(filepath.Ext(file), "."))
		c.logger.WithField("filename", file).Infof("Export %s report", reportExt)
	}

	return nil
}

func newRulesFindCmd(c *cli) *cobra.Command {
	var (
		terms  []string
		fields []string
		exact  bool
	)

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Search terms in the account rulesets and every inventory zone",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.RequireAccount(); err != nil {
				return err
			}

			terms = helpers.SplitList(terms...)
			if len(terms) == 0 {
				line, err := valueOrPrompt("", "terms", "Enter search terms (comma separated): ")
				if err != nil {
					return err
				}
				terms = helpers.SplitList(line)
			}

			searchFields, err := rules.ParseFields(fields)
			if err != nil {
				return err
			}

			matcher, err := rules.NewTermMatcher(terms, searchFields, exact)
			if err != nil {
				return err
			}

			zones, err := c.loadZones()
			if err != nil {
				return err
			}

			targets := append([]rules.Target{rules.AccountTarget(c.cfg.AccountID)}, rules.ZoneTargets(zones)...)

			return c.runRuleSearch(cmd.Context(), ruleSearch{
				report: report.Report{
					Title:       "Rule search",
					KeyColumn:   "Search Term",
					DetailKey:   true,
					WithSummary: true,
				},
				baseName: "rule_search_" + helpers.SafeFileName(strings.Join(matcher.Terms(), "_")),
				matcher:  matcher,
				targets:  targets,
				group: func(details []rules.Details) []report.Group {
					return report.GroupByTerm(matcher.Terms(), details)
				},
			})
		},
	}

	defaultFields := make([]string, 0, len(rules.AllFields))
	for _, f := range rules.AllFields {
		defaultFields = append(defaultFields, string(f))
	}

	cmd.Flags().StringSliceVar(&terms, "terms", nil, "Search terms, comma separated")
	cmd.Flags().StringSliceVar(&fields, "fields", defaultFields, "Rule fields to search: "+strings.Join(defaultFields, ", "))
	cmd.Flags().BoolVar(&exact, "exactTerms", false, "If present, '_', '-' and spaces are not treated as the same separator")

	return cmd
}

func newRulesDomainsCmd(c *cli) *cobra.Command {
	var domains []string

	cmd := &cobra.Command{
		Use:   "domains",
		Short: "Find rules referencing hostnames in the account rulesets and their related zones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.RequireAccount(); err != nil {
				return err
			}

			domains = helpers.SplitList(domains...)
			if len(domains) == 0 {
				line, err := valueOrPrompt("", "domains", "Enter target domains (comma separated): ")
				if err != nil {
					return err
				}
				domains = helpers.SplitList(line)
			}

			hosts := make([]string, 0, len(domains))
			for _, d := range domains {
				hosts = append(hosts, zone.NormalizeHost(d))
			}

			matcher, err := rules.NewTermMatcher(hosts, []rules.Field{rules.FieldExpression}, true)
			if err != nil {
				return err
			}

			inventory, err := c.loadZones()
			if err != nil {
				return err
			}

			resolved := zone.ResolveTargets(inventory, hosts)
			for _, t := range resolved {
				log := c.logger.WithField("domain", t.Host)
				if len(t.Zones) == 0 {
					log.Warn("No related zone found, checking account rulesets only")
					continue
				}
				log.WithField("zone", t.Zones[0].Domain).Info("Related zone found")
			}

			targets := append([]rules.Target{rules.AccountTarget(c.cfg.AccountID)}, rules.ZoneTargets(zone.UniqueZones(resolved))...)

			return c.runRuleSearch(cmd.Context(), ruleSearch{
				report: report.Report{
					Title:       "Cloudflare rule validation",
					KeyColumn:   "Target Domain",
					KeyWidth:    30,
					DetailKey:   true,
					WithSummary: true,
				},
				baseName: helpers.SafeFileName(hosts[0]) + "_cloudflare_rule_validation",
				matcher:  matcher,
				targets:  targets,
				group: func(details []rules.Details) []report.Group {
					return report.GroupByTerm(matcher.Terms(), details)
				},
			})
		},
	}

	cmd.Flags().StringSliceVar(&domains, "domains", nil, "Target hostnames, comma separated")

	return cmd
}

func newRulesNoHostCmd(c *cli) *cobra.Command {
	var domain string

	cmd := &cobra.Command{
		Use:   "no-host",
		Short: "List rules of a zone whose expression has no http.host condition",
		RunE: func(cmd *cobra.Command, _ []string) error {
			domain, err := valueOrPrompt(domain, "domain", "Enter zone domain: ")
			if err != nil {
				return err
			}
			domain = zone.NormalizeHost(domain)

			inventory, err := c.loadZones()
			if err != nil {
				return err
			}

			z, ok := zone.Find(inventory, domain)
			if !ok {
				return errors.Errorf("zone %s is not in the inventory", domain)
			}

			return c.runRuleSearch(cmd.Context(), ruleSearch{
				report: report.Report{
					Title:       "Rules without http.host of " + z.Domain,
					KeyColumn:   "Ruleset Phase",
					WithSummary: true,
				},
				baseName: "rules_without_host_" + helpers.SafeFileName(z.Domain),
				matcher:  rules.MissingHostMatcher{},
				targets:  rules.ZoneTargets([]zone.Info{z}),
				group:    report.GroupByPhase,
			})
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "Zone domain from the inventory")

	return cmd
}
