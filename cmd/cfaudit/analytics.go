package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/edgeops/cfaudit/internal/analytics"
	"github.com/edgeops/cfaudit/internal/daterange"
	"github.com/edgeops/cfaudit/internal/report"
	"github.com/edgeops/cfaudit/internal/zone"
)

func newAnalyticsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Collect usage numbers from the GraphQL and DNS analytics APIs",
	}

	cmd.AddCommand(
		newBotCmd(c),
		newBotBreakdownCmd(c),
		newCountryCmd(c),
		newTrafficCmd(c),
		newKVCmd(c),
		newWorkersCmd(c),
		newStreamCmd(c),
		newDNSCmd(c),
	)

	return cmd
}

func (c *cli) newAnalyzer() (*analytics.Analyzer, error) {
	client, err := c.newClient()
	if err != nil {
		return nil, err
	}

	return analytics.NewAnalyzer(client, c.logger, c.cfg.Workers, c.hideProgress()), nil
}

// rangeFlags adds --start and --end to cmd.
func rangeFlags(cmd *cobra.Command, start, end *string) {
	cmd.Flags().StringVar(start, "start", "", "First day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(end, "end", "", "Last day of the range (YYYY-MM-DD)")
}

// saveRaw archives a raw API response when the API answered at all.
func (c *cli) saveRaw(name string, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}

	path := filepath.Join(c.cfg.ReportPath, name)
	if err := report.WriteJSON(path, raw); err != nil {
		c.logger.WithError(err).Warn("Couldn't save raw response")
		return
	}

	c.logger.WithField("filename", path).Info("Query result saved")
}

func newBotCmd(c *cli) *cobra.Command {
	var dates string

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Likely human requests per zone group and business day (05:00 KST)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(c.cfg.ZoneGroups) == 0 {
				return errors.New("zoneGroups are not configured")
			}

			line, err := valueOrPrompt(dates, "dates", "Enter dates (YYYY-MM-DD, comma separated): ")
			if err != nil {
				return err
			}

			days, err := daterange.ParseList(line)
			if err != nil {
				return err
			}

			a, err := c.newAnalyzer()
			if err != nil {
				return err
			}

			usage, err := a.BotUsage(cmd.Context(), days, c.cfg.ZoneGroups)
			for _, day := range usage {
				if printErr := c.printTables(analytics.BotTable(day)); printErr != nil {
					return printErr
				}
			}

			return err
		},
	}

	cmd.Flags().StringVar(&dates, "dates", "", "Business days to report, comma separated (YYYY-MM-DD)")

	return cmd
}

func newBotBreakdownCmd(c *cli) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "bot-breakdown",
		Short: "Bot score classes of every inventory zone",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := dateRange(start, end)
			if err != nil {
				return err
			}

			zones, err := c.loadZones()
			if err != nil {
				return err
			}

			a, err := c.newAnalyzer()
			if err != nil {
				return err
			}

			results, err := a.BotBreakdowns(cmd.Context(), zones, r, filepath.Join(c.cfg.ReportPath, "bot"))
			if err != nil {
				return err
			}

			return c.printTables(analytics.BotBreakdownTable(r, results))
		},
	}

	rangeFlags(cmd, &start, &end)

	return cmd
}

func newCountryCmd(c *cli) *cobra.Command {
	var start, end, output string

	cmd := &cobra.Command{
		Use:   "country",
		Short: "Bytes and requests per client country summed over inventory zones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := dateRange(start, end)
			if err != nil {
				return err
			}

			zones, err := c.loadZones()
			if err != nil {
				return err
			}

			a, err := c.newAnalyzer()
			if err != nil {
				return err
			}

			rep, err := a.Countries(cmd.Context(), zones, r)
			if err != nil {
				return err
			}

			if n := rep.Skipped.Len(); n > 0 {
				c.logger.WithField("zones", n).Warn("Some zones were skipped")
			}

			table := rep.Table()
			if err = c.printTables(table); err != nil {
				return err
			}

			if output == "" {
				output = filepath.Join(c.cfg.ReportPath, fmt.Sprintf("traffic_by_country_%s.csv", r.Key()))
			}

			if err = report.WriteTableCSV(output, table); err != nil {
				return err
			}

			c.logger.WithField("filename", output).Info("Country report saved")

			return nil
		},
	}

	rangeFlags(cmd, &start, &end)
	cmd.Flags().StringVar(&output, "output", "", "CSV file to write (default <reportPath>/traffic_by_country_<start>_<end>.csv)")

	return cmd
}

func newTrafficCmd(c *cli) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "traffic",
		Short: "Bytes and requests of every inventory zone",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := dateRange(start, end)
			if err != nil {
				return err
			}

			zones, err := c.loadZones()
			if err != nil {
				return err
			}

			a, err := c.newAnalyzer()
			if err != nil {
				return err
			}

			rep, err := a.Traffic(cmd.Context(), zones, r)
			if err != nil {
				return err
			}

			return c.printTables(rep.Table())
		},
	}

	rangeFlags(cmd, &start, &end)

	return cmd
}

func newKVCmd(c *cli) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Workers KV operations and storage of the account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runAccountQuery(cmd.Context(), start, end, func(ctx context.Context, a *analytics.Analyzer, r daterange.DateRange) error {
				usage, raw, err := a.KVUsage(ctx, c.cfg.AccountID, r, time.Now())
				c.saveRaw(fmt.Sprintf("workers_KV_%s_%s_%s.json", r.StartDate(), r.EndDate(), c.cfg.AccountID), raw)
				if err != nil {
					return err
				}

				return c.printTables(usage.Table(r))
			})
		},
	}

	rangeFlags(cmd, &start, &end)

	return cmd
}

func newWorkersCmd(c *cli) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Workers standard requests and CPU time of the account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runAccountQuery(cmd.Context(), start, end, func(ctx context.Context, a *analytics.Analyzer, r daterange.DateRange) error {
				usage, raw, err := a.WorkersUsage(ctx, c.cfg.AccountID, r)
				c.saveRaw(fmt.Sprintf("workers_%s_%s_%s.json", r.StartDate(), r.EndDate(), c.cfg.AccountID), raw)
				if err != nil {
					return err
				}

				return c.printTables(usage.Table(r))
			})
		},
	}

	rangeFlags(cmd, &start, &end)

	return cmd
}

func newStreamCmd(c *cli) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream minutes viewed of the account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runAccountQuery(cmd.Context(), start, end, func(ctx context.Context, a *analytics.Analyzer, r daterange.DateRange) error {
				usage, err := a.StreamUsage(ctx, c.cfg.AccountID, r)
				if err != nil {
					return err
				}

				path := filepath.Join(c.cfg.ReportPath, fmt.Sprintf("stream_viewed_%s_%s_%s.json", r.StartDate(), r.EndDate(), c.cfg.AccountID))
				if err = report.WriteJSON(path, usage); err != nil {
					return err
				}
				c.logger.WithField("filename", path).Info("Stream report saved")

				return c.printTables(&report.Table{
					Title:  fmt.Sprintf("Stream usage %s", r),
					Header: []string{"Metric", "Value"},
					Rows:   [][]string{{"Minutes viewed", fmt.Sprintf("%v", usage.MinutesViewed)}},
				})
			})
		},
	}

	rangeFlags(cmd, &start, &end)

	return cmd
}

// runAccountQuery resolves the date range of an account level report and
// runs query with a fresh analyzer.
func (c *cli) runAccountQuery(ctx context.Context, start, end string, query func(ctx context.Context, a *analytics.Analyzer, r daterange.DateRange) error) error {
	if err := c.cfg.RequireAccount(); err != nil {
		return err
	}

	r, err := dateRange(start, end)
	if err != nil {
		return err
	}

	a, err := c.newAnalyzer()
	if err != nil {
		return err
	}

	return query(ctx, a, r)
}

func newDNSCmd(c *cli) *cobra.Command {
	var (
		periods   []string
		zoneLimit int
	)

	cmd := &cobra.Command{
		Use:   "dns",
		Short: "DNS analytics query counts of inventory zones for one or more periods",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ranges, err := dnsPeriods(periods)
			if err != nil {
				return err
			}

			zones, err := c.loadZones()
			if err != nil {
				return err
			}

			ids := zone.IDs(zones, zoneLimit)

			a, err := c.newAnalyzer()
			if err != nil {
				return err
			}

			results, err := a.DNSQueries(cmd.Context(), ids, ranges)
			for _, p := range results {
				if printErr := c.printTables(analytics.DNSTable(p)); printErr != nil {
					return printErr
				}
			}

			if len(results) > 0 {
				name := "DNS_query_all_periods.json"
				if c.cfg.AccountID != "" {
					name = fmt.Sprintf("DNS_query_all_periods_%s.json", c.cfg.AccountID)
				}

				path := filepath.Join(c.cfg.ReportPath, name)
				if saveErr := report.WriteJSON(path, analytics.DNSResultsByPeriod(results)); saveErr != nil {
					return saveErr
				}
				c.logger.WithField("filename", path).WithField("periods", len(results)).Info("DNS results saved")
			}

			return err
		},
	}

	cmd.Flags().StringSliceVar(&periods, "period", nil, "Query period START:END (YYYY-MM-DD), may be repeated")
	cmd.Flags().IntVar(&zoneLimit, "zoneLimit", 0, "Query only the first N inventory zones, 0 queries all")

	return cmd
}

// dnsPeriods parses --period values. Without any, periods are asked for on an
// interactive terminal until an empty start date or "q" is entered.
func dnsPeriods(values []string) ([]daterange.DateRange, error) {
	var ranges []daterange.DateRange

	for _, v := range values {
		r, err := parsePeriod(v)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}

	if len(ranges) > 0 {
		return ranges, nil
	}

	if !isInteractive() {
		return nil, errors.New("--period is not set and the session is not interactive")
	}

	return promptPeriods(os.Stdin, os.Stdout)
}
