package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/edgeops/cfaudit/internal/cloudflare"
	"github.com/edgeops/cfaudit/internal/report"
	"github.com/edgeops/cfaudit/internal/zone"
)

const defaultPlan = "Enterprise Website"

func newZonesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Manage the zone inventory",
	}

	cmd.AddCommand(newZonesExportCmd(c))

	return cmd
}

func newZonesExportCmd(c *cli) *cobra.Command {
	var (
		plan   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the zones of an account on a plan to the inventory CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.RequireAccount(); err != nil {
				return err
			}

			client, err := c.newClient()
			if err != nil {
				return err
			}

			c.logger.Info("Fetching zones from Cloudflare API")

			all, err := client.ListZones(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "couldn't list zones")
			}

			zones := filterZones(all, c.cfg.AccountID, plan)
			if len(zones) == 0 {
				c.logger.WithField("plan", plan).WithField("account", c.cfg.AccountID).Info("No zones found")
				return nil
			}

			if output == "" {
				output = defaultZonesFile(c.cfg.AccountID)
			}

			if err = zone.WriteCSV(output, zones); err != nil {
				return err
			}

			table := &report.Table{
				Title:  fmt.Sprintf("%s zones of account %s", plan, c.cfg.AccountID),
				Header: []string{zone.DomainColumn, zone.PlanColumn, zone.ZoneIDColumn},
				Footer: []string{"Total", "", fmt.Sprintf("%d", len(zones))},
			}
			for _, z := range zones {
				table.Rows = append(table.Rows, []string{z.Domain, z.Plan, z.ZoneID})
			}

			if err = c.printTables(table); err != nil {
				return err
			}

			c.logger.WithField("filename", output).WithField("zones", len(zones)).Info("Zone inventory saved")

			return nil
		},
	}

	cmd.Flags().StringVar(&plan, "plan", defaultPlan, "Plan name the exported zones must have")
	cmd.Flags().StringVar(&output, "output", "", "Inventory file to write (default enterprise_domains_<accountID>.csv)")

	return cmd
}

// filterZones keeps the zones of accountID on plan, in API order.
func filterZones(all []cloudflare.ZoneSummary, accountID, plan string) []zone.Info {
	var zones []zone.Info
	for _, z := range all {
		if z.AccountID == accountID && z.Plan == plan {
			zones = append(zones, zone.Info{Domain: z.Name, Plan: z.Plan, ZoneID: z.ID})
		}
	}

	return zones
}
