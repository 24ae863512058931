package main

import (
	"fmt"
	"io"
	"io/fs"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeops/cfaudit/internal/cloudflare"
	"github.com/edgeops/cfaudit/internal/config"
	"github.com/edgeops/cfaudit/internal/report"
	"github.com/edgeops/cfaudit/internal/version"
	"github.com/edgeops/cfaudit/internal/zone"
)

const (
	textLogFormat = "text"
	jsonLogFormat = "json"
)

var (
	logFormatsSet = map[string]any{
		textLogFormat: nil,
		jsonLogFormat: nil,
	}
	logFormats = slices.Sorted(maps.Keys(logFormatsSet))
)

const (
	envPrefix = "CFAUDIT"

	defaultConfigPath = "config.yaml"
	defaultReportPath = "reports"
	defaultTimeout    = 30
)

const cliDescription = `cfaudit inspects Cloudflare accounts: it searches account and zone
rulesets for terms or hostnames, finds rules without a host condition and
collects GraphQL and DNS analytics usage reports.

Credentials are read from the config file, CFAUDIT_* environment variables
or flags.`

// cli holds the state shared by all commands once the persistent flags are
// parsed.
type cli struct {
	logger *logrus.Logger
	cfg    *config.Config

	configPath string
	quiet      bool
	logLevel   string
	logFormat  string
}

func newRootCmd(logger *logrus.Logger) *cobra.Command {
	c := &cli{logger: logger}

	root := &cobra.Command{
		Use:           "cfaudit",
		Short:         "Cloudflare ruleset and analytics audit tool",
		Long:          cliDescription,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return c.init(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()

	// General parameters
	flags.StringVar(&c.configPath, "configPath", defaultConfigPath, "Path to the config file")
	flags.BoolVar(&c.quiet, "quiet", false, "If present, disable verbose logging and console tables")
	flags.StringVar(&c.logLevel, "logLevel", "info", "Logging level: panic, fatal, error, warn, info, debug, trace")
	flags.StringVar(&c.logFormat, "logFormat", textLogFormat, "Set logging format: "+strings.Join(logFormats, ", "))

	// Credentials
	flags.String("authEmail", "", "Cloudflare account e-mail (X-Auth-Email)")
	flags.String("authKey", "", "Cloudflare global API key (X-Auth-Key)")
	flags.String("apiToken", "", "Cloudflare API token, used instead of e-mail and key")
	flags.String("accountID", "", "Cloudflare account ID")

	// API client settings
	flags.String("baseURL", "", "Cloudflare API base URL")
	flags.String("proxy", "", "Proxy URL to use")
	flags.Bool("tlsVerify", true, "Verify the TLS certificate of the API")
	flags.Int("timeout", defaultTimeout, "HTTP client timeout in seconds")
	flags.Int("maxRetries", 0, "Retries of a failed API request")
	flags.Float64("rateLimit", 0, "Maximum API requests per second, 0 disables the limit")

	// Performance settings
	flags.Int("workers", 1, "The number of zones fetched in parallel")

	// Input settings
	flags.String("zonesFile", "", "Zone inventory CSV (default enterprise_domains_<accountID>.csv)")

	// Report settings
	flags.String("reportPath", filepath.Join(".", defaultReportPath), "A directory to store reports")
	flags.String("reportName", "", "Report file name without timestamp and extension")
	flags.StringSlice("reportFormat", report.DefaultReportFormats, "Export rule reports in the following formats: "+strings.Join(report.ReportFormats, ", "))

	root.AddCommand(
		newZonesCmd(c),
		newRulesCmd(c),
		newAnalyticsCmd(c),
	)

	return root
}

// init configures the logger and loads the merged configuration.
func (c *cli) init(cmd *cobra.Command) error {
	logLevel, err := logrus.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}

	if err = validateLogFormat(c.logFormat); err != nil {
		return err
	}

	c.logger.SetLevel(logLevel)
	if c.logFormat == jsonLogFormat {
		c.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if c.quiet {
		c.logger.SetOutput(io.Discard)
	}

	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "couldn't load config")
	}

	if err = report.ValidateReportFormat(cfg.ReportFormat); err != nil {
		return err
	}

	if err = cfg.Validate(); err != nil {
		return err
	}

	cfg.Args, err = normalizeArgs(cmd.Flags())
	if err != nil {
		return errors.Wrap(err, "couldn't normalize args")
	}

	c.cfg = cfg

	c.logger.WithField("version", version.Version).Debug("cfaudit started")

	return nil
}

// loadConfig merges the config file, CFAUDIT_* environment variables and
// the command line flags. A missing default config file is not an error.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetConfigFile(c.configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)

		if !missing || cmd.Flags().Changed("configPath") {
			return nil, err
		}

		c.logger.WithField("path", c.configPath).Debug("Config file not found, using flags and environment")
	}

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *cli) newClient() (*cloudflare.Client, error) {
	client, err := cloudflare.NewClient(c.cfg)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't create Cloudflare client")
	}

	return client, nil
}

// zonesFile returns the inventory path, defaulting to the file written by
// "zones export" for the configured account.
func (c *cli) zonesFile() (string, error) {
	if c.cfg.ZonesFile != "" {
		return c.cfg.ZonesFile, nil
	}

	if err := c.cfg.RequireAccount(); err != nil {
		return "", errors.Wrap(err, "--zonesFile is not set")
	}

	return defaultZonesFile(c.cfg.AccountID), nil
}

func (c *cli) loadZones() ([]zone.Info, error) {
	path, err := c.zonesFile()
	if err != nil {
		return nil, err
	}

	zones, err := zone.LoadCSV(path)
	if err != nil {
		return nil, err
	}

	c.logger.WithField("file", path).WithField("zones", len(zones)).Info("Zone inventory loaded")

	return zones, nil
}

func (c *cli) hideProgress() bool {
	return c.quiet || c.logFormat == jsonLogFormat
}

func defaultZonesFile(accountID string) string {
	return fmt.Sprintf("enterprise_domains_%s.csv", accountID)
}
