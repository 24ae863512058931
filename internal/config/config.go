package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/mcnijman/go-emailaddress"
	"github.com/pkg/errors"
)

// maxEmailLength is the RFC 5321 path limit.
const maxEmailLength = 254

type Config struct {
	// Credentials
	AuthEmail string `mapstructure:"authEmail" validate:"required_without=APIToken,omitempty,email"`
	AuthKey   string `mapstructure:"authKey" validate:"required_without=APIToken"`
	APIToken  string `mapstructure:"apiToken"`
	AccountID string `mapstructure:"accountID" validate:"omitempty,hexadecimal,len=32"`

	// API client settings
	BaseURL    string  `mapstructure:"baseURL" validate:"omitempty,url"`
	Proxy      string  `mapstructure:"proxy" validate:"omitempty,url"`
	TLSVerify  bool    `mapstructure:"tlsVerify"`
	Timeout    int     `mapstructure:"timeout" validate:"min=0"`
	MaxRetries int     `mapstructure:"maxRetries" validate:"min=0,max=10"`
	RateLimit  float64 `mapstructure:"rateLimit" validate:"min=0"`

	// Performance settings
	Workers int `mapstructure:"workers" validate:"min=1,max=64"`

	// Input settings
	ZonesFile string `mapstructure:"zonesFile"`

	// Report settings
	ReportPath   string   `mapstructure:"reportPath" validate:"required"`
	ReportName   string   `mapstructure:"reportName"`
	ReportFormat []string `mapstructure:"reportFormat"`

	// config.yaml
	HTTPHeaders map[string]string `mapstructure:"headers"`
	ZoneGroups  []ZoneGroup       `mapstructure:"zoneGroups" validate:"dive"`

	// Other settings
	LogLevel  string `mapstructure:"logLevel"`
	LogFormat string `mapstructure:"logFormat" validate:"omitempty,oneof=text json"`
	Quiet     bool   `mapstructure:"quiet"`

	Args []string
}

// ZoneGroup is a named set of zones whose analytics are summed together.
// Primary, when set, is reported separately from the rest of the group.
type ZoneGroup struct {
	Name    string   `mapstructure:"name" validate:"required"`
	Primary string   `mapstructure:"primary"`
	Zones   []string `mapstructure:"zones" validate:"required,min=1"`
}

// Validate checks the merged configuration and normalizes the auth email.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		var validatorErr validator.ValidationErrors
		if errors.As(err, &validatorErr) {
			return errors.Wrap(validatorErr, "invalid configuration")
		}

		return errors.Wrap(err, "couldn't validate configuration")
	}

	if c.AuthEmail != "" {
		addr, err := emailaddress.Parse(c.AuthEmail)
		if err != nil {
			return errors.Wrap(err, "invalid authEmail")
		}
		email := addr.String()
		if len(email) > maxEmailLength {
			return errors.Errorf("authEmail is longer than %d characters", maxEmailLength)
		}
		c.AuthEmail = email
	}

	return nil
}

// RequireAccount reports a usable error for commands that work on the
// account level.
func (c *Config) RequireAccount() error {
	if c.AccountID == "" {
		return errors.New("--accountID is not set")
	}

	return nil
}
