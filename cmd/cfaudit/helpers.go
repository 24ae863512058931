package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/edgeops/cfaudit/internal/daterange"
	"github.com/edgeops/cfaudit/internal/report"
)

// secretFlags are never written to reports in clear text.
var secretFlags = map[string]bool{
	"authKey":  true,
	"apiToken": true,
}

const maskedValue = "***"

func validateLogFormat(logFormat string) error {
	if _, ok := logFormatsSet[logFormat]; !ok {
		return fmt.Errorf("invalid log format: %s", logFormat)
	}

	return nil
}

// normalizeArgs returns the used CLI args in a unified form.
func normalizeArgs(flags *flag.FlagSet) ([]string, error) {
	var (
		args []string
		err  error
	)

	fn := func(f *flag.Flag) {
		var (
			value string
			arg   string
		)

		argType := f.Value.Type()
		switch argType {
		case "string":
			value = strings.TrimSpace(f.Value.String())

			if strings.Contains(value, " ") {
				value = `"` + value + `"`
			}

			arg = fmt.Sprintf("--%s=%s", f.Name, value)

		case "stringSlice":
			// remove square brackets: [xlsx,json] -> xlsx,json
			value = strings.Trim(f.Value.String(), "[]")
			arg = fmt.Sprintf("--%s=%s", f.Name, value)

		case "bool":
			if f.Value.String() == "true" {
				arg = fmt.Sprintf("--%s", f.Name)
			} else {
				arg = fmt.Sprintf("--%s=false", f.Name)
			}

		case "int", "float64":
			value = f.Value.String()
			arg = fmt.Sprintf("--%s=%s", f.Name, value)

		default:
			err = multierror.Append(err, fmt.Errorf("unknown CLI argument type: %s", argType))
			return
		}

		if secretFlags[f.Name] {
			arg = fmt.Sprintf("--%s=%s", f.Name, maskedValue)
		}

		args = append(args, arg)
	}

	// get all changed flags
	flags.Visit(fn)

	if err != nil {
		return nil, err
	}

	return args, nil
}

func isInteractive() bool {
	return terminal.IsTerminal(int(os.Stdin.Fd()))
}

// prompt reads one trimmed line from in after printing label to out.
func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", errors.Wrap(err, "couldn't read input")
	}

	return strings.TrimSpace(line), nil
}

// valueOrPrompt returns value, or asks for it on an interactive terminal.
// A missing value in a non-interactive session is an error naming flagName.
func valueOrPrompt(value, flagName, label string) (string, error) {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}

	if !isInteractive() {
		return "", errors.Errorf("--%s is not set and the session is not interactive", flagName)
	}

	line, err := prompt(os.Stdin, os.Stdout, label)
	if err != nil {
		return "", err
	}
	if line == "" {
		return "", errors.Errorf("--%s is required", flagName)
	}

	return line, nil
}

// dateRange resolves --start/--end, prompting for a missing one.
func dateRange(start, end string) (daterange.DateRange, error) {
	start, err := valueOrPrompt(start, "start", "Enter start date (YYYY-MM-DD): ")
	if err != nil {
		return daterange.DateRange{}, err
	}

	end, err = valueOrPrompt(end, "end", "Enter end date (YYYY-MM-DD): ")
	if err != nil {
		return daterange.DateRange{}, err
	}

	return daterange.New(start, end)
}

// parsePeriod parses "YYYY-MM-DD:YYYY-MM-DD".
func parsePeriod(s string) (daterange.DateRange, error) {
	start, end, ok := strings.Cut(s, ":")
	if !ok {
		return daterange.DateRange{}, errors.Errorf("period %q must be START:END", s)
	}

	return daterange.New(start, end)
}

// promptPeriods asks for query periods until "q" or an empty start date is
// entered. Invalid dates are reported and asked for again.
func promptPeriods(in io.Reader, out io.Writer) ([]daterange.DateRange, error) {
	reader := bufio.NewReader(in)

	readLine := func(label string) (string, bool) {
		fmt.Fprint(out, label)
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if err != nil && line == "" {
			return "", false
		}
		return line, !strings.EqualFold(line, "q") && line != ""
	}

	var ranges []daterange.DateRange

	for {
		start, ok := readLine("Enter start date (YYYY-MM-DD) or 'q' to quit: ")
		if !ok {
			break
		}
		end, ok := readLine("Enter end date (YYYY-MM-DD): ")
		if !ok {
			break
		}

		r, err := daterange.New(start, end)
		if err != nil {
			fmt.Fprintf(out, "Invalid period: %v\n", err)
			continue
		}
		ranges = append(ranges, r)
	}

	if len(ranges) == 0 {
		return nil, errors.New("no query period given")
	}

	return ranges, nil
}

// printTables writes console tables unless quiet; with JSON logs the tables
// are printed as JSON lines.
func (c *cli) printTables(tables ...*report.Table) error {
	if c.quiet {
		return nil
	}

	for _, t := range tables {
		if c.logFormat == jsonLogFormat {
			jsonBytes, err := json.Marshal(t)
			if err != nil {
				return errors.Wrap(err, "couldn't export table to JSON")
			}
			fmt.Fprintln(os.Stdout, string(jsonBytes))
			continue
		}

		if err := report.PrintTable(os.Stdout, t); err != nil {
			return err
		}
	}

	return nil
}
