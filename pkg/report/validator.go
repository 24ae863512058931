package report

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

const (
	maxSheetNameLength = 31
	invalidSheetChars  = `[]:*?/\`
)

var (
	versionRegex = regexp.MustCompile(`^(v\d+\.\d+\.\d+(\-\d+\-g[a-f0-9]{7})?)$`)
	argsRegex    = regexp.MustCompile(`^\-\-[A-Za-z][A-Za-z0-9]*(\=[^\r\n]+)?$`)
)

var customValidators = map[string]validator.Func{
	"cfaudit_version": validateVersion,
	"args":            validateArgs,
	"sheet_name":      validateSheetName,
}

func validateVersion(fl validator.FieldLevel) bool {
	version := fl.Field().String()

	// skip validation if 'unknown' version
	if version == "unknown" {
		return true
	}

	return versionRegex.MatchString(version)
}

func validateArgs(fl validator.FieldLevel) bool {
	return argsRegex.MatchString(fl.Field().String())
}

func validateSheetName(fl validator.FieldLevel) bool {
	name := fl.Field().String()

	if name == "" || utf8.RuneCountInString(name) > maxSheetNameLength {
		return false
	}

	return !strings.ContainsAny(name, invalidSheetChars)
}

// ValidateReportData validates report data
func ValidateReportData(reportData *HtmlReport) error {
	validate := validator.New()
	for tag, validatorFunc := range customValidators {
		err := validate.RegisterValidation(tag, validatorFunc)
		if err != nil {
			return errors.Wrap(err, "couldn't build validator")
		}
	}

	err := validate.Struct(reportData)
	if err != nil {
		var validatorErr validator.ValidationErrors
		if errors.As(err, &validatorErr) {
			return &ValidationError{validatorErr}
		}

		return errors.Wrap(err, "couldn't validate report data")
	}

	return nil
}
