package daterange

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Layout is the only accepted calendar date format.
const Layout = "2006-01-02"

// graphQLLayout is the RFC 3339 form the analytics API expects.
const graphQLLayout = "2006-01-02T15:04:05Z"

var (
	ErrInvalidDate   = errors.New("date must be in YYYY-MM-DD format")
	ErrReversedRange = errors.New("start date is after end date")
	ErrSpanTooLong   = errors.New("date range is too long")
	ErrFutureDate    = errors.New("end date is in the future")
)

// KST is the business timezone used for daily bot management windows.
var KST = time.FixedZone("KST", 9*60*60)

// DateRange is an inclusive range of calendar days. Start is never after End.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Parse parses a single YYYY-MM-DD date.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidDate, "bad value %q", s)
	}

	return t, nil
}

// ParseList parses a comma separated list of dates, skipping empty items.
func ParseList(s string) ([]time.Time, error) {
	var dates []time.Time

	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}

		d, err := Parse(part)
		if err != nil {
			return nil, err
		}

		dates = append(dates, d)
	}

	if len(dates) == 0 {
		return nil, errors.Wrap(ErrInvalidDate, "no dates given")
	}

	return dates, nil
}

// New builds a validated range from two YYYY-MM-DD strings.
func New(start, end string) (DateRange, error) {
	s, err := Parse(start)
	if err != nil {
		return DateRange{}, errors.Wrap(err, "start date")
	}

	e, err := Parse(end)
	if err != nil {
		return DateRange{}, errors.Wrap(err, "end date")
	}

	if s.After(e) {
		return DateRange{}, errors.Wrapf(ErrReversedRange, "%s > %s", start, end)
	}

	return DateRange{Start: s, End: e}, nil
}

// StartDate returns the start day as YYYY-MM-DD.
func (r DateRange) StartDate() string {
	return r.Start.Format(Layout)
}

// EndDate returns the end day as YYYY-MM-DD.
func (r DateRange) EndDate() string {
	return r.End.Format(Layout)
}

// Key identifies the range in file names and result maps.
func (r DateRange) Key() string {
	return r.StartDate() + "_" + r.EndDate()
}

func (r DateRange) String() string {
	return r.StartDate() + " ~ " + r.EndDate()
}

// EndOfDay returns the last second of the end day.
func (r DateRange) EndOfDay() time.Time {
	return r.End.AddDate(0, 0, 1).Add(-time.Second)
}

// CheckLimits rejects ranges longer than maxDays or ending after now.
func (r DateRange) CheckLimits(maxDays int, now time.Time) error {
	days := int(r.EndOfDay().Sub(r.Start).Hours() / 24)
	if maxDays > 0 && days > maxDays {
		return errors.Wrapf(ErrSpanTooLong, "more than %d days", maxDays)
	}

	if r.EndOfDay().After(now) {
		return errors.Wrapf(ErrFutureDate, "%s", r.EndDate())
	}

	return nil
}

// BusinessDay returns the KST window [D 05:00:00, D+1 04:59:59] in UTC.
func BusinessDay(day time.Time) (start, end time.Time) {
	start = time.Date(day.Year(), day.Month(), day.Day(), 5, 0, 0, 0, KST)
	end = start.AddDate(0, 0, 1).Add(-time.Second)

	return start.UTC(), end.UTC()
}

// GraphQLTime formats t as UTC with a trailing Z.
func GraphQLTime(t time.Time) string {
	return t.UTC().Format(graphQLLayout)
}

// KSTTime formats t in KST for console output.
func KSTTime(t time.Time) string {
	return t.In(KST).Format("2006-01-02 15:04:05")
}
