package zone

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// CSV header columns of a zone inventory file.
const (
	DomainColumn = "Domain Name"
	PlanColumn   = "Plan"
	ZoneIDColumn = "Zone ID"
)

var ErrMissingColumn = errors.New("missing column in zones file")

// Info is one zone of the inventory. Domain is its identity.
type Info struct {
	Domain string `json:"domain" yaml:"domain"`
	Plan   string `json:"plan" yaml:"plan"`
	ZoneID string `json:"zone_id" yaml:"zone_id"`
}

// LoadCSV reads a zone inventory written by WriteCSV (or exported from the
// dashboard) from path.
func LoadCSV(path string) ([]Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open zones file")
	}
	defer f.Close()

	zones, err := ReadCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't read %s", path)
	}

	return zones, nil
}

// ReadCSV parses the inventory. Columns are looked up by header name.
func ReadCSV(r io.Reader) ([]Info, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(ErrMissingColumn, "empty file")
	}
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		// Excel likes to prepend a BOM to the first header cell
		name = strings.TrimPrefix(name, "\ufeff")
		index[strings.TrimSpace(name)] = i
	}

	cols := make([]int, 0, 3)
	for _, name := range []string{DomainColumn, PlanColumn, ZoneIDColumn} {
		i, ok := index[name]
		if !ok {
			return nil, errors.Wrapf(ErrMissingColumn, "%q", name)
		}
		cols = append(cols, i)
	}

	var zones []Info
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		field := func(i int) string {
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		z := Info{
			Domain: field(cols[0]),
			Plan:   field(cols[1]),
			ZoneID: field(cols[2]),
		}
		if z.Domain == "" && z.ZoneID == "" {
			continue
		}

		zones = append(zones, z)
	}

	return zones, nil
}

// WriteCSV writes zones with the inventory header to path.
func WriteCSV(path string, zones []Info) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "couldn't create zones file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err = w.Write([]string{DomainColumn, PlanColumn, ZoneIDColumn}); err != nil {
		return err
	}

	for _, z := range zones {
		if err = w.Write([]string{z.Domain, z.Plan, z.ZoneID}); err != nil {
			return err
		}
	}

	w.Flush()

	return w.Error()
}

// Find returns the first zone with the given domain.
func Find(zones []Info, domain string) (Info, bool) {
	for _, z := range zones {
		if strings.EqualFold(z.Domain, domain) {
			return z, true
		}
	}

	return Info{}, false
}

// IDs returns zone IDs in inventory order, at most limit of them when limit
// is positive.
func IDs(zones []Info, limit int) []string {
	if limit > 0 && limit < len(zones) {
		zones = zones[:limit]
	}

	ids := make([]string, 0, len(zones))
	for _, z := range zones {
		ids = append(ids, z.ZoneID)
	}

	return ids
}
