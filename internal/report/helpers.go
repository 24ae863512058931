package report

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/edgeops/cfaudit/internal/helpers"
)

// writeAtomically renders a file into a temporary location and moves it to
// dst once complete, so an interrupted run leaves no truncated report.
func writeAtomically(dst string, write func(path string) error) error {
	tmp, err := os.CreateTemp("", "cfaudit-*"+filepath.Ext(dst))
	if err != nil {
		return errors.Wrap(err, "couldn't create temporary file")
	}

	tmpPath := tmp.Name()
	tmp.Close()

	if err = write(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err = helpers.FileMove(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "couldn't save %s", dst)
	}

	return nil
}

// WriteJSON saves v as indented JSON. Raw API responses are archived with it.
func WriteJSON(path string, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "couldn't dump data to JSON")
	}

	return writeAtomically(path, func(tmp string) error {
		if err := os.WriteFile(tmp, jsonBytes, 0o644); err != nil {
			return errors.Wrap(err, "couldn't write JSON file")
		}
		return nil
	})
}
