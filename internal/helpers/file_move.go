package helpers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileMove moves a finished report from a temporary location to destPath,
// creating the destination directory when needed. It falls back to copying
// when os.Rename fails (Docker volumes report an invalid cross-device link).
func FileMove(sourcePath, destPath string) error {
	sourceFileStat, err := os.Stat(sourcePath)
	if err != nil {
		return err
	}

	destFileStat, err := os.Stat(destPath)
	if err == nil {
		if sourcePath == destPath || os.SameFile(sourceFileStat, destFileStat) {
			return fmt.Errorf("files %s and %s are the same", sourcePath, destPath)
		}
	}

	if err = os.MkdirAll(filepath.Dir(destPath), 0700); err != nil {
		return err
	}

	if err = os.Rename(sourcePath, destPath); err == nil {
		return nil
	}

	inputFile, err := os.Open(sourcePath)
	if err != nil {
		return err
	}

	outputFile, err := os.Create(destPath)
	if err != nil {
		inputFile.Close()
		return err
	}

	_, err = io.Copy(outputFile, inputFile)
	inputFile.Close()
	outputFile.Close()

	if err != nil {
		if errRem := os.Remove(destPath); errRem != nil {
			return fmt.Errorf(
				"unable to os.Remove error: %s after io.Copy error: %s",
				errRem,
				err,
			)
		}

		return err
	}

	return os.Remove(sourcePath)
}
