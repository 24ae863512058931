package platform

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// NewProgressBar returns a counting bar for total units. A hidden bar still
// accepts updates but renders nothing.
func NewProgressBar(description, unit string, total int, hidden bool) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	}

	if hidden {
		opts = append(opts, progressbar.OptionSetWriter(io.Discard))
	}

	return progressbar.NewOptions(total, opts...)
}
