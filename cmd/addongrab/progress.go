package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// progressPrinter renders a single-line download progress readout. It
// stays silent when the writer is not a terminal so piped or logged
// output is not littered with carriage returns.
type progressPrinter struct {
	w       io.Writer
	enabled bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	enabled := false
	if f, ok := w.(*os.File); ok {
		enabled = term.IsTerminal(int(f.Fd()))
	}
	return &progressPrinter{w: w, enabled: enabled}
}

// update is a fetch.Progress hook. It rewrites the progress line on each
// call and finishes it with a newline once the download completes. A
// batch run reuses one printer across downloads.
func (p *progressPrinter) update(received, total int64) {
	if !p.enabled {
		return
	}
	fmt.Fprintf(p.w, "\rDownloading... %s / %s",
		humanize.Bytes(uint64(received)), humanize.Bytes(uint64(total)))
	if received >= total {
		fmt.Fprintln(p.w)
	}
}
