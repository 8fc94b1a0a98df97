package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/invkeeper/internal/inventory"
	"github.com/dmitrijs2005/invkeeper/internal/logging"
	"github.com/dmitrijs2005/invkeeper/internal/models"
	"golang.org/x/term"
)

// Test seams for terminal detection.
var (
	isTerminal = term.IsTerminal
	getSize    = term.GetSize
)

const defaultWidth = 80

// progressView renders ingest events. On a terminal the progress line is
// redrawn in place; otherwise one line per 10 % is printed.
type progressView struct {
	w       io.Writer
	tty     bool
	width   int
	open    bool
	sampler *logging.ProgressSampler
}

func newProgressView(w io.Writer) *progressView {
	p := &progressView{w: w, width: defaultWidth, sampler: logging.NewProgressSampler(10)}
	if f, ok := w.(*os.File); ok && isTerminal(int(f.Fd())) {
		p.tty = true
		if cols, _, err := getSize(int(f.Fd())); err == nil && cols > 0 {
			p.width = cols
		}
	}
	return p
}

func (p *progressView) event(ev models.IngestEvent) {
	switch {
	case ev.Progress != nil:
		p.progress(ev.Stage, *ev.Progress)
	case ev.Stage == models.StageDerivingThumbnail:
		p.line("Preparing thumbnail")
	case ev.Stage == models.StageDone:
		p.line("Upload complete")
	case ev.Stage == models.StageFailed:
		msg := "Upload failed"
		if ev.Err != nil {
			msg += ": " + ev.Err.Error()
		}
		p.line(msg)
	}
}

func (p *progressView) progress(stage models.Stage, pr models.Progress) {
	label := inventory.ProgressLabel(stage, pr)
	if !p.tty {
		if p.sampler.ShouldLog(stage.String(), pr.FractionCompleted) {
			fmt.Fprintln(p.w, label)
		}
		return
	}
	if len(label) > p.width-1 {
		label = label[:p.width-1]
	}
	fmt.Fprint(p.w, "\r"+label+strings.Repeat(" ", p.width-1-len(label)))
	p.open = true
}

func (p *progressView) line(s string) {
	p.end()
	fmt.Fprintln(p.w, s)
}

// end terminates a redrawn progress line.
func (p *progressView) end() {
	if p.open {
		fmt.Fprintln(p.w)
		p.open = false
	}
}
