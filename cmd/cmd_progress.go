// cmd_progress.go - Fortschrittszeile fuer lange Laeufe
// Hauptfunktionen: newProgressLine, progressLine.Update, progressLine.Done
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// progressLine ueberschreibt eine einzelne Terminalzeile. Ohne Terminal
// wird nur jeder zehnte Prozentpunkt als eigene Zeile geschrieben.
type progressLine struct {
	w     io.Writer
	tty   bool
	width int
	last  int
}

func newProgressLine(f *os.File) *progressLine {
	p := &progressLine{w: f, width: 80, last: -10}
	if term.IsTerminal(int(f.Fd())) {
		p.tty = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			p.width = w
		}
	}
	return p
}

func (p *progressLine) Update(step int, percent float64) {
	pct := int(percent * 100)

	if !p.tty {
		if pct/10 != p.last/10 || pct == 100 {
			fmt.Fprintf(p.w, "step %d (%d%%)\n", step, pct)
		}
		p.last = pct
		return
	}

	label := fmt.Sprintf(" step %6d %3d%%", step, pct)
	bar := max(p.width-len(label)-3, 10)
	filled := min(int(percent*float64(bar)), bar)

	fmt.Fprintf(p.w, "\r[%s%s]%s", strings.Repeat("=", filled), strings.Repeat(" ", bar-filled), label)
	p.last = pct
}

func (p *progressLine) Done() {
	if p.tty {
		fmt.Fprintln(p.w)
	}
}
