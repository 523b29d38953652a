package probe

import (
	"io"

	"github.com/fatih/color"
)

// printer writes the probe's report lines. Colours switch off on their own when
// the writer is not a terminal (color.NoColor).
type printer struct {
	w       io.Writer
	sentC   *color.Color
	recvC   *color.Color
	noticeC *color.Color
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:       w,
		sentC:   color.New(color.FgCyan),
		recvC:   color.New(color.FgGreen),
		noticeC: color.New(color.FgYellow),
	}
}

func (p *printer) sent(headers, payload string) {
	p.sentC.Fprintf(p.w, "Sent with headers: %s payload: %s\n", headers, payload)
}

func (p *printer) received(headers, payload string) {
	p.recvC.Fprintf(p.w, "Received headers: %s payload: %s\n", headers, payload)
}

func (p *printer) notice(msg string) {
	p.noticeC.Fprintln(p.w, msg)
}
