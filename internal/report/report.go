package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyqhyq3/wmtr/internal/mtr"
)

// hostColumn is the width of the host column in the narrow layout.
const hostColumn = 33

type Options struct {
	Mode Mode
	// Fields is the column order, DefaultFields when empty.
	Fields string
	// Wide widens the host column to the longest name instead of cutting
	// names at 33 characters.
	Wide bool
	// LocalHost is printed in the header, os.Hostname when empty.
	LocalHost string
}

// Write prints the classic mtr style report for the hops of sess: a HOST
// header line followed by one " N.|-- name" row per hop up to Max.
func Write(w io.Writer, sess *mtr.Session, opts Options) error {
	order := opts.Fields
	if order == "" {
		order = DefaultFields
	}
	cols := Fields(order)
	local := opts.LocalHost
	if local == "" {
		local, _ = os.Hostname()
	}

	names := make([]string, maxHops(sess, opts.Mode))
	for at := range names {
		names[at] = hopName(sess, at, opts.Mode)
	}

	hostWidth := hostColumn
	if opts.Wide {
		hostWidth = len(local)
		for _, name := range names {
			hostWidth = max(hostWidth, len(name))
		}
	}

	bw := bufio.NewWriter(w)
	var line strings.Builder

	line.WriteString(hostCell(fmt.Sprintf("HOST: %-*s", hostWidth+2, local), hostWidth, opts.Wide))
	for _, f := range cols {
		line.WriteString(f.Header())
	}
	writeLine(bw, &line)

	for at, name := range names {
		line.WriteString(hostCell(fmt.Sprintf(" %2d.|-- %-*s", at+1, hostWidth, name), hostWidth, opts.Wide))
		for _, f := range cols {
			line.WriteString(f.Cell(sess, at, opts.Mode))
		}
		writeLine(bw, &line)
	}
	return bw.Flush()
}

// hostCell cuts the narrow layout to a fixed column; the wide one keeps
// the padded text.
func hostCell(s string, width int, wide bool) string {
	if wide {
		return s
	}
	return fit(s, width)
}

func writeLine(w *bufio.Writer, line *strings.Builder) {
	w.WriteString(strings.TrimRight(line.String(), " "))
	w.WriteByte('\n')
	line.Reset()
}

func maxHops(sess *mtr.Session, mode Mode) int {
	if mode == Unsafe {
		return sess.MaxUnsafe()
	}
	return sess.Max()
}

func hopName(sess *mtr.Session, at int, mode Mode) string {
	if mode == Unsafe {
		return sess.NameUnsafe(at)
	}
	return sess.Name(at)
}
