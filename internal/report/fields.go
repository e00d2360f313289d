package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/hyqhyq3/wmtr/internal/mtr"
)

// DefaultFields is the column order used when none is given.
const DefaultFields = "LS NABWV"

// Mode selects the getter flavour a report reads with. Unsafe is only valid
// once the trace has finished.
type Mode int

const (
	Safe Mode = iota
	Unsafe
)

type Getter func(s *mtr.Session, at int) any

// Field describes one report column. Format renders exactly Width runes for
// in-range values.
type Field struct {
	Key         rune
	Description string
	Title       string
	Format      string
	Width       int
	Safe        Getter
	Unsafe      Getter
}

func getter[T any](fn func(*mtr.Session, int) T) Getter {
	return func(s *mtr.Session, at int) any { return fn(s, at) }
}

var fields = []Field{
	{' ', "<sp>: Space between fields", " ", " ", 1, nil, nil},
	{'L', "L:    Loss Ratio", "Loss%", " %5.1f%%", 7, getter((*mtr.Session).Percent), getter((*mtr.Session).PercentUnsafe)},
	{'D', "D:    Dropped Packets", "Drop", " %4d", 5, getter((*mtr.Session).Dropped), getter((*mtr.Session).DroppedUnsafe)},
	{'R', "R:    Received Packets", "Rcv", " %4d", 5, getter((*mtr.Session).Returned), getter((*mtr.Session).ReturnedUnsafe)},
	{'S', "S:    Sent Packets", "Snt", " %4d", 5, getter((*mtr.Session).Xmit), getter((*mtr.Session).XmitUnsafe)},
	{'N', "N:    Newest RTT(ms)", "Last", " %4d", 5, getter((*mtr.Session).Last), getter((*mtr.Session).LastUnsafe)},
	{'B', "B:    Min/Best RTT(ms)", "Best", " %4d", 5, getter((*mtr.Session).Best), getter((*mtr.Session).BestUnsafe)},
	{'A', "A:    Average RTT(ms)", "Avg", " %6.1f", 7, getter((*mtr.Session).Avg), getter((*mtr.Session).AvgUnsafe)},
	{'W', "W:    Max/Worst RTT(ms)", "Wrst", " %4d", 5, getter((*mtr.Session).Worst), getter((*mtr.Session).WorstUnsafe)},
	{'V', "V:    Standard Deviation", "StDev", " %6.1f", 7, getter((*mtr.Session).StDev), getter((*mtr.Session).StDevUnsafe)},
	{'G', "G:    Geometric Mean", "Gmean", " %6.1f", 7, getter((*mtr.Session).GMean), getter((*mtr.Session).GMeanUnsafe)},
	{'J', "J:    Current Jitter", "Jttr", " %4d", 5, getter((*mtr.Session).Jitter), getter((*mtr.Session).JitterUnsafe)},
	{'M', "M:    Jitter Mean/Avg.", "Javg", " %6.1f", 7, getter((*mtr.Session).JAvg), getter((*mtr.Session).JAvgUnsafe)},
	{'X', "X:    Worst Jitter", "Jmax", " %4d", 5, getter((*mtr.Session).JWorst), getter((*mtr.Session).JWorstUnsafe)},
	{'I', "I:    Interarrival Jitter", "Jint", " %4d", 5, getter((*mtr.Session).JInta), getter((*mtr.Session).JIntaUnsafe)},
	{'O', "O:    Geo Location", "Location", " %-23s", 24, getter((*mtr.Session).Location), getter((*mtr.Session).LocationUnsafe)},
}

// Fields returns the descriptors selected by order, one per known key.
// Unknown keys are skipped.
func Fields(order string) []Field {
	out := make([]Field, 0, len(order))
	for _, key := range order {
		if f, ok := Lookup(key); ok {
			out = append(out, f)
		}
	}
	return out
}

func Lookup(key rune) (Field, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Value reads the field for hop at. Separator fields have no value.
func (f Field) Value(s *mtr.Session, at int, mode Mode) any {
	get := f.Safe
	if mode == Unsafe {
		get = f.Unsafe
	}
	if get == nil {
		return nil
	}
	return get(s, at)
}

// Cell renders the field for hop at, padded or cut to Width.
func (f Field) Cell(s *mtr.Session, at int, mode Mode) string {
	v := f.Value(s, at, mode)
	if v == nil {
		return fit(f.Format, f.Width)
	}
	return fit(fmt.Sprintf(f.Format, v), f.Width)
}

// Header renders the right-aligned column title.
func (f Field) Header() string {
	return fmt.Sprintf("%*s", f.Width, f.Title)
}

// HelpFormat lists the field keys accepted by --order.
func HelpFormat(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "order format usage: [key+], for example '%s'\n", DefaultFields)
	b.WriteString("\tkey:  field description\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "\t%s\n", f.Description)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func fit(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-len(r))
}
