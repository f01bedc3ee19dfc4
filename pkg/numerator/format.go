// Package numerator formats and parses public delivery-note numbers.
//
// A public number is the 4-digit zero-padded progressivo followed by the class
// suffix letter: 7 issued as entrata renders as "0007W", as uscita "0007T".
package numerator

import (
	"fmt"
	"strconv"
	"strings"

	core "commesse/internal/core/numerator"
)

// PadWidth is the fixed width of the numeric part.
const PadWidth = 4

// Pad renders n zero-padded to PadWidth digits ("0007").
func Pad(n int) string {
	return fmt.Sprintf("%0*d", PadWidth, n)
}

// Format renders the public document number for class ("0007W").
func Format(class core.Class, n int) string {
	return Pad(n) + class.Suffix()
}

// Parse extracts the numeric part and class from a public number such as "0007W" or "0012t".
// Returns ok=false if the input is not exactly four digits and a known suffix.
func Parse(formatted string) (n int, class core.Class, ok bool) {
	s := strings.TrimSpace(formatted)
	if len(s) != PadWidth+1 {
		return 0, "", false
	}
	class, err := core.ParseClass(s[PadWidth:])
	if err != nil {
		return 0, "", false
	}
	n, err = strconv.Atoi(s[:PadWidth])
	if err != nil || n < 0 {
		return 0, "", false
	}
	return n, class, true
}

// Fits reports whether n can be issued within the 4-digit grammar.
func Fits(n int) bool {
	return n >= 1 && n <= core.MaxNumber
}
