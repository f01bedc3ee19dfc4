// Package numerator provides domain contracts for delivery-note numbering.
package numerator

import (
	"fmt"
	"strings"
)

// Class identifies a document sequence. Each class owns exactly one counter.
type Class string

const (
	// Entrata is the inbound delivery note, suffix "W".
	Entrata Class = "entrata"
	// Uscita is the outbound delivery note, suffix "T".
	Uscita Class = "uscita"
)

// MaxNumber is the highest number that fits the 4-digit filename grammar.
const MaxNumber = 9999

// Classes lists every known class in a stable order.
func Classes() []Class {
	return []Class{Entrata, Uscita}
}

// Suffix returns the letter appended to the padded number in filenames and form fields.
func (c Class) Suffix() string {
	switch c {
	case Entrata:
		return "W"
	case Uscita:
		return "T"
	default:
		return ""
	}
}

// Valid reports whether c is a known class.
func (c Class) Valid() bool {
	return c == Entrata || c == Uscita
}

func (c Class) String() string {
	return string(c)
}

// ParseClass accepts the class name ("entrata", "uscita") or its suffix letter ("W", "T").
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "entrata", "w", "in":
		return Entrata, nil
	case "uscita", "t", "out":
		return Uscita, nil
	}
	return "", fmt.Errorf("unknown document class %q", s)
}
