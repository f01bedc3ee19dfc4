package ddt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"commesse/internal/core/numerator"
)

// OutboundRef points at the latest outbound note of an order ("Ns DDT" / "del").
type OutboundRef struct {
	Number string // e.g. "0017T"
	Date   string // DD/MM/YYYY, empty when the name carried no date
	Name   string
}

// List returns the file names in dir. A missing dir is an empty list.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// HasClass reports whether any name in names is a document of class.
func HasClass(names []string, class numerator.Class) bool {
	for _, n := range names {
		if Matches(class, n) {
			return true
		}
	}
	return false
}

// LatestOutbound picks the newest outbound note by embedded date.
// Undated names sort last; ties keep the higher number.
func LatestOutbound(names []string) (OutboundRef, bool) {
	var docs []Document
	for _, n := range names {
		if !Matches(numerator.Uscita, n) {
			continue
		}
		if d, ok := Parse(n); ok {
			docs = append(docs, d)
		}
	}
	if len(docs) == 0 {
		return OutboundRef{}, false
	}

	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if a.HasDate() != b.HasDate() {
			return a.HasDate()
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.Number > b.Number
	})

	d := docs[0]
	ref := OutboundRef{Number: d.DocumentNumber(), Name: d.Name}
	if d.HasDate() {
		ref.Date = d.Date.Format(DisplayLayout)
	}
	return ref, true
}
