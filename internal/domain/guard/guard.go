// Package guard answers "has this document already been issued?" from the
// file names in an order's MATERIALI folder.
//
// Two granularities exist. HasSameDay is the generator's own idempotency
// check. HasAny is the looser business rule applied before generation is
// attempted at all.
package guard

import (
	"time"

	"commesse/internal/core/numerator"
	"commesse/internal/domain/ddt"
)

// HasSameDay reports whether dir already holds a class document for orderCode dated date.
func HasSameDay(dir, orderCode string, class numerator.Class, date time.Time) (bool, string, error) {
	names, err := ddt.List(dir)
	if err != nil {
		return false, "", err
	}
	re := ddt.SameDayPattern(class, orderCode, date)
	for _, n := range names {
		if re.MatchString(n) {
			return true, n, nil
		}
	}
	return false, "", nil
}

// HasAny reports whether dir holds a class document for orderCode on any date.
func HasAny(dir, orderCode string, class numerator.Class) (bool, string, error) {
	names, err := ddt.List(dir)
	if err != nil {
		return false, "", err
	}
	re := ddt.AnyDayPattern(class, orderCode)
	for _, n := range names {
		if re.MatchString(n) {
			return true, n, nil
		}
	}
	return false, "", nil
}

// HasOutbound reports whether dir holds any outbound note, whatever its code or date.
func HasOutbound(dir string) (bool, error) {
	names, err := ddt.List(dir)
	if err != nil {
		return false, err
	}
	return ddt.HasClass(names, numerator.Uscita), nil
}
