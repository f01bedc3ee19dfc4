// Package ddt holds the delivery-note grammar: file names, order codes and
// the per-order metadata read from report.json.
package ddt

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"commesse/internal/core/numerator"
	pkgnumerator "commesse/pkg/numerator"
)

// DateLayout is the date embedded in file names.
const DateLayout = "02-01-2006"

// DisplayLayout is the date used in form fields and the register.
const DisplayLayout = "02/01/2006"

// MaterialsDir is the order subfolder holding generated documents.
const MaterialsDir = "MATERIALI"

var (
	uscitaPattern  = regexp.MustCompile(`(?i)^DDT_(\d{4})T_.*\.pdf$`)
	entrataPattern = regexp.MustCompile(`(?i)^DDT_(\d{4})W_.*_\d{2}[-_]\d{2}[-_]\d{4}\.pdf$`)

	// documentPattern splits a name into number, suffix, code and optional date.
	documentPattern = regexp.MustCompile(`(?i)^DDT_(\d{4})([WT])_(.*?)(?:_(\d{2})[-_](\d{2})[-_](\d{4}))?\.pdf$`)
)

// Document is a generated delivery note identified by its file name.
type Document struct {
	Class     numerator.Class
	Number    int
	OrderCode string
	Date      time.Time // zero when the name carries no date
	Name      string
}

// DocumentNumber returns the public number, e.g. "0007W".
func (d Document) DocumentNumber() string {
	return pkgnumerator.Format(d.Class, d.Number)
}

// HasDate reports whether the file name carried a parsable date.
func (d Document) HasDate() bool { return !d.Date.IsZero() }

// Matches reports whether name belongs to class under the reconciliation grammar.
// Uscita names need no date; entrata names must end with one.
func Matches(class numerator.Class, name string) bool {
	switch class {
	case numerator.Uscita:
		return uscitaPattern.MatchString(name)
	case numerator.Entrata:
		return entrataPattern.MatchString(name)
	}
	return false
}

// NumberOf returns the embedded number when name matches class.
func NumberOf(class numerator.Class, name string) (int, bool) {
	var m []string
	switch class {
	case numerator.Uscita:
		m = uscitaPattern.FindStringSubmatch(name)
	case numerator.Entrata:
		m = entrataPattern.FindStringSubmatch(name)
	}
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// FileName builds the canonical name DDT_<NNNN><W|T>_<code>_<DD-MM-YYYY>.pdf.
func FileName(class numerator.Class, number int, orderCode string, date time.Time) (string, error) {
	if !class.Valid() {
		return "", fmt.Errorf("unknown class %q", class)
	}
	if !pkgnumerator.Fits(number) {
		return "", fmt.Errorf("number %d does not fit %d digits", number, pkgnumerator.PadWidth)
	}
	if orderCode == "" {
		return "", fmt.Errorf("empty order code")
	}
	return fmt.Sprintf("DDT_%s_%s_%s.pdf",
		pkgnumerator.Format(class, number), orderCode, date.Format(DateLayout)), nil
}

// Parse splits a generated file name. Separators in the date may be '-' or '_'.
func Parse(name string) (Document, bool) {
	base := filepath.Base(name)
	m := documentPattern.FindStringSubmatch(base)
	if m == nil {
		return Document{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Document{}, false
	}
	class, err := numerator.ParseClass(m[2])
	if err != nil {
		return Document{}, false
	}

	doc := Document{Class: class, Number: n, OrderCode: m[3], Name: base}
	if m[4] != "" {
		if d, err := time.ParseInLocation(DateLayout, m[4]+"-"+m[5]+"-"+m[6], time.Local); err == nil {
			doc.Date = d
		}
	}
	return doc, true
}

// SameDayPattern matches any document of class for orderCode issued on date.
func SameDayPattern(class numerator.Class, orderCode string, date time.Time) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?i)^DDT_\d{4}%s_%s_%s[-_]%s[-_]%s\.pdf$`,
		class.Suffix(),
		regexp.QuoteMeta(orderCode),
		date.Format("02"), date.Format("01"), date.Format("2006"),
	))
}

// AnyDayPattern matches any document of class for orderCode regardless of date.
func AnyDayPattern(class numerator.Class, orderCode string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?i)^DDT_\d{4}%s_%s_.*\.pdf$`,
		class.Suffix(), regexp.QuoteMeta(orderCode)))
}

// MaterialsPath returns the document subfolder of an order folder.
func MaterialsPath(folder string) string {
	return filepath.Join(folder, MaterialsDir)
}

// IsOrderFolderName reports whether name follows BRAND_PRODUCT_PROJECT_CODE.
func IsOrderFolderName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	parts := strings.Split(name, "_")
	if len(parts) < 4 {
		return false
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return false
		}
	}
	return true
}
