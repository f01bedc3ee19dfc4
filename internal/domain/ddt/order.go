package ddt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ReportFile is the per-order metadata record.
const ReportFile = "report.json"

var (
	folderCodePattern = regexp.MustCompile(`_C([A-Za-z0-9]+)$`)
	nonAlnum          = regexp.MustCompile(`[^A-Za-z0-9]`)
	leadingInt        = regexp.MustCompile(`^[+-]?\d+`)
)

// Loose holds a JSON value that may be written as a string or a number.
type Loose string

// UnmarshalJSON implements json.Unmarshaler.
func (l *Loose) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Loose(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*l = Loose(n.String())
	return nil
}

// Int parses the leading integer of the value; anything else is 0.
func (l Loose) Int() int {
	s := strings.TrimSpace(string(l))
	if m := leadingInt.FindString(s); m != "" {
		n, _ := strconv.Atoi(m)
		return n
	}
	return 0
}

// Pallet is one pallet line of a delivery.
type Pallet struct {
	Quantity Loose `json:"quantiBancali"`
}

// Delivery groups the pallets shipped together.
type Delivery struct {
	Pallets []Pallet `json:"bancali"`
}

// Metadata is the subset of report.json used for numbering and rendering.
type Metadata struct {
	OrderCode  string     `json:"codiceCommessa"`
	Quantity   Loose      `json:"quantita"`
	Name       string     `json:"nome"`
	Archived   bool       `json:"archiviata"`
	Deliveries []Delivery `json:"consegne"`
}

// LoadMetadata reads report.json from folder. A missing file yields empty metadata.
func LoadMetadata(folder string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(filepath.Join(folder, ReportFile))
	if errors.Is(err, fs.ErrNotExist) {
		return meta, nil
	}
	if err != nil {
		return meta, fmt.Errorf("read %s: %w", ReportFile, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode %s: %w", ReportFile, err)
	}
	return meta, nil
}

// OrderCode returns the canonical order code used in file names.
// The metadata code wins; otherwise the trailing _C<code> segment of the
// folder name; otherwise the folder name itself.
func OrderCode(folder string, meta Metadata) string {
	if code := nonAlnum.ReplaceAllString(meta.OrderCode, ""); code != "" {
		return code
	}
	name := filepath.Base(filepath.Clean(folder))
	if m := folderCodePattern.FindStringSubmatch(name); m != nil {
		return "C" + m[1]
	}
	return name
}

// DisplayName is the human order name, used in the Descrizione field.
func DisplayName(folder string, meta Metadata) string {
	if strings.TrimSpace(meta.Name) != "" {
		return meta.Name
	}
	return filepath.Base(filepath.Clean(folder))
}

// Packages computes the package count (colli): the sum of every pallet
// quantity, else the order quantity when positive, else 1.
func Packages(meta Metadata) int {
	sum := 0
	for _, d := range meta.Deliveries {
		for _, p := range d.Pallets {
			sum += p.Quantity.Int()
		}
	}
	if sum > 0 {
		return sum
	}
	if q := meta.Quantity.Int(); q > 0 {
		return q
	}
	return 1
}
