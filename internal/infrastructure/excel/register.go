// Package excel appends issued delivery notes to the DDT register workbook.
package excel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/xuri/excelize/v2"

	"commesse/internal/domain/ddt"
	"commesse/pkg/logger"
)

// SheetName is the register sheet.
const SheetName = "Registro DDT"

// Header is the first row of the register.
var Header = []any{"Data DDT", "Numero DDT", "Codice commessa", "Quantità", "Colli", "Ns DDT", "Del", "Percorso PDF"}

// Register is a notify sink writing one row per issued document.
type Register struct {
	path string
	mu   sync.Mutex
	log  *logger.Logger
}

// NewRegister creates a sink for the workbook at path. The file is created on first write.
func NewRegister(path string, log *logger.Logger) *Register {
	if log == nil {
		log = logger.Default()
	}
	return &Register{path: path, log: log.WithComponent("ddt-register")}
}

// Name implements notify.Sink.
func (r *Register) Name() string { return "excel-register" }

// Path returns the workbook location.
func (r *Register) Path() string { return r.path }

// Record implements notify.Sink.
func (r *Register) Record(ctx context.Context, n ddt.Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return fmt.Errorf("read register rows: %w", err)
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return err
	}
	row := []any{
		n.Date.Format(ddt.DisplayLayout),
		n.DocumentNumber,
		n.OrderCode,
		n.Quantity,
		n.Packages,
		n.Outbound.Number,
		n.Outbound.Date,
		n.FilePath,
	}
	if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
		return fmt.Errorf("append register row: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("encode register: %w", err)
	}
	if err := atomic.WriteFile(r.path, buf); err != nil {
		return fmt.Errorf("save register: %w", err)
	}
	r.log.Infow("register row appended", "row", len(rows)+1, "number", n.DocumentNumber)
	return nil
}

// open loads the workbook or creates it, making sure the register sheet and header exist.
func (r *Register) open() (*excelize.File, error) {
	var f *excelize.File
	_, err := os.Stat(r.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
			return nil, fmt.Errorf("create register dir: %w", err)
		}
		f = excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
			_ = f.Close()
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("stat register: %w", err)
	default:
		f, err = excelize.OpenFile(r.path)
		if err != nil {
			return nil, fmt.Errorf("open register: %w", err)
		}
	}

	idx, err := f.GetSheetIndex(SheetName)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if idx == -1 {
		if _, err := f.NewSheet(SheetName); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create sheet: %w", err)
		}
	}

	rows, err := f.GetRows(SheetName)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if len(rows) == 0 {
		header := Header
		if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return f, nil
}
