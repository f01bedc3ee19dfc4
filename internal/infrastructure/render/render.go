// Package render fills delivery-note templates.
//
// Templates are opaque bytes (normally a PDF master) containing placeholders
// of the form {{Field Name}}. Field names are matched case-insensitively.
// A template without placeholders is returned unchanged, which callers treat
// as a raw copy.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"

	"commesse/internal/core/apperror"
	"commesse/internal/core/numerator"
	"commesse/pkg/logger"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Output is a rendered document.
type Output struct {
	Bytes   []byte
	Raw     bool     // template had no placeholders
	Missing []string // placeholders with no value, rendered empty
}

// Templates maps each class to its master file and the setting that names it.
type Templates map[numerator.Class]Template

// Template locates one master file.
type Template struct {
	Setting string
	Path    string
}

// Renderer substitutes field values into the class templates.
type Renderer struct {
	templates Templates
	log       *logger.Logger
}

// New creates a Renderer.
func New(templates Templates, log *logger.Logger) *Renderer {
	if log == nil {
		log = logger.Default()
	}
	return &Renderer{templates: templates, log: log.WithComponent("renderer")}
}

// Render loads the class template and fills it. raw is true when the
// template had nothing to fill and was copied as is.
func (r *Renderer) Render(class numerator.Class, fields map[string]string) (data []byte, raw bool, err error) {
	t, ok := r.templates[class]
	if !ok {
		t = Template{Setting: "TEMPLATE_" + strings.ToUpper(class.String())}
	}
	tpl, err := r.Load(t.Setting, t.Path)
	if err != nil {
		return nil, false, err
	}
	out := r.Fill(tpl, fields)
	return out.Bytes, out.Raw, nil
}

// Load reads a template. An empty path or a missing file is a configuration error.
func (r *Renderer) Load(setting, path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperror.NewConfigurationMissing(setting)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperror.NewConfigurationMissing(setting).WithDetail("path", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return data, nil
}

// Fill replaces every placeholder in tpl. It never fails: unknown names render empty.
func (r *Renderer) Fill(tpl []byte, fields map[string]string) Output {
	if !placeholder.Match(tpl) {
		r.log.Warnw("template has no fillable fields, copying raw")
		return Output{Bytes: bytes.Clone(tpl), Raw: true}
	}

	lookup := make(map[string]string, len(fields))
	for k, v := range fields {
		lookup[strings.ToLower(strings.TrimSpace(k))] = v
	}

	missing := map[string]struct{}{}
	out := placeholder.ReplaceAllFunc(tpl, func(m []byte) []byte {
		name := string(placeholder.FindSubmatch(m)[1])
		v, ok := lookup[strings.ToLower(name)]
		if !ok {
			missing[name] = struct{}{}
			return nil
		}
		return []byte(escape(v))
	})

	res := Output{Bytes: out}
	for name := range missing {
		res.Missing = append(res.Missing, name)
	}
	sort.Strings(res.Missing)
	if len(res.Missing) > 0 {
		r.log.Debugw("template fields left empty", "fields", res.Missing)
	}
	return res
}

// escape makes v safe inside a PDF literal string.
func escape(v string) string {
	return strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(v)
}
