// Package catalog reads course bootstrap documents.
//
// A document holds a single "courses" list whose entries use the registrar's
// field names:
//
//	courses:
//	  - kode_mk: TI101
//	    nama_mk: Algoritma dan Pemrograman
//	    sks: 3
//	    kapasitas: 40
//
// JSON and YAML are both accepted; the format follows the file extension.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied to entries that omit the field.
const (
	DefaultCapacity = 40
	DefaultSemester = 1
)

// Format identifies a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Course is one catalog entry of a bootstrap document.
type Course struct {
	Code     string `json:"kode_mk" yaml:"kode_mk" validate:"required,max=32"`
	Title    string `json:"nama_mk" yaml:"nama_mk" validate:"required"`
	Credits  int    `json:"sks" yaml:"sks" validate:"gt=0"`
	Semester int    `json:"semester" yaml:"semester" validate:"gte=1,lte=14"`
	Schedule string `json:"jadwal" yaml:"jadwal"`
	Lecturer string `json:"dosen" yaml:"dosen"`
	Room     string `json:"ruang" yaml:"ruang"`
	Capacity int    `json:"kapasitas" yaml:"kapasitas" validate:"gt=0"`
}

type document struct {
	Courses []Course `json:"courses" yaml:"courses"`
}

var validate = validator.New()

// FormatFor maps a file name to its document format.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported catalog file %q: want .json, .yaml or .yml", path)
	}
}

// LoadFile reads and validates the document at path.
func LoadFile(path string) ([]Course, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	courses, err := Parse(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return courses, nil
}

// Parse decodes a document, fills defaults and validates every entry.
// Duplicate codes are rejected.
func Parse(r io.Reader, format Format) ([]Course, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var doc document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		err = dec.Decode(&doc)
		if err == io.EOF {
			err = nil
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[string]int, len(doc.Courses))
	for i := range doc.Courses {
		c := &doc.Courses[i]
		c.Code = strings.TrimSpace(c.Code)
		c.Title = strings.TrimSpace(c.Title)
		if c.Capacity == 0 {
			c.Capacity = DefaultCapacity
		}
		if c.Semester == 0 {
			c.Semester = DefaultSemester
		}
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("course #%d (%s): %w", i+1, c.Code, err)
		}
		if prev, dup := seen[c.Code]; dup {
			return nil, fmt.Errorf("course #%d: code %s already defined by #%d", i+1, c.Code, prev)
		}
		seen[c.Code] = i + 1
	}
	return doc.Courses, nil
}
