package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/herrera199898/Pro-descuento/models"
	"github.com/herrera199898/Pro-descuento/xlsx"
)

// OutputWriter defines the interface for result output.
type OutputWriter interface {
	Write(items []*models.Item) error
	Close() error
	Validate() error
}

// JSONWriter accumulates items and writes them as one indented JSON array
// on Close, matching the artifact shape the batch job persists.
type JSONWriter struct {
	filename string
	mu       sync.Mutex
	items    []*models.Item
	closed   bool
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &JSONWriter{filename: filename}, nil
}

// Write appends items to the pending output.
func (jw *JSONWriter) Write(items []*models.Item) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.items = append(jw.items, items...)
	return nil
}

// Close serializes the accumulated items to disk.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	data, err := json.MarshalIndent(jw.items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	if err := os.WriteFile(jw.filename, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	jw.closed = true
	return nil
}

// Validate ensures the output file was written and has data.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if !jw.closed {
		return fmt.Errorf("json output not finalized")
	}
	info, err := os.Stat(jw.filename)
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// XLSXWriter accumulates items and encodes the spreadsheet on Close.
type XLSXWriter struct {
	filename string
	mu       sync.Mutex
	items    []*models.Item
	closed   bool
}

// NewXLSXWriter initialises the spreadsheet writer.
func NewXLSXWriter(filename string) (*XLSXWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &XLSXWriter{filename: filename}, nil
}

// Write appends items to the pending output.
func (xw *XLSXWriter) Write(items []*models.Item) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()
	xw.items = append(xw.items, items...)
	return nil
}

// Close encodes the spreadsheet and writes it to disk.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()
	data, err := xlsx.Encode(xw.items)
	if err != nil {
		return fmt.Errorf("encode spreadsheet: %w", err)
	}
	if err := os.WriteFile(xw.filename, data, 0o644); err != nil {
		return fmt.Errorf("write spreadsheet file: %w", err)
	}
	xw.closed = true
	return nil
}

// Validate ensures the spreadsheet was written and has data.
func (xw *XLSXWriter) Validate() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()
	if !xw.closed {
		return fmt.Errorf("spreadsheet output not finalized")
	}
	info, err := os.Stat(xw.filename)
	if err != nil {
		return fmt.Errorf("stat spreadsheet file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("spreadsheet file is empty")
	}
	return nil
}

// DualWriter outputs to JSON and spreadsheet formats simultaneously.
type DualWriter struct {
	jsonWriter *JSONWriter
	xlsxWriter *XLSXWriter
}

// NewDualWriter creates a writer producing both artifacts.
func NewDualWriter(jsonFilename, xlsxFilename string) (*DualWriter, error) {
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		return nil, fmt.Errorf("create json writer: %w", err)
	}
	xlsxWriter, err := NewXLSXWriter(xlsxFilename)
	if err != nil {
		return nil, fmt.Errorf("create xlsx writer: %w", err)
	}
	return &DualWriter{jsonWriter: jsonWriter, xlsxWriter: xlsxWriter}, nil
}

// Write writes items to both outputs.
func (dw *DualWriter) Write(items []*models.Item) error {
	if err := dw.jsonWriter.Write(items); err != nil {
		return fmt.Errorf("json write failed: %w", err)
	}
	if err := dw.xlsxWriter.Write(items); err != nil {
		return fmt.Errorf("xlsx write failed: %w", err)
	}
	return nil
}

// Close finalizes both outputs.
func (dw *DualWriter) Close() error {
	var errs []error
	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := dw.xlsxWriter.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close outputs: %v", errs)
	}
	return nil
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := dw.xlsxWriter.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
