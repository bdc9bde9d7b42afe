// Package stimlog persists one CSV row per stimulation-fire attempt.
package stimlog

import (
	"encoding/csv"
	"fmt"
	"os"
)

// Writer is a lazily-created CSV file: the file is not created on disk
// until CreateFile is called, and the header is written exactly once.
//
// Grounded on the shape exercised by off_test.go (CreateFile/WriteHeader/
// Flush/Close, headerWritten guard, recordsWritten counter).
type Writer struct {
	FileName string

	file           *os.File
	csv            *csv.Writer
	headerWritten  bool
	recordsWritten int
}

// NewWriter builds a Writer targeting fileName. No file is created until
// CreateFile is called.
func NewWriter(fileName string) *Writer {
	return &Writer{FileName: fileName}
}

// CreateFile creates (or truncates) the backing file and wraps it for CSV
// writing. Safe to call once; calling twice returns an error.
func (w *Writer) CreateFile() error {
	if w.file != nil {
		return fmt.Errorf("stimlog: file %q already created", w.FileName)
	}
	f, err := os.Create(w.FileName)
	if err != nil {
		return err
	}
	w.file = f
	w.csv = csv.NewWriter(f)
	return nil
}

// WriteHeader writes the fixed header row. It is an error to call this
// more than once.
func (w *Writer) WriteHeader() error {
	if w.headerWritten {
		return fmt.Errorf("stimlog: header already written")
	}
	if err := w.csv.Write([]string{"BeforeStim", "AfterStim", "Exception", "triggerPhase"}); err != nil {
		return err
	}
	w.headerWritten = true
	return nil
}

// WriteRecord appends one stim-fire row. before/after are epoch
// nanoseconds; exception is "0" when none occurred.
func (w *Writer) WriteRecord(before, after int64, exception string, triggerPhase float64) error {
	if err := w.csv.Write([]string{
		fmt.Sprintf("%d", before),
		fmt.Sprintf("%d", after),
		exception,
		fmt.Sprintf("%g", triggerPhase),
	}); err != nil {
		return err
	}
	w.recordsWritten++
	return nil
}

// Flush pushes any buffered rows to the underlying file.
func (w *Writer) Flush() {
	if w.csv != nil {
		w.csv.Flush()
	}
}

// Close flushes and closes the backing file.
func (w *Writer) Close() error {
	w.Flush()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// RecordsWritten reports how many rows have been written so far.
func (w *Writer) RecordsWritten() int { return w.recordsWritten }

// HeaderWritten reports whether WriteHeader has already run.
func (w *Writer) HeaderWritten() bool { return w.headerWritten }
