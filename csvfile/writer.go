// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package csvfile

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Writer writes UTF-8 CSV with CRLF line endings, preceded by a byte order
// mark which spreadsheet applications need to pick the right encoding for
// Hangul.
type Writer struct {
	w       io.Writer
	csv     *csv.Writer
	started bool
}

// NewWriter returns a Writer on w. Nothing is written until the first row.
func NewWriter(w io.Writer) *Writer {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	return &Writer{w: w, csv: cw}
}

// Write writes one row.
func (w *Writer) Write(row []string) error {
	if !w.started {
		if _, err := w.w.Write(bom); err != nil {
			return fmt.Errorf("writing byte order mark: %w", err)
		}

		w.started = true
	}

	return w.csv.Write(row)
}

// WriteAll writes rows and flushes.
func (w *Writer) WriteAll(rows [][]string) error {
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Flush()
}

// Flush flushes buffered rows and reports any write error.
func (w *Writer) Flush() error {
	w.csv.Flush()

	return w.csv.Error()
}
