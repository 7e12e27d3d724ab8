// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package csvfile reads the public-data CSV files fed to the bulk pipeline and
// writes the spreadsheet-friendly exports it produces.
//
// Reading is deliberately forgiving: public datasets are hand edited, mix line
// endings and sometimes carry a stray quote. Parse never fails; an
// unterminated quoted field at end of input is re-read with quotes taken as
// literal text.
package csvfile

import (
	"io"
	"strings"
)

// Parse splits text into rows of cells. Rows whose cells are all blank are
// dropped. The header, if any, is returned as the first row.
func Parse(text string) [][]string {
	rows, openAt := tokenize(text, true)
	if openAt < 0 {
		return rows
	}

	// Re-scan from the start of the row holding the unterminated quote,
	// treating every quote from there on as content.
	return append(rows, mustTokenize(text[openAt:])...)
}

// ParseReader reads all of r and parses it.
func ParseReader(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	return Parse(string(data)), nil
}

// SplitHeader separates the header row from the data rows.
func SplitHeader(rows [][]string) (header []string, data [][]string) {
	if len(rows) == 0 {
		return nil, nil
	}

	return rows[0], rows[1:]
}

func mustTokenize(text string) [][]string {
	rows, _ := tokenize(text, false)

	return rows
}

// tokenize returns the completed rows and, if a quoted field was still open at
// end of input, the offset where that field's row started (else -1). Rows
// before that offset are complete and returned.
func tokenize(text string, quotes bool) ([][]string, int) {
	var (
		rows     [][]string
		row      []string
		field    strings.Builder
		inQuotes bool
		rowStart int
		dirty    bool // current row has seen any byte
	)

	endField := func() {
		row = append(row, field.String())
		field.Reset()
	}

	endRow := func(next int) {
		endField()

		if !blank(row) {
			rows = append(rows, row)
		}

		row = nil
		dirty = false
		rowStart = next
	}

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inQuotes {
			if c == '"' {
				if i+1 < len(text) && text[i+1] == '"' {
					field.WriteByte('"')
					i++
				} else {
					inQuotes = false
				}

				continue
			}

			field.WriteByte(c)

			continue
		}

		switch c {
		case '"':
			dirty = true

			if quotes && field.Len() == 0 {
				inQuotes = true
			} else {
				field.WriteByte(c)
			}
		case ',':
			dirty = true

			endField()
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}

			endRow(i + 1)
		case '\n':
			endRow(i + 1)
		default:
			dirty = true

			field.WriteByte(c)
		}
	}

	if inQuotes {
		return rows, rowStart
	}

	if dirty || field.Len() > 0 {
		endRow(len(text))
	}

	return rows, -1
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}

	return true
}
