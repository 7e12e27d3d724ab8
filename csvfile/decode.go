// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package csvfile

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
)

// Encoding names the character set of an input file.
type Encoding string

const (
	// UTF8 input; a leading byte order mark is ignored.
	UTF8 Encoding = "utf-8"
	// EUCKR is the legacy encoding (CP949 superset) most Korean public
	// datasets are still published in.
	EUCKR Encoding = "euc-kr"
	// Auto picks UTF-8 when the bytes are valid UTF-8, EUC-KR otherwise.
	Auto Encoding = "auto"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// ParseEncoding maps a user supplied name to an Encoding.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return Auto, nil
	case "utf-8", "utf8":
		return UTF8, nil
	case "euc-kr", "euckr", "cp949", "ks_c_5601-1987":
		return EUCKR, nil
	default:
		return "", fmt.Errorf("unsupported encoding %q (want utf-8, euc-kr or auto)", name)
	}
}

// Decode converts raw file bytes to a UTF-8 string.
func Decode(data []byte, enc Encoding) (string, error) {
	if enc == Auto {
		enc = EUCKR
		if utf8.Valid(data) {
			enc = UTF8
		}
	}

	switch enc {
	case UTF8:
		return string(bytes.TrimPrefix(data, bom)), nil
	case EUCKR:
		out, err := korean.EUCKR.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decoding euc-kr: %w", err)
		}

		return string(out), nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", enc)
	}
}

// ReadFile loads and parses a CSV file, returning the header and data rows.
func ReadFile(path string, enc Encoding) (header []string, rows [][]string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	text, err := Decode(data, enc)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	header, rows = SplitHeader(Parse(text))
	if header == nil {
		return nil, nil, fmt.Errorf("reading %s: file has no header row", path)
	}

	return header, rows, nil
}
