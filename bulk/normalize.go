// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package bulk

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	"github.com/Qseek-Jung/ToiletShare-sub001/utils/textutils"
)

const defaultFloor = 1

var (
	// Basement forms are tried first so that "지하1층" never reads as "1층".
	basementFloor = []*regexp.Regexp{
		regexp.MustCompile(`지하\s*(\d+)\s*층?`),
		regexp.MustCompile(`(?i)\bB(\d+)(?:F|층)?`),
	}
	aboveGroundFloor = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s*층`),
		regexp.MustCompile(`(?i)(\d+)\s*F\b`),
	}

	parenthesized = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	circledGlyphs = regexp.MustCompile(`[\x{2460}-\x{24FF}\x{2776}-\x{2793}\x{3260}-\x{327F}]`)
	punctuation   = regexp.MustCompile(`[^\p{Hangul}\p{L}\p{N}\s]`)
	boilerplate   = regexp.MustCompile(`화장실|공중|개방|남자|여자|장애인`)
)

func appendLog(logs []store.LogEntry, severity store.Severity, format string, args ...any) []store.LogEntry {
	return append(logs, store.LogEntry{Message: fmt.Sprintf(format, args...), Severity: severity})
}

// extractFloor finds the first floor token in s. It returns the floor, s
// without the token, and whether a token was found.
func extractFloor(s string) (int, string, bool) {
	for _, re := range basementFloor {
		if m := re.FindStringSubmatchIndex(s); m != nil {
			n, err := strconv.Atoi(s[m[2]:m[3]])
			if err == nil {
				return -n, s[:m[0]] + " " + s[m[1]:], true
			}
		}
	}

	for _, re := range aboveGroundFloor {
		if m := re.FindStringSubmatchIndex(s); m != nil {
			n, err := strconv.Atoi(s[m[2]:m[3]])
			if err == nil && n > 0 {
				return n, s[:m[0]] + " " + s[m[1]:], true
			}
		}
	}

	return defaultFloor, s, false
}

func stripFloorTokens(s string) string {
	for _, re := range basementFloor {
		s = re.ReplaceAllString(s, " ")
	}

	for _, re := range aboveGroundFloor {
		s = re.ReplaceAllString(s, " ")
	}

	return s
}

// CleanName reduces a facility name to the words a place search can use:
// notes in brackets, circled numbers, punctuation, floor tokens, the word
// "화장실" and generic qualifiers are removed.
func CleanName(name string) string {
	s := textutils.NFC(name)
	s = parenthesized.ReplaceAllString(s, " ")
	s = circledGlyphs.ReplaceAllString(s, " ")
	s = punctuation.ReplaceAllString(s, " ")
	s = stripFloorTokens(s)
	s = boilerplate.ReplaceAllString(s, " ")

	return textutils.CollapseSpaces(s)
}

// ParseRow normalizes the name and address cells of one row. It is meant to
// run once per raw row.
func ParseRow(nameRaw, addressRaw string) ParsedRow {
	name := textutils.CollapseSpaces(textutils.NFC(nameRaw))
	address := textutils.CollapseSpaces(textutils.NFC(addressRaw))

	p := ParsedRow{NameRaw: nameRaw, AddressRaw: addressRaw}

	floor, stripped, found := extractFloor(name)
	if found {
		name = textutils.CollapseSpaces(stripped)
	} else {
		floor, _, found = extractFloor(address)
	}

	p.Name = name
	p.Floor = floor

	if found {
		p.Logs = appendLog(p.Logs, store.SeverityInfo, "층수 추출됨: %d", floor)
	}

	if cleaned := CleanName(name); cleaned != "" && !strings.Contains(address, cleaned) {
		if address == "" {
			address = cleaned
		} else {
			address += " " + cleaned
		}

		p.Logs = appendLog(p.Logs, store.SeverityInfo, "주소 보정됨: %s", address)
	}

	p.Address = address

	return p
}
