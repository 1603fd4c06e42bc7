package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// delimiterFor reports the field separator for .csv/.tsv names.
func delimiterFor(name string) (rune, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ',', true
	case ".tsv":
		return '\t', true
	default:
		return 0, false
	}
}

// IsDelimited reports whether name is decoded as generic CSV/TSV rows
// regardless of the declared vendor.
func IsDelimited(name string) bool {
	_, ok := delimiterFor(name)
	return ok
}

// DecodeDelimited decodes r as a header row followed by data rows, each
// returned as header -> value. Any malformed row fails the whole decode with
// ErrDecode and no rows are returned.
func DecodeDelimited(ctx context.Context, r io.Reader, comma rune) ([]map[string]string, error) {
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.Comma = comma
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrDecode, err)
	}
	keys := headerKeys(header)

	rows := []map[string]string{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		row := make(map[string]string, len(keys))
		for i, k := range keys {
			row[k] = rec[i]
		}
		rows = append(rows, row)
	}
}

// headerKeys trims header names and replaces blank or repeated ones with
// column_N (1-based).
func headerKeys(header []string) []string {
	keys := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		k := strings.TrimSpace(h)
		if k == "" || seen[k] {
			k = "column_" + strconv.Itoa(i+1)
		}
		seen[k] = true
		keys[i] = k
	}
	return keys
}
