// Package importer turns raw bank statement text into field-named rows and
// proposes a column mapping the caller can confirm or override. Nothing here
// touches the database; a mapping is only a proposal until the import is
// created.
package importer

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

var ErrMalformedCSV = errors.New("malformed csv: cannot parse header")

// Row is one statement line keyed by header name.
type Row struct {
	Line   int
	Fields map[string]string
}

// Parsed is the outcome of reading one uploaded file.
type Parsed struct {
	Headers []string
	Rows    []Row
}

// Parse splits delimited text into header + field-named records. The first
// non-empty line must parse as a header, and a file with zero data rows is an
// error, not an empty result.
func Parse(raw string) (*Parsed, error) {
	raw = strings.TrimLeft(raw, "\ufeff") // strip BOM
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, ErrMalformedCSV
	}

	reader := csv.NewReader(strings.NewReader(trimmed))
	reader.FieldsPerRecord = -1
	reader.Comma = sniffDelimiter(trimmed)

	headerRec, err := reader.Read()
	if err != nil {
		return nil, ErrMalformedCSV
	}
	headers := make([]string, len(headerRec))
	for i, h := range headerRec {
		headers[i] = strings.TrimSpace(h)
	}
	if len(headers) == 0 || (len(headers) == 1 && headers[0] == "") {
		return nil, ErrMalformedCSV
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			continue // skip malformed rows, same policy as blank lines
		}
		if strings.Join(record, "") == "" {
			continue
		}

		fields := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(record) {
				fields[h] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, Row{Line: line, Fields: fields})
	}

	if len(rows) == 0 {
		return nil, ErrMalformedCSV
	}
	return &Parsed{Headers: headers, Rows: rows}, nil
}

// sniffDelimiter inspects the first line for the most plausible separator.
func sniffDelimiter(raw string) rune {
	firstLine := raw
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		firstLine = raw[:i]
	}
	switch {
	case strings.Contains(firstLine, "\t"):
		return '\t'
	case strings.Contains(firstLine, ";") && !strings.Contains(firstLine, ","):
		return ';'
	default:
		return ','
	}
}
