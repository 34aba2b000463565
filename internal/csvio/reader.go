// Package csvio is the lexical layer of statement import: it decodes the raw
// export, splits it into trimmed non-empty lines, detects the field delimiter
// from the header and splits each row respecting quoted fields.
package csvio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
)

// MaxLineBytes bounds a single physical line.
const MaxLineBytes = 1 << 20

// ErrUnsplittable marks a row-level split failure. Reading can continue
// after it; any other error from Next ends the file.
var ErrUnsplittable = errors.New("unsplittable row")

// Row is one data line split into cleaned fields.
type Row struct {
	Line   int // 1-indexed physical line in the file
	Fields []string
}

// Reader yields the header and then the data rows of one statement file.
type Reader struct {
	sc     *bufio.Scanner
	line   int
	delim  rune
	header []string
}

// NewReader decodes r (see Decode) and prepares line scanning.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(Decode(r))
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	return &Reader{sc: sc}
}

// nextLine returns the next trimmed non-empty line.
func (r *Reader) nextLine() (string, error) {
	for r.sc.Scan() {
		r.line++
		if line := strings.TrimSpace(r.sc.Text()); line != "" {
			return line, nil
		}
	}
	if err := r.sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return "", &ledger.ParseError{Line: r.line + 1, Reason: "line too long", Err: err}
		}
		return "", &ledger.ParseError{Line: r.line + 1, Reason: "read failed", Err: err}
	}
	return "", io.EOF
}

// Header reads the first non-empty line, detects the delimiter and returns
// the cleaned column labels. A file without any non-empty line yields a
// *ledger.ParseError.
func (r *Reader) Header() ([]string, error) {
	if r.header != nil {
		return r.header, nil
	}
	line, err := r.nextLine()
	if err == io.EOF {
		return nil, &ledger.ParseError{Reason: "file is empty"}
	}
	if err != nil {
		return nil, err
	}

	r.delim = DetectDelimiter(line)
	header, err := SplitLine(line, r.delim)
	if err != nil {
		return nil, &ledger.ParseError{Line: r.line, Reason: "unreadable header", Err: err}
	}
	r.header = header
	return header, nil
}

// Delimiter returns the delimiter detected by Header.
func (r *Reader) Delimiter() rune {
	return r.delim
}

// Next returns the next data row, or io.EOF after the last one. A row that
// cannot be split yields a *ledger.ParseError wrapping ErrUnsplittable.
func (r *Reader) Next() (Row, error) {
	if r.header == nil {
		if _, err := r.Header(); err != nil {
			return Row{}, err
		}
	}
	line, err := r.nextLine()
	if err != nil {
		return Row{}, err
	}
	fields, err := SplitLine(line, r.delim)
	if err != nil {
		return Row{Line: r.line}, &ledger.ParseError{Line: r.line, Err: fmt.Errorf("%w: %w", ErrUnsplittable, err)}
	}
	return Row{Line: r.line, Fields: fields}, nil
}

// DetectDelimiter picks ';' when the header contains more semicolons than
// commas, and ',' otherwise.
func DetectDelimiter(header string) rune {
	if strings.Count(header, ";") > strings.Count(header, ",") {
		return ';'
	}
	return ','
}

// SplitLine splits one line on delim, honouring double-quoted fields, and
// cleans every field with CleanCell.
func SplitLine(line string, delim rune) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	fields, err := cr.Read()
	if err == io.EOF {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("split line: %w", err)
	}
	for i, f := range fields {
		fields[i] = CleanCell(f)
	}
	return fields, nil
}

// CleanCell removes spreadsheet artifacts from a cell: surrounding
// whitespace, the ="..." text-forcing wrapper and stray outer quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	}

	s = strings.Trim(s, `"`)
	return strings.TrimSpace(s)
}
