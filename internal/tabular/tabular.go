// Package tabular reads and writes the delimited files cluedup works on: a
// header row followed by one record per row, with the answer and clue in
// named columns and every other column passed through untouched.
package tabular

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/steveyegge/cluedup/internal/types"
)

// Default column names.
const (
	DefaultKeyColumn  = "answer"
	DefaultBodyColumn = "clue"
)

// Quoting selects how double quotes in fields are treated.
type Quoting string

const (
	// QuoteCSV follows RFC 4180: a field may be wrapped in quotes to hold the
	// delimiter or a newline, and a stray quote is an error.
	QuoteCSV Quoting = "csv"
	// QuoteNone reads every line literally and splits it on the delimiter, so
	// quotes are ordinary text. Fields cannot contain the delimiter or a
	// newline.
	QuoteNone Quoting = "none"
)

// ParseQuoting accepts "csv" or "none". Empty means csv.
func ParseQuoting(s string) (Quoting, error) {
	switch q := Quoting(strings.ToLower(s)); q {
	case "":
		return QuoteCSV, nil
	case QuoteCSV, QuoteNone:
		return q, nil
	default:
		return "", fmt.Errorf("unsupported quoting %q (want csv or none)", s)
	}
}

// Options configures how a table is read.
type Options struct {
	// Delimiter separates fields. Zero means tab.
	Delimiter rune
	// Quoting defaults to QuoteCSV.
	Quoting Quoting
	// KeyColumn and BodyColumn name the answer and clue columns
	// (case-insensitive). Empty means the defaults.
	KeyColumn  string
	BodyColumn string
}

func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = '\t'
	}
	if o.Quoting == "" {
		o.Quoting = QuoteCSV
	}
	if o.KeyColumn == "" {
		o.KeyColumn = DefaultKeyColumn
	}
	if o.BodyColumn == "" {
		o.BodyColumn = DefaultBodyColumn
	}
	return o
}

// Table is a parsed input file.
type Table struct {
	Header    []string
	KeyIndex  int
	BodyIndex int
	Delimiter rune
	Quoting   Quoting
	// Records hold the full row in Fields; Key and Body are copies of the
	// selected columns.
	Records []types.Record
}

// ParseDelimiter accepts "tab", "comma", "\t" or ",".
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "tab", "\t", `\t`, "tsv":
		return '\t', nil
	case "comma", ",", "csv":
		return ',', nil
	default:
		return 0, fmt.Errorf("unsupported delimiter %q (want tab or comma)", s)
	}
}

// DelimiterFor guesses the delimiter from a file extension: comma for .csv,
// tab for everything else.
func DelimiterFor(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ','
	}
	return '\t'
}

// rowReader yields one row of fields at a time and io.EOF at the end.
type rowReader interface {
	Read() ([]string, error)
}

// literalReader splits lines on the delimiter without any quote handling.
// encoding/csv always treats a leading quote as the start of a quoted field.
type literalReader struct {
	scanner *bufio.Scanner
	sep     string
}

const maxLineBytes = 16 << 20

func newLiteralReader(r io.Reader, delimiter rune) *literalReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	return &literalReader{scanner: scanner, sep: string(delimiter)}
}

func (l *literalReader) Read() ([]string, error) {
	for l.scanner.Scan() {
		line := strings.TrimSuffix(l.scanner.Text(), "\r")
		// blank lines are skipped, as encoding/csv does
		if line == "" {
			continue
		}
		return strings.Split(line, l.sep), nil
	}
	if err := l.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func newRowReader(r io.Reader, opts Options) rowReader {
	if opts.Quoting == QuoteNone {
		return newLiteralReader(r, opts.Delimiter)
	}
	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.FieldsPerRecord = -1
	return reader
}

// shapeError turns a quoting error into an InputShapeError for row. Other
// read errors pass through.
func shapeError(row int, err error) error {
	var parseErr *csv.ParseError
	if !errors.As(err, &parseErr) {
		return err
	}
	return &types.InputShapeError{
		RecordID: row,
		Reason:   fmt.Sprintf("line %d: %v (read with quoting \"none\" if quotes are plain text)", parseErr.Line, parseErr.Err),
	}
}

// Read parses a table. A row with a different number of fields than the
// header, or a malformed quoted field, is an InputShapeError naming the
// zero-based data row, and nothing is returned.
func Read(r io.Reader, opts Options) (*Table, error) {
	opts = opts.withDefaults()
	if _, err := ParseQuoting(string(opts.Quoting)); err != nil {
		return nil, err
	}
	reader := newRowReader(r, opts)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &types.InputShapeError{RecordID: -1, Reason: "input has no header row"}
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", shapeError(-1, err))
	}

	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if _, dup := colIdx[name]; !dup {
			colIdx[name] = i
		}
	}
	keyIdx, ok := colIdx[strings.ToLower(opts.KeyColumn)]
	if !ok {
		return nil, &types.InputShapeError{RecordID: -1, Reason: fmt.Sprintf("missing key column %q", opts.KeyColumn)}
	}
	bodyIdx, ok := colIdx[strings.ToLower(opts.BodyColumn)]
	if !ok {
		return nil, &types.InputShapeError{RecordID: -1, Reason: fmt.Sprintf("missing body column %q", opts.BodyColumn)}
	}

	t := &Table{
		Header:    header,
		KeyIndex:  keyIdx,
		BodyIndex: bodyIdx,
		Delimiter: opts.Delimiter,
		Quoting:   opts.Quoting,
	}
	for row := 0; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading data row %d: %w", row, shapeError(row, err))
		}
		if len(fields) != len(header) {
			return nil, &types.InputShapeError{
				RecordID: row,
				Reason:   fmt.Sprintf("row has %d fields, header has %d", len(fields), len(header)),
			}
		}
		t.Records = append(t.Records, types.Record{
			ID:     row,
			Key:    fields[keyIdx],
			Body:   fields[bodyIdx],
			Fields: fields,
		})
	}
	return t, nil
}

// ReadFile reads a table from path. A zero Delimiter is guessed from the
// file extension.
func ReadFile(path string, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	if opts.Delimiter == 0 {
		opts.Delimiter = DelimiterFor(path)
	}
	t, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// rowWriter is the write side of rowReader.
type rowWriter interface {
	Write(fields []string) error
	Flush()
	Error() error
}

// literalWriter joins fields with the delimiter. It refuses fields that
// could not be read back literally.
type literalWriter struct {
	w   *bufio.Writer
	sep string
	err error
}

func (l *literalWriter) Write(fields []string) error {
	if l.err != nil {
		return l.err
	}
	for _, f := range fields {
		if strings.Contains(f, l.sep) || strings.ContainsAny(f, "\r\n") {
			return fmt.Errorf("field %q holds the delimiter or a newline and cannot be written without quoting", f)
		}
	}
	if _, err := l.w.WriteString(strings.Join(fields, l.sep) + "\n"); err != nil {
		l.err = err
	}
	return l.err
}

func (l *literalWriter) Flush() {
	if l.err == nil {
		l.err = l.w.Flush()
	}
}

func (l *literalWriter) Error() error { return l.err }

func newRowWriter(w io.Writer, t *Table) rowWriter {
	delimiter := t.Delimiter
	if delimiter == 0 {
		delimiter = '\t'
	}
	if t.Quoting == QuoteNone {
		return &literalWriter{w: bufio.NewWriter(w), sep: string(delimiter)}
	}
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	return cw
}

// Write emits the header and the Fields of each record. Records without
// Fields are written as their key and body in the table's key and body
// columns.
func Write(w io.Writer, t *Table, records []types.Record) error {
	cw := newRowWriter(w, t)

	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	blank := make([]string, len(t.Header))
	for _, rec := range records {
		row := rec.Fields
		if row == nil {
			row = blank
			clear(row)
			row[t.KeyIndex] = rec.Key
			row[t.BodyIndex] = rec.Body
		}
		if len(row) != len(t.Header) {
			return &types.InputShapeError{
				RecordID: rec.ID,
				Reason:   fmt.Sprintf("record has %d fields, header has %d", len(row), len(t.Header)),
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing record %d: %w", rec.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// DeletionsHeader is the header of the deletion audit file.
var DeletionsHeader = []string{"record_id", "superseded_by", "reason", "answer", "clue", "kept_answer", "kept_clue"}

// WriteDeletions writes one audit row per deletion: which record was removed,
// which record it lost to, the rule that fired, and both records' raw text.
// It uses t's delimiter and quoting. records is the full input, indexed by
// id.
func WriteDeletions(w io.Writer, t *Table, deletions []types.Deletion, records []types.Record) error {
	cw := newRowWriter(w, t)
	if err := cw.Write(DeletionsHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, d := range deletions {
		if d.RecordID >= len(records) || d.SupersededBy >= len(records) {
			return fmt.Errorf("deletion %d -> %d outside %d records", d.RecordID, d.SupersededBy, len(records))
		}
		lost, kept := records[d.RecordID], records[d.SupersededBy]
		if err := cw.Write([]string{
			strconv.Itoa(d.RecordID),
			strconv.Itoa(d.SupersededBy),
			string(d.Reason),
			lost.Key, lost.Body,
			kept.Key, kept.Body,
		}); err != nil {
			return fmt.Errorf("writing deletion %d: %w", d.RecordID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates path and writes with fn, removing the file if fn fails.
func WriteFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return fn(f)
}
