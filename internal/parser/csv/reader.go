// Package csv reads the emissions export as a stream of loader rows. It never
// buffers the whole file: rows are pulled one at a time by the loader.
//
// Width is deliberately not enforced here. Every line is passed on as read
// so the loader can reject mismatched rows with a diagnostic.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"co2load/internal/loader"
)

// Options configures the reader. The zero value reads comma-separated UTF-8
// with no header; use DefaultOptions for the dataset's layout.
type Options struct {
	// Comma is the field delimiter; zero means ','.
	Comma rune

	// HasHeader skips the first line and keeps it for Header().
	HasHeader bool

	// Encoding names the input charset: "utf-8" (default), "latin1" /
	// "iso-8859-1", "iso-8859-15" or "windows-1252".
	Encoding string

	// TrimSpace trims leading/trailing white space from every cell.
	TrimSpace bool

	// LazyQuotes relaxes quote handling (encoding/csv LazyQuotes).
	LazyQuotes bool
}

// DefaultOptions matches the export: comma-separated UTF-8 with a header.
func DefaultOptions() Options {
	return Options{Comma: ',', HasHeader: true, Encoding: "utf-8"}
}

// Decoder resolves an encoding name. Unknown names are an error.
func Decoder(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	}
	return nil, fmt.Errorf("csv: unsupported encoding %q", name)
}

// Reader implements loader.RowSource over a CSV stream.
type Reader struct {
	cr     *csv.Reader
	opt    Options
	header []string
	line   int
}

var _ loader.RowSource = (*Reader)(nil)

// NewReader wraps r. With HasHeader set the header is read immediately; an
// input with no header line at all is an error.
func NewReader(r io.Reader, opt Options) (*Reader, error) {
	enc, err := Decoder(opt.Encoding)
	if err != nil {
		return nil, err
	}
	if enc != unicode.UTF8 {
		r = transform.NewReader(r, enc.NewDecoder())
	}

	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = opt.LazyQuotes

	rd := &Reader{cr: cr, opt: opt}
	if opt.HasHeader {
		hdr, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("csv: empty input, expected header")
			}
			return nil, fmt.Errorf("csv: read header: %w", err)
		}
		rd.line, _ = cr.FieldPos(0)
		rd.header = StripHeaderBOM(append([]string(nil), hdr...))
	}
	return rd, nil
}

// Header returns the skipped header line, or nil.
func (r *Reader) Header() []string { return r.header }

// Line is the physical line number of the last row returned by Next.
func (r *Reader) Line() int { return r.line }

// Next returns the next data row, io.EOF at the end, or a *loader.RowError
// for a line encoding/csv could not parse.
func (r *Reader) Next() (loader.Row, error) {
	rec, err := r.cr.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			r.line = pe.StartLine
			return nil, &loader.RowError{Line: pe.StartLine, Err: pe.Err}
		}
		return nil, err
	}
	r.line, _ = r.cr.FieldPos(0)
	if r.opt.TrimSpace {
		for i, v := range rec {
			rec[i] = strings.TrimSpace(v)
		}
	}
	return loader.Row(rec), nil
}
