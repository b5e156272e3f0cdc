// Package tsv reads and writes the tab delimited datasets the pipeline
// consumes and produces. The first line of a dataset is a header of field
// names. Values are escaped so that a tab, newline, carriage return or
// backslash inside a value survives the round trip.
package tsv

import (
	"bufio"
	"io"
	"strings"

	"github.com/pilosa/canopy"
	"github.com/pkg/errors"
)

// MaxLine bounds the length of a single line. GIS polylines can run long.
const MaxLine = 16 * 1024 * 1024

var (
	escaper   = strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)
	unescaper = strings.NewReplacer(`\\`, `\`, `\t`, "\t", `\n`, "\n", `\r`, "\r")
)

// Escape escapes a value for writing.
func Escape(s string) string { return escaper.Replace(s) }

// Unescape is the inverse of Escape.
func Unescape(s string) string { return unescaper.Replace(s) }

// Source reads typed records from every reader of a RawSource in turn. Each
// reader must start with a header containing every field of the schema;
// extra columns are ignored.
type Source struct {
	rs     canopy.RawSource
	schema canopy.Schema

	cur   canopy.NamedReadCloser
	scan  *bufio.Scanner
	cols  []int
	width int
	line  int
}

// NewSource gets a Source which reads rs according to schema.
func NewSource(rs canopy.RawSource, schema canopy.Schema) *Source {
	return &Source{
		rs:     rs,
		schema: schema,
	}
}

// Record implements canopy.Source.
func (s *Source) Record() (canopy.Record, error) {
	for {
		if s.cur == nil {
			if err := s.next(); err != nil {
				return canopy.Record{}, err
			}
			continue
		}
		for s.scan.Scan() {
			s.line++
			txt := s.scan.Text()
			if strings.TrimSpace(txt) == "" {
				continue
			}
			rec, err := s.parse(strings.Split(strings.TrimSuffix(txt, "\r"), "\t"))
			if err != nil {
				return canopy.Record{}, errors.Wrapf(err, "parsing %s:%d", s.cur.Name(), s.line)
			}
			return rec, nil
		}
		err := s.scan.Err()
		name := s.cur.Name()
		s.cur.Close()
		s.cur, s.scan = nil, nil
		if err != nil {
			return canopy.Record{}, errors.Wrapf(err, "scanning %s", name)
		}
	}
}

// next opens the next reader and reads its header.
func (s *Source) next() error {
	cur, err := s.rs.NextReader()
	if err != nil {
		return err
	}
	scan := bufio.NewScanner(cur)
	scan.Buffer(make([]byte, 64*1024), MaxLine)
	if !scan.Scan() {
		cur.Close()
		if scan.Err() != nil {
			return errors.Wrapf(scan.Err(), "reading header of %s", cur.Name())
		}
		return errors.Errorf("%s has no header", cur.Name())
	}
	cols, err := s.validateHeader(strings.Split(strings.TrimSuffix(scan.Text(), "\r"), "\t"))
	if err != nil {
		cur.Close()
		return errors.Wrapf(err, "validating header of %s", cur.Name())
	}
	s.cur, s.scan, s.cols, s.line = cur, scan, cols, 1
	return nil
}

// validateHeader returns, for each schema field, its column in header.
func (s *Source) validateHeader(header []string) ([]int, error) {
	hs, err := canopy.ParseSchema(strings.Join(header, "\t"))
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(hs))
	for i, f := range hs {
		pos[f.Name] = i
	}
	cols := make([]int, len(s.schema))
	for i, f := range s.schema {
		p, ok := pos[f.Name]
		if !ok {
			return nil, errors.Errorf("missing field '%s' in header %v", f.Name, header)
		}
		// a typed header must agree with the schema
		if strings.Contains(header[p], ":") && hs[p].Type != f.Type {
			return nil, errors.Errorf("field '%s' is %v in header, expected %v", f.Name, hs[p].Type, f.Type)
		}
		cols[i] = p
	}
	s.width = len(header)
	return cols, nil
}

func (s *Source) parse(row []string) (canopy.Record, error) {
	if len(row) != s.width {
		return canopy.Record{}, errors.Errorf("header/row len mismatch: %d vs %d", s.width, len(row))
	}
	rec := canopy.NewRecord()
	for i, f := range s.schema {
		v, err := canopy.ParseValue(f.Type, Unescape(row[s.cols[i]]))
		if err != nil {
			return canopy.Record{}, errors.Wrapf(err, "converting %s", f.Name)
		}
		rec, err = rec.Set(f.Name, v)
		if err != nil {
			return canopy.Record{}, err
		}
	}
	return rec, nil
}

// Writer writes records as tab delimited lines under a header of the
// schema's field names. It is a canopy.Sink.
type Writer struct {
	w      *bufio.Writer
	c      io.Closer
	schema canopy.Schema

	wroteHeader bool
	rows        int
}

// NewWriter gets a Writer. If w is an io.Closer, closing the Writer closes
// it.
func NewWriter(w io.Writer, schema canopy.Schema) *Writer {
	c, _ := w.(io.Closer)
	return &Writer{
		w:      bufio.NewWriter(w),
		c:      c,
		schema: schema,
	}
}

func (w *Writer) header() error {
	if w.wroteHeader {
		return nil
	}
	w.wroteHeader = true
	names := w.schema.Names()
	for i, n := range names {
		names[i] = Escape(n)
	}
	_, err := w.w.WriteString(strings.Join(names, "\t") + "\n")
	return errors.Wrap(err, "writing header")
}

// Write writes the schema's fields of rec. Extra fields are ignored; a
// missing field is an error and nothing of rec is written.
func (w *Writer) Write(rec canopy.Record) error {
	vals := make([]string, len(w.schema))
	for i, f := range w.schema {
		v, ok := rec.Get(f.Name)
		if !ok {
			return errors.Wrapf(canopy.ErrNoField, "writing %s", f.Name)
		}
		vals[i] = Escape(v.String())
	}
	if err := w.header(); err != nil {
		return err
	}
	if _, err := w.w.WriteString(strings.Join(vals, "\t") + "\n"); err != nil {
		return errors.Wrap(err, "writing row")
	}
	w.rows++
	return nil
}

// Rows is the number of records written.
func (w *Writer) Rows() int { return w.rows }

// Flush writes the header, if nothing has been written yet, and any
// buffered data.
func (w *Writer) Flush() error {
	if err := w.header(); err != nil {
		return err
	}
	return errors.Wrap(w.w.Flush(), "flushing")
}

// Close flushes and closes the underlying writer.
func (w *Writer) Close() error {
	err := w.Flush()
	if w.c != nil {
		if cerr := w.c.Close(); err == nil {
			err = errors.Wrap(cerr, "closing")
		}
	}
	return err
}
