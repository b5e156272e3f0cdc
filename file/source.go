// Package file provides local file access for the pipeline: a RawSource over
// a file or a directory of part files, a line Source over any RawSource, and
// Create for sink files.
package file

import (
	"bufio"
	"io"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/pilosa/canopy"
	"github.com/pkg/errors"
)

// LineField is the single field of records from a LineSource.
const LineField = "line"

// MaxLine bounds the length of a single line.
const MaxLine = 16 * 1024 * 1024

// RawSource is a canopy.RawSource over a file or every file in a directory.
// Hidden files and files starting with an underscore (markers like _SUCCESS)
// are skipped.
type RawSource struct {
	files   []string
	fileIdx *uint64
}

// NewRawSource gets a RawSource for pathname.
func NewRawSource(pathname string) (*RawSource, error) {
	fileIdx := uint64(0)
	s := &RawSource{
		fileIdx: &fileIdx,
	}
	info, err := os.Stat(pathname)
	if err != nil {
		return nil, errors.Wrap(err, "statting path")
	}
	if info.IsDir() {
		infos, err := ioutil.ReadDir(pathname)
		if err != nil {
			return nil, errors.Wrap(err, "reading directory")
		}
		s.files = make([]string, 0, len(infos))
		for _, info = range infos {
			if info.IsDir() || strings.HasPrefix(info.Name(), ".") || strings.HasPrefix(info.Name(), "_") {
				continue
			}
			s.files = append(s.files, path.Join(pathname, info.Name()))
		}
	} else {
		s.files = []string{pathname}
	}
	return s, nil
}

type metaFile struct {
	*os.File
}

func (m *metaFile) Name() string {
	return filepath.Base(m.File.Name())
}

func (m *metaFile) Meta() map[string]interface{} {
	return map[string]interface{}{"path": m.File.Name()}
}

// NextReader implements canopy.RawSource.
func (s *RawSource) NextReader() (canopy.NamedReadCloser, error) {
	idx := atomic.AddUint64(s.fileIdx, 1) - 1
	if int(idx) >= len(s.files) {
		return nil, io.EOF
	}

	file, err := os.Open(s.files[idx])
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", s.files[idx])
	}

	mf := metaFile{file}
	return &mf, nil
}

// LineSource is a canopy.Source which emits a record with a single LineField
// for every line of every reader of a RawSource. Blank lines are skipped.
type LineSource struct {
	rs   canopy.RawSource
	cur  canopy.NamedReadCloser
	scan *bufio.Scanner
}

// NewLineSource gets a LineSource over rs.
func NewLineSource(rs canopy.RawSource) *LineSource {
	return &LineSource{rs: rs}
}

// Record implements canopy.Source.
func (s *LineSource) Record() (canopy.Record, error) {
	for {
		if s.cur == nil {
			cur, err := s.rs.NextReader()
			if err != nil {
				return canopy.Record{}, err
			}
			s.cur = cur
			s.scan = bufio.NewScanner(cur)
			s.scan.Buffer(make([]byte, 64*1024), MaxLine)
		}
		for s.scan.Scan() {
			txt := s.scan.Text()
			if strings.TrimSpace(txt) == "" {
				continue
			}
			return canopy.NewRecord().MustSet(LineField, canopy.S(txt)), nil
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

// Create creates (or truncates) the file at pathname, making its parent
// directories.
func Create(pathname string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(pathname), 0755); err != nil {
		return nil, errors.Wrap(err, "making parent directories")
	}
	f, err := os.Create(pathname)
	return f, errors.Wrapf(err, "creating %s", pathname)
}
