// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package file

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pilosa/canopy"
	"github.com/pkg/errors"
)

// Fragment is a byte range of a file which begins at the start of a line and
// ends after a newline or at the end of the file.
type Fragment struct {
	Path  string
	Start int64
	End   int64
}

// SplitLines divides the file at pathname into at most parts fragments of
// roughly equal size whose boundaries fall on line breaks. Empty fragments
// are never returned.
func SplitLines(pathname string, parts int) ([]Fragment, error) {
	if parts < 1 {
		parts = 1
	}
	f, err := os.Open(pathname)
	if err != nil {
		return nil, errors.Wrap(err, "opening file to split")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "statting file to split")
	}
	size := info.Size()
	bounds := []int64{0}
	for i := 1; i < parts; i++ {
		at, err := nextLine(f, int64(i)*size/int64(parts), size)
		if err != nil {
			return nil, errors.Wrap(err, "searching for split location")
		}
		if at > bounds[len(bounds)-1] && at < size {
			bounds = append(bounds, at)
		}
	}
	bounds = append(bounds, size)
	ret := make([]Fragment, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		if bounds[i] == bounds[i+1] {
			continue
		}
		ret = append(ret, Fragment{Path: pathname, Start: bounds[i], End: bounds[i+1]})
	}
	return ret, nil
}

// nextLine returns the offset of the first line beginning at or after off.
func nextLine(r io.ReaderAt, off, size int64) (int64, error) {
	if off <= 0 {
		return 0, nil
	}
	br := bufio.NewReader(io.NewSectionReader(r, off-1, size-off+1))
	pos := off - 1
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			return size, nil
		} else if err != nil {
			return 0, err
		}
		pos++
		if b == '\n' {
			return pos, nil
		}
	}
}

// Open opens the fragment for reading.
func (fr Fragment) Open() (canopy.NamedReadCloser, error) {
	f, err := os.Open(fr.Path)
	if err != nil {
		return nil, errors.Wrap(err, "opening file fragment")
	}
	return &fragmentReader{
		SectionReader: io.NewSectionReader(f, fr.Start, fr.End-fr.Start),
		f:             f,
		frag:          fr,
	}, nil
}

// Source returns a RawSource with the fragment as its only reader.
func (fr Fragment) Source() canopy.RawSource {
	return &fragmentSource{frag: fr}
}

type fragmentReader struct {
	*io.SectionReader
	f    *os.File
	frag Fragment
}

func (r *fragmentReader) Close() error { return r.f.Close() }

func (r *fragmentReader) Name() string {
	return fmt.Sprintf("%s@%d", filepath.Base(r.frag.Path), r.frag.Start)
}

func (r *fragmentReader) Meta() map[string]interface{} {
	return map[string]interface{}{"path": r.frag.Path, "start": r.frag.Start, "end": r.frag.End}
}

type fragmentSource struct {
	frag Fragment
	done bool
}

func (s *fragmentSource) NextReader() (canopy.NamedReadCloser, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.frag.Open()
}
