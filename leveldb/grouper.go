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

// Package leveldb provides a join.Grouper which spills both sides of a
// co-group to a temporary leveldb so that the groups of a key are read back
// together without holding the whole dataset in a map.
package leveldb

import (
	"bytes"
	"context"
	"encoding/binary"
	"io/ioutil"
	"os"
	"strings"

	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/join"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var _ join.Grouper = &Grouper{}

const (
	sideLeft  byte = 0
	sideRight byte = 1

	batchSize = 10000
)

// Grouper is a join.Grouper backed by a leveldb in a temporary directory
// under Dir. The directory is removed when Group returns.
type Grouper struct {
	Dir string
}

type errorList []error

func (errs errorList) Error() string {
	errstrings := make([]string, len(errs))
	for i, err := range errs {
		errstrings[i] = err.Error()
	}
	return strings.Join(errstrings, "; ")
}

// Group implements join.Grouper. Keys are visited in the order of their
// encoding, which is not lexicographic.
func (g *Grouper) Group(ctx context.Context, left, right []canopy.Record, leftKey, rightKey string, fn func(key string, left, right []canopy.Record) error) (err error) {
	if g.Dir != "" {
		if err := os.MkdirAll(g.Dir, 0700); err != nil {
			return errors.Wrap(err, "making spill directory")
		}
	}
	dir, err := ioutil.TempDir(g.Dir, "cogroup")
	if err != nil {
		return errors.Wrap(err, "making temp dir")
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		os.RemoveAll(dir)
		return errors.Wrapf(err, "opening leveldb at %v", dir)
	}
	defer func() {
		errs := make(errorList, 0)
		if err != nil {
			errs = append(errs, err)
		}
		if cerr := db.Close(); cerr != nil {
			errs = append(errs, errors.Wrap(cerr, "closing leveldb"))
		}
		if rerr := os.RemoveAll(dir); rerr != nil {
			errs = append(errs, errors.Wrap(rerr, "removing spill directory"))
		}
		if len(errs) == 1 {
			err = errs[0]
		} else if len(errs) > 1 {
			err = errs
		}
	}()

	seq := canopy.NewNexter()
	if err := spill(ctx, db, left, leftKey, sideLeft, seq); err != nil {
		return errors.Wrap(err, "spilling left side")
	}
	if err := spill(ctx, db, right, rightKey, sideRight, seq); err != nil {
		return errors.Wrap(err, "spilling right side")
	}
	return scan(ctx, db, fn)
}

// spill writes each keyed record under
// uvarint(len(key)) | key | side | seq so that all entries for a key are
// contiguous, left before right.
func spill(ctx context.Context, db *leveldb.DB, recs []canopy.Record, field string, side byte, seq *canopy.Nexter) error {
	batch := new(leveldb.Batch)
	for _, rec := range recs {
		k, ok := join.Key(rec, field)
		if !ok {
			continue
		}
		batch.Put(encodeKey(k, side, seq.Next()), canopy.MarshalRecord(rec))
		if batch.Len() >= batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := db.Write(batch, nil); err != nil {
				return errors.Wrap(err, "writing batch")
			}
			batch.Reset()
		}
	}
	if batch.Len() > 0 {
		if err := db.Write(batch, nil); err != nil {
			return errors.Wrap(err, "writing batch")
		}
	}
	return nil
}

func scan(ctx context.Context, db *leveldb.DB, fn func(key string, left, right []canopy.Record) error) error {
	iter := db.NewIterator(nil, nil)
	defer iter.Release()

	var (
		curPrefix []byte
		curKey    string
		ls, rs    []canopy.Record
		n         int
	)
	flush := func() error {
		if curPrefix == nil {
			return nil
		}
		return fn(curKey, ls, rs)
	}
	for iter.Next() {
		n++
		if n%batchSize == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		key, side, prefix, err := decodeKey(iter.Key())
		if err != nil {
			return err
		}
		if curPrefix == nil || !bytes.Equal(prefix, curPrefix) {
			if err := flush(); err != nil {
				return err
			}
			curPrefix = append([]byte(nil), prefix...)
			curKey = key
			ls, rs = nil, nil
		}
		rec, err := canopy.UnmarshalRecord(iter.Value())
		if err != nil {
			return errors.Wrapf(err, "decoding spilled record for key '%s'", key)
		}
		if side == sideLeft {
			ls = append(ls, rec)
		} else {
			rs = append(rs, rec)
		}
	}
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "iterating spilled records")
	}
	return flush()
}

func encodeKey(key string, side byte, seq uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64+len(key)+1+8)
	n := binary.PutUvarint(buf, uint64(len(key)))
	n += copy(buf[n:], key)
	buf[n] = side
	n++
	binary.BigEndian.PutUint64(buf[n:], seq)
	return buf[:n+8]
}

// decodeKey returns the group key, the side, and the encoded prefix which
// identifies the group.
func decodeKey(k []byte) (key string, side byte, prefix []byte, err error) {
	l, n := binary.Uvarint(k)
	if n <= 0 || uint64(len(k)-n) < l+9 {
		return "", 0, nil, errors.Errorf("malformed spill key %x", k)
	}
	end := n + int(l)
	return string(k[n:end]), k[end], k[:end], nil
}
