// Package checkpoint persists named intermediate datasets so that a failed
// run can resume after the last completed checkpoint.
//
// A checkpoint is written to a staging directory, synced, and renamed into
// place. Only then is it recorded in the catalog along with its row count
// and an xxhash digest of the file. Resume trusts nothing but the catalog:
// a file with no entry, or whose digest no longer matches, is absent.
package checkpoint

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash"
	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/boltdb"
	"github.com/pilosa/canopy/file"
	"github.com/pilosa/canopy/tsv"
	"github.com/pkg/errors"
)

const (
	catalogFile = "catalog.db"
	stagingDir  = "staging"
	ext         = ".tsv"
)

// Manager materializes and resumes checkpoints in a directory.
type Manager struct {
	dir     string
	catalog *boltdb.Catalog
	log     canopy.Logger
}

// Open gets a Manager for dir, creating it if necessary.
func Open(dir string, log canopy.Logger) (*Manager, error) {
	if log == nil {
		log = canopy.NopLogger{}
	}
	if err := os.MkdirAll(filepath.Join(dir, stagingDir), 0755); err != nil {
		return nil, errors.Wrap(err, "making checkpoint directories")
	}
	c, err := boltdb.Open(filepath.Join(dir, catalogFile))
	if err != nil {
		return nil, errors.Wrap(err, "opening checkpoint catalog")
	}
	return &Manager{dir: dir, catalog: c, log: log}, nil
}

// Close closes the catalog.
func (m *Manager) Close() error {
	return m.catalog.Close()
}

// Path is where the named checkpoint is published.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, name+ext)
}

func (m *Manager) stagingPath(name string) string {
	return filepath.Join(m.dir, stagingDir, name+ext)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errors.Errorf("invalid checkpoint name '%s'", name)
	}
	return nil
}

// Materialize persists recs, projected onto schema, as the named checkpoint
// and returns the projected records in the order they were written. Rows are
// written sorted so that the same dataset always produces the same bytes.
// Any error leaves no entry for name in the catalog.
func (m *Manager) Materialize(name string, schema canopy.Schema, recs []canopy.Record) ([]canopy.Record, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := m.catalog.Delete(name); err != nil {
		return nil, errors.Wrap(err, "invalidating previous checkpoint")
	}
	start := time.Now()

	type row struct {
		rec canopy.Record
		key string
	}
	rows := make([]row, len(recs))
	for i, rec := range recs {
		c, err := schema.Coerce(rec)
		if err != nil {
			return nil, errors.Wrapf(err, "coercing row %d of checkpoint '%s'", i, name)
		}
		rows[i] = row{rec: c, key: encodeRow(c)}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })

	staging := m.stagingPath(name)
	f, err := file.Create(staging)
	if err != nil {
		return nil, errors.Wrap(err, "creating staging file")
	}
	h := xxhash.New()
	w := tsv.NewWriter(io.MultiWriter(f, h), schema)
	out := make([]canopy.Record, len(rows))
	for i, r := range rows {
		if err := w.Write(r.rec); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "writing checkpoint '%s'", name)
		}
		out[i] = r.rec
	}
	if err := w.Close(); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "flushing checkpoint '%s'", name)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "syncing checkpoint '%s'", name)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "statting staging file")
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrap(err, "closing staging file")
	}
	if err := os.Rename(staging, m.Path(name)); err != nil {
		return nil, errors.Wrapf(err, "publishing checkpoint '%s'", name)
	}
	syncDir(m.dir)

	e := boltdb.Entry{
		Name:    name,
		File:    name + ext,
		Schema:  schema.Header(),
		Rows:    len(out),
		Size:    info.Size(),
		Digest:  h.Sum64(),
		Created: time.Now().UTC(),
	}
	if err := m.catalog.Put(e); err != nil {
		return nil, errors.Wrapf(err, "recording checkpoint '%s'", name)
	}
	m.log.Printf("checkpoint %s: %d rows, %v in %v", name, e.Rows, canopy.Bytes(e.Size), time.Since(start))
	return out, nil
}

// encodeRow is the sort key of a row: its tsv line.
func encodeRow(rec canopy.Record) string {
	vals := rec.Values()
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = tsv.Escape(v.String())
	}
	return strings.Join(parts, "\t")
}

// syncDir makes a rename durable where the platform allows it. Errors are
// ignored; some filesystems don't support syncing directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

// Resume reads the named checkpoint. ok is false if there is no complete
// checkpoint of that name.
func (m *Manager) Resume(name string) (recs []canopy.Record, ok bool, err error) {
	e, ok, err := m.verify(name)
	if err != nil || !ok {
		return nil, false, err
	}
	schema, err := canopy.ParseSchema(e.Schema)
	if err != nil {
		return nil, false, errors.Wrapf(err, "parsing schema of checkpoint '%s'", name)
	}
	rs, err := file.NewRawSource(m.Path(name))
	if err != nil {
		return nil, false, errors.Wrapf(err, "opening checkpoint '%s'", name)
	}
	recs, err = canopy.ReadAll(tsv.NewSource(rs, schema))
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading checkpoint '%s'", name)
	}
	if len(recs) != e.Rows {
		m.log.Printf("checkpoint %s has %d rows, catalog says %d; discarding", name, len(recs), e.Rows)
		return nil, false, m.Discard(name)
	}
	m.log.Printf("resuming from checkpoint %s: %d rows", name, len(recs))
	return recs, true, nil
}

// Complete reports whether the named checkpoint can be resumed.
func (m *Manager) Complete(name string) (bool, error) {
	_, ok, err := m.verify(name)
	return ok, err
}

// verify checks the published file against its catalog entry. A checkpoint
// that fails verification is discarded.
func (m *Manager) verify(name string) (boltdb.Entry, bool, error) {
	if err := validName(name); err != nil {
		return boltdb.Entry{}, false, err
	}
	e, ok, err := m.catalog.Get(name)
	if err != nil || !ok {
		return e, false, err
	}
	f, err := os.Open(m.Path(name))
	if os.IsNotExist(err) {
		m.log.Printf("checkpoint %s is recorded but missing; discarding", name)
		return e, false, m.Discard(name)
	} else if err != nil {
		return e, false, errors.Wrapf(err, "opening checkpoint '%s'", name)
	}
	defer f.Close()
	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return e, false, errors.Wrapf(err, "digesting checkpoint '%s'", name)
	}
	if n != e.Size || h.Sum64() != e.Digest {
		m.log.Printf("checkpoint %s does not match its digest; discarding", name)
		return e, false, m.Discard(name)
	}
	return e, true, nil
}

// Discard removes the named checkpoint, if there is one.
func (m *Manager) Discard(name string) error {
	if err := m.catalog.Delete(name); err != nil {
		return err
	}
	for _, p := range []string{m.Path(name), m.stagingPath(name)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing %s", p)
		}
	}
	return nil
}

// DiscardAll removes every recorded checkpoint and anything left in staging.
func (m *Manager) DiscardAll() error {
	entries, err := m.catalog.Entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := m.Discard(e.Name); err != nil {
			return errors.Wrapf(err, "discarding '%s'", e.Name)
		}
	}
	if err := os.RemoveAll(filepath.Join(m.dir, stagingDir)); err != nil {
		return errors.Wrap(err, "clearing staging")
	}
	return errors.Wrap(os.MkdirAll(filepath.Join(m.dir, stagingDir), 0755), "making staging directory")
}
