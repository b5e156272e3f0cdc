// Package boltdb provides the checkpoint catalog: a small boltdb file which
// records, per checkpoint, the file holding its rows and the digest of that
// file. An entry is only written once the file is durable, so a checkpoint
// with no entry is treated as absent.
package boltdb

import (
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var entryBucket = []byte("checkpoints")

// Entry describes one completed checkpoint.
type Entry struct {
	Name    string    `json:"name"`
	File    string    `json:"file"`
	Schema  string    `json:"schema"`
	Rows    int       `json:"rows"`
	Size    int64     `json:"size"`
	Digest  uint64    `json:"digest"`
	Created time.Time `json:"created"`
}

// Catalog stores Entries by checkpoint name in boltdb.
type Catalog struct {
	Db *bolt.DB
}

// Open opens or creates the catalog in filename.
func Open(filename string) (*Catalog, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entryBucket)
		return errors.Wrap(err, "creating checkpoints bucket")
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return &Catalog{Db: db}, nil
}

// Close syncs and closes the underlying boltdb.
func (c *Catalog) Close() error {
	err := c.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return c.Db.Close()
}

// Put records e, replacing any entry of the same name.
func (c *Catalog) Put(e Entry) error {
	if e.Name == "" {
		return errors.New("entry has no name")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshaling entry")
	}
	err = c.Db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entryBucket).Put([]byte(e.Name), data)
	})
	return errors.Wrapf(err, "putting entry '%s'", e.Name)
}

// Get returns the named entry. ok is false if there is none.
func (c *Catalog) Get(name string) (e Entry, ok bool, err error) {
	err = c.Db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(entryBucket).Get([]byte(name))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return Entry{}, false, errors.Wrapf(err, "getting entry '%s'", name)
	}
	return e, ok, nil
}

// Delete removes the named entry. Deleting a missing entry is not an error.
func (c *Catalog) Delete(name string) error {
	err := c.Db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entryBucket).Delete([]byte(name))
	})
	return errors.Wrapf(err, "deleting entry '%s'", name)
}

// Entries returns every entry in name order.
func (c *Catalog) Entries() ([]Entry, error) {
	ret := make([]Entry, 0)
	err := c.Db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(entryBucket).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return errors.Wrapf(err, "decoding entry '%s'", k)
			}
			ret = append(ret, e)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing entries")
	}
	return ret, nil
}
