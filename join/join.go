// Package join implements inner joins of record datasets.
//
// Two shapes are provided. HashJoin materializes the right side in memory and
// streams the left side past it; the right side must be the small one (a
// reference table). CoGroup groups both sides by key, through a Grouper which
// may spill to disk, and emits the cross product of each key's groups. Auto
// picks between them by the size of the right side.
//
// Join output has no defined order. Only the multiset of rows is meaningful.
package join

import (
	"context"
	"sort"

	"github.com/pilosa/canopy"
	"github.com/pkg/errors"
)

// Joiner joins two datasets. Output rows are left.Merge(right) for every
// pair of rows with equal keys; rows whose key field is missing are dropped.
type Joiner interface {
	Join(ctx context.Context, left, right []canopy.Record) ([]canopy.Record, error)
}

// checkEvery is how many rows are processed between context checks.
const checkEvery = 1024

// Key returns the join key of rec: the string form of its field value.
func Key(rec canopy.Record, field string) (string, bool) {
	v, ok := rec.Get(field)
	if !ok {
		return "", false
	}
	return v.String(), true
}

// HashJoin joins by building a map of the right side.
type HashJoin struct {
	LeftKey  string
	RightKey string
}

// Join implements Joiner.
func (h HashJoin) Join(ctx context.Context, left, right []canopy.Record) ([]canopy.Record, error) {
	table := make(map[string][]canopy.Record)
	for _, r := range right {
		k, ok := Key(r, h.RightKey)
		if !ok {
			continue
		}
		table[k] = append(table[k], r)
	}
	out := make([]canopy.Record, 0, len(left))
	for i, l := range left {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		k, ok := Key(l, h.LeftKey)
		if !ok {
			continue
		}
		for _, r := range table[k] {
			m, err := l.Merge(r)
			if err != nil {
				return nil, errors.Wrap(err, "merging joined rows")
			}
			out = append(out, m)
		}
	}
	return out, nil
}

// Grouper groups two datasets by key. fn is called once per key present on
// either side; one of the groups may be empty.
type Grouper interface {
	Group(ctx context.Context, left, right []canopy.Record, leftKey, rightKey string, fn func(key string, left, right []canopy.Record) error) error
}

// MemGrouper groups in memory.
type MemGrouper struct{}

// Group implements Grouper. Keys are visited in sorted order.
func (MemGrouper) Group(ctx context.Context, left, right []canopy.Record, leftKey, rightKey string, fn func(key string, left, right []canopy.Record) error) error {
	type pair struct{ l, r []canopy.Record }
	groups := make(map[string]*pair)
	get := func(k string) *pair {
		p, ok := groups[k]
		if !ok {
			p = &pair{}
			groups[k] = p
		}
		return p
	}
	for _, l := range left {
		if k, ok := Key(l, leftKey); ok {
			p := get(k)
			p.l = append(p.l, l)
		}
	}
	for _, r := range right {
		if k, ok := Key(r, rightKey); ok {
			p := get(k)
			p.r = append(p.r, r)
		}
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(k, groups[k].l, groups[k].r); err != nil {
			return err
		}
	}
	return nil
}

// CoGroup joins by grouping both sides by key. A nil Grouper groups in
// memory.
type CoGroup struct {
	LeftKey  string
	RightKey string
	Grouper  Grouper
}

// Join implements Joiner.
func (c CoGroup) Join(ctx context.Context, left, right []canopy.Record) ([]canopy.Record, error) {
	g := c.Grouper
	if g == nil {
		g = MemGrouper{}
	}
	out := make([]canopy.Record, 0)
	err := g.Group(ctx, left, right, c.LeftKey, c.RightKey, func(key string, ls, rs []canopy.Record) error {
		for _, l := range ls {
			for _, r := range rs {
				m, err := l.Merge(r)
				if err != nil {
					return errors.Wrapf(err, "merging rows for key '%s'", key)
				}
				out = append(out, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "co-grouping")
	}
	return out, nil
}

// Auto hash joins when the right side has at most MaxHashRows rows and
// co-groups otherwise.
type Auto struct {
	LeftKey     string
	RightKey    string
	MaxHashRows int
	Grouper     Grouper
}

// Strategy returns the Joiner Auto uses for a right side of rightRows rows.
func (a Auto) Strategy(rightRows int) Joiner {
	if rightRows <= a.MaxHashRows {
		return HashJoin{LeftKey: a.LeftKey, RightKey: a.RightKey}
	}
	return CoGroup{LeftKey: a.LeftKey, RightKey: a.RightKey, Grouper: a.Grouper}
}

// Join implements Joiner.
func (a Auto) Join(ctx context.Context, left, right []canopy.Record) ([]canopy.Record, error) {
	return a.Strategy(len(right)).Join(ctx, left, right)
}
