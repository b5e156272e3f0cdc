// Package flow builds and runs a pipeline as a DAG of named stages.
//
// Stages exchange fully materialized datasets. A Builder declares the
// stages, Build validates them into an immutable Graph, and a Scheduler runs
// the Graph, resuming from completed checkpoints where it can.
package flow

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/join"
	"github.com/pkg/errors"
)

const (
	// ErrCycle is returned by Build when the stages don't form a DAG.
	ErrCycle = canopy.Error("stages form a cycle")
	// ErrUnknownStage is returned by Build when a stage names an input that
	// isn't declared.
	ErrUnknownStage = canopy.Error("unknown stage")
	// ErrDuplicateStage is returned by Build when two stages share a name.
	ErrDuplicateStage = canopy.Error("duplicate stage")
)

// Kind is the kind of a Stage.
type Kind int

const (
	KindSource Kind = iota
	KindEach
	KindJoin
	KindCheckpoint
	KindSink
	KindTrap
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindEach:
		return "each"
	case KindJoin:
		return "join"
	case KindCheckpoint:
		return "checkpoint"
	case KindSink:
		return "sink"
	case KindTrap:
		return "trap"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Loader reads a source dataset.
type Loader func(ctx context.Context) ([]canopy.Record, error)

// SinkOpener creates the storage a sink or trap writes to.
type SinkOpener func() (canopy.Sink, error)

// TrapFormatter turns a record which failed at stage into the record written
// to a trap.
type TrapFormatter func(stage string, rec canopy.Record, err error) canopy.Record

// Trap schema fields written by DefaultTrapFormatter.
const (
	TrapStage  = "stage"
	TrapReason = "reason"
	TrapLine   = "line"
)

// TrapSchema is the schema of DefaultTrapFormatter records.
var TrapSchema = canopy.Strings(TrapStage, TrapReason, TrapLine)

// DefaultTrapFormatter records the stage, the error, and the record's values
// joined by tabs.
func DefaultTrapFormatter(stage string, rec canopy.Record, err error) canopy.Record {
	line := ""
	for i, v := range rec.Values() {
		if i > 0 {
			line += "\t"
		}
		line += v.String()
	}
	return canopy.NewRecord().
		MustSet(TrapStage, canopy.S(stage)).
		MustSet(TrapReason, canopy.S(errors.Cause(err).Error())).
		MustSet(TrapLine, canopy.S(line))
}

// Stage is a node of the Graph.
type Stage struct {
	Name   string
	Kind   Kind
	Inputs []string

	Load   Loader           // KindSource
	Op     canopy.Operation // KindEach
	Joiner join.Joiner      // KindJoin, Inputs are left then right
	Schema canopy.Schema    // KindCheckpoint, KindSink, KindTrap
	Open   SinkOpener       // KindSink, KindTrap
	Format TrapFormatter    // KindTrap, Inputs are the stages it is bound to
}

// Builder declares stages. Errors are collected and returned by Build.
type Builder struct {
	stages []Stage
}

// NewBuilder gets an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) add(s Stage) *Builder {
	b.stages = append(b.stages, s)
	return b
}

// Source declares a stage which loads a dataset.
func (b *Builder) Source(name string, load Loader) *Builder {
	return b.add(Stage{Name: name, Kind: KindSource, Load: load})
}

// Each declares a stage which applies op to every record of input.
func (b *Builder) Each(name, input string, op canopy.Operation) *Builder {
	return b.add(Stage{Name: name, Kind: KindEach, Inputs: []string{input}, Op: op})
}

// Retain declares a projection of input onto fields.
func (b *Builder) Retain(name, input string, fields ...string) *Builder {
	return b.Each(name, input, canopy.Retain(fields))
}

// Join declares an inner join of left and right.
func (b *Builder) Join(name, left, right string, j join.Joiner) *Builder {
	return b.add(Stage{Name: name, Kind: KindJoin, Inputs: []string{left, right}, Joiner: j})
}

// Checkpoint declares a checkpoint of input projected onto schema.
func (b *Builder) Checkpoint(name, input string, schema canopy.Schema) *Builder {
	return b.add(Stage{Name: name, Kind: KindCheckpoint, Inputs: []string{input}, Schema: schema})
}

// Sink declares a stage which writes the complete records of input.
func (b *Builder) Sink(name, input string, schema canopy.Schema, open SinkOpener) *Builder {
	return b.add(Stage{Name: name, Kind: KindSink, Inputs: []string{input}, Schema: schema, Open: open})
}

// Trap declares a trap for the records that fail at each of stages. A nil
// format uses DefaultTrapFormatter and TrapSchema.
func (b *Builder) Trap(name string, schema canopy.Schema, format TrapFormatter, open SinkOpener, stages ...string) *Builder {
	if format == nil {
		format, schema = DefaultTrapFormatter, TrapSchema
	}
	return b.add(Stage{Name: name, Kind: KindTrap, Inputs: stages, Schema: schema, Open: open, Format: format})
}

// Build validates the declared stages and returns the Graph.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{
		stages: make([]Stage, len(b.stages)),
		index:  make(map[string]int, len(b.stages)),
		trapOf: make(map[string]string),
	}
	for i, s := range b.stages {
		if s.Name == "" {
			return nil, errors.Errorf("stage %d has no name", i)
		}
		if _, ok := g.index[s.Name]; ok {
			return nil, errors.Wrap(ErrDuplicateStage, s.Name)
		}
		s.Inputs = append([]string(nil), s.Inputs...)
		g.stages[i] = s
		g.index[s.Name] = i
	}
	for _, s := range g.stages {
		if err := g.validate(s); err != nil {
			return nil, errors.Wrapf(err, "validating stage '%s'", s.Name)
		}
	}
	order, err := g.sort()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

func (g *Graph) validate(s Stage) error {
	for _, in := range s.Inputs {
		i, ok := g.index[in]
		if !ok {
			return errors.Wrap(ErrUnknownStage, in)
		}
		k := g.stages[i].Kind
		if s.Kind != KindTrap && (k == KindSink || k == KindTrap) {
			return errors.Errorf("input '%s' is a %v and produces no records", in, k)
		}
	}
	want := 1
	switch s.Kind {
	case KindSource:
		want = 0
		if s.Load == nil {
			return errors.New("source has no loader")
		}
	case KindEach:
		if s.Op == nil {
			return errors.New("each has no operation")
		}
	case KindJoin:
		want = 2
		if s.Joiner == nil {
			return errors.New("join has no joiner")
		}
	case KindCheckpoint:
		if len(s.Schema) == 0 {
			return errors.New("checkpoint has no schema")
		}
	case KindSink:
		if s.Open == nil || len(s.Schema) == 0 {
			return errors.New("sink needs a schema and an opener")
		}
	case KindTrap:
		if s.Open == nil || s.Format == nil {
			return errors.New("trap needs a formatter and an opener")
		}
		for _, in := range s.Inputs {
			if k := g.stages[g.index[in]].Kind; k != KindEach {
				return errors.Errorf("trap bound to %v stage '%s', only each stages trap records", k, in)
			}
			if other, ok := g.trapOf[in]; ok {
				return errors.Errorf("stage '%s' is bound to traps '%s' and '%s'", in, other, s.Name)
			}
			g.trapOf[in] = s.Name
		}
		return nil
	default:
		return errors.Errorf("unknown stage kind %v", s.Kind)
	}
	if len(s.Inputs) != want {
		return errors.Errorf("%v takes %d inputs, got %d", s.Kind, want, len(s.Inputs))
	}
	return nil
}

// sort orders the stages with Kahn's algorithm, breaking ties by declaration
// order so that the order is stable.
func (g *Graph) sort() ([]string, error) {
	indegree := make([]int, len(g.stages))
	down := make([][]int, len(g.stages))
	for i, s := range g.stages {
		for _, in := range s.Inputs {
			j := g.index[in]
			down[j] = append(down[j], i)
			indegree[i]++
		}
	}
	ready := make([]int, 0)
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]string, 0, len(g.stages))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		order = append(order, g.stages[i].Name)
		for _, j := range down[i] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}
	if len(order) != len(g.stages) {
		stuck := make([]string, 0)
		for i, d := range indegree {
			if d > 0 {
				stuck = append(stuck, g.stages[i].Name)
			}
		}
		return nil, errors.Wrapf(ErrCycle, "among %v", stuck)
	}
	return order, nil
}

// Graph is a validated, immutable set of stages.
type Graph struct {
	stages []Stage
	index  map[string]int
	order  []string
	trapOf map[string]string
}

// Stages returns the stages in declaration order.
func (g *Graph) Stages() []Stage {
	ret := make([]Stage, len(g.stages))
	copy(ret, g.stages)
	return ret
}

// Stage returns the named stage.
func (g *Graph) Stage(name string) (Stage, bool) {
	i, ok := g.index[name]
	if !ok {
		return Stage{}, false
	}
	return g.stages[i], true
}

// Order returns the stage names in a topological order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// TrapOf returns the trap bound to stage, if any.
func (g *Graph) TrapOf(stage string) (string, bool) {
	t, ok := g.trapOf[stage]
	return t, ok
}

var dotShapes = map[Kind]string{
	KindSource:     "invhouse",
	KindEach:       "box",
	KindJoin:       "diamond",
	KindCheckpoint: "cylinder",
	KindSink:       "house",
	KindTrap:       "octagon",
}

// WriteDOT writes the graph in Graphviz DOT format.
func (g *Graph) WriteDOT(w io.Writer) error {
	p := func(format string, a ...interface{}) error {
		_, err := fmt.Fprintf(w, format, a...)
		return err
	}
	if err := p("digraph canopy {\n\trankdir=TB;\n"); err != nil {
		return errors.Wrap(err, "writing dot")
	}
	for _, name := range g.order {
		s := g.stages[g.index[name]]
		if err := p("\t%q [shape=%s, label=%q];\n", s.Name, dotShapes[s.Kind], s.Name+"\n"+s.Kind.String()); err != nil {
			return errors.Wrap(err, "writing dot")
		}
	}
	for _, name := range g.order {
		s := g.stages[g.index[name]]
		for _, in := range s.Inputs {
			style := ""
			if s.Kind == KindTrap {
				style = " [style=dashed]"
			}
			if err := p("\t%q -> %q%s;\n", in, s.Name, style); err != nil {
				return errors.Wrap(err, "writing dot")
			}
		}
	}
	return errors.Wrap(p("}\n"), "writing dot")
}
