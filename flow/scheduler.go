package flow

import (
	"context"
	"fmt"

	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/checkpoint"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs a Graph. Each stage runs in its own goroutine once its
// inputs are done; the first fatal error cancels every stage.
type Scheduler struct {
	// Concurrency is the number of partitions each stage splits its input
	// into.
	Concurrency int
	// Checkpoints persists checkpoint stages. If nil, checkpoints only
	// project their input and nothing is resumed.
	Checkpoints *checkpoint.Manager
	Log         canopy.Logger
	Stats       canopy.Statter
}

// Plan says what a run of a Graph will do with each stage.
type Plan struct {
	// Run lists the stages which will execute, in order.
	Run []string
	// Resume lists the checkpoints which will be read instead of computed.
	Resume []string
	// Skip lists the stages which nothing needs.
	Skip []string
}

func (s *Scheduler) logger() canopy.Logger {
	if s.Log == nil {
		return canopy.NopLogger{}
	}
	return s.Log
}

func (s *Scheduler) stats() canopy.Statter {
	if s.Stats == nil {
		return canopy.NopStatter{}
	}
	return s.Stats
}

// Plan works out which stages a run needs. Every sink and trap is needed,
// along with everything upstream of them, except that a checkpoint which can
// be resumed cuts off its own upstream.
func (s *Scheduler) Plan(g *Graph) (Plan, error) {
	resumable := make(map[string]bool)
	if s.Checkpoints != nil {
		for _, st := range g.stages {
			if st.Kind != KindCheckpoint {
				continue
			}
			ok, err := s.Checkpoints.Complete(st.Name)
			if err != nil {
				return Plan{}, errors.Wrapf(err, "checking checkpoint '%s'", st.Name)
			}
			resumable[st.Name] = ok
		}
	}

	needed := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if needed[name] {
			return
		}
		needed[name] = true
		st, _ := g.Stage(name)
		if resumable[name] || st.Kind == KindTrap {
			return
		}
		for _, in := range st.Inputs {
			visit(in)
		}
	}
	for _, st := range g.stages {
		if st.Kind == KindSink || st.Kind == KindTrap {
			visit(st.Name)
		}
	}

	var p Plan
	for _, name := range g.order {
		switch {
		case !needed[name]:
			p.Skip = append(p.Skip, name)
		case resumable[name]:
			p.Resume = append(p.Resume, name)
		default:
			p.Run = append(p.Run, name)
		}
	}
	return p, nil
}

// result is the dataset a stage produced and, for each stages, the records
// it trapped, already formatted for the trap.
type result struct {
	recs    []canopy.Record
	trapped []canopy.Record
}

// Run executes g.
func (s *Scheduler) Run(ctx context.Context, g *Graph) error {
	plan, err := s.Plan(g)
	if err != nil {
		return errors.Wrap(err, "planning")
	}
	log := s.logger()
	log.Printf("running %d stages, resuming %d checkpoints, skipping %d stages", len(plan.Run), len(plan.Resume), len(plan.Skip))
	for _, name := range plan.Resume {
		log.Debugf("resuming checkpoint %s", name)
	}
	for _, name := range plan.Skip {
		log.Debugf("skipping %s", name)
	}

	results := make([]result, len(g.stages))
	done := make([]chan struct{}, len(g.stages))
	for i := range done {
		done[i] = make(chan struct{})
	}
	resume := make(map[string]bool, len(plan.Resume))
	for _, name := range plan.Resume {
		resume[name] = true
	}

	eg, ctx := errgroup.WithContext(ctx)
	active := append(append([]string(nil), plan.Resume...), plan.Run...)
	running := make(map[string]bool, len(active))
	for _, name := range active {
		running[name] = true
	}
	for _, name := range active {
		i := g.index[name]
		st := g.stages[i]
		eg.Go(func() error {
			// done is closed only on success; a failed stage leaves its
			// dependents waiting for the cancellation it causes
			if !resume[st.Name] {
				for _, in := range st.Inputs {
					if !running[in] {
						// traps may be bound to stages this run skips
						continue
					}
					select {
					case <-done[g.index[in]]:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			timed := canopy.Timed(s.stats(), "stage."+st.Name)
			res, err := s.runStage(ctx, g, st, resume[st.Name], results, running)
			if err != nil {
				return errors.Wrapf(err, "running %v stage '%s'", st.Kind, st.Name)
			}
			results[i] = res
			timed()
			close(done[i])
			return nil
		})
	}
	return eg.Wait()
}

func (s *Scheduler) input(g *Graph, results []result, name string) []canopy.Record {
	return results[g.index[name]].recs
}

func (s *Scheduler) runStage(ctx context.Context, g *Graph, st Stage, resume bool, results []result, running map[string]bool) (result, error) {
	log, stats := s.logger(), s.stats()
	switch st.Kind {
	case KindSource:
		recs, err := st.Load(ctx)
		if err != nil {
			return result{}, errors.Wrap(err, "loading")
		}
		stats.Count("stage."+st.Name+".out", int64(len(recs)), 1)
		log.Printf("source %s: %d records", st.Name, len(recs))
		return result{recs: recs}, nil

	case KindEach:
		return s.each(ctx, g, st, s.input(g, results, st.Inputs[0]))

	case KindJoin:
		left, right := s.input(g, results, st.Inputs[0]), s.input(g, results, st.Inputs[1])
		recs, err := st.Joiner.Join(ctx, left, right)
		if err != nil {
			return result{}, err
		}
		stats.Count("stage."+st.Name+".in", int64(len(left)+len(right)), 1)
		stats.Count("stage."+st.Name+".out", int64(len(recs)), 1)
		log.Printf("join %s: %d x %d -> %d records", st.Name, len(left), len(right), len(recs))
		return result{recs: recs}, nil

	case KindCheckpoint:
		return s.checkpoint(ctx, st, resume, s.input(g, results, st.Inputs[0]))

	case KindSink:
		return result{}, s.sink(ctx, st, s.input(g, results, st.Inputs[0]))

	case KindTrap:
		return result{}, s.trap(ctx, g, st, results, running)
	}
	return result{}, errors.Errorf("unknown stage kind %v", st.Kind)
}

// each applies the stage's operation over partitions of in. A record whose
// operation fails is trapped if a trap is bound to the stage; otherwise the
// failure is fatal.
func (s *Scheduler) each(ctx context.Context, g *Graph, st Stage, in []canopy.Record) (result, error) {
	parts := s.Concurrency
	if parts < 1 {
		parts = 1
	}
	if parts > len(in) {
		parts = len(in)
	}
	trap, hasTrap := g.TrapOf(st.Name)
	var format TrapFormatter
	if hasTrap {
		tst, _ := g.Stage(trap)
		format = tst.Format
	}

	outs := make([]result, parts)
	eg, pctx := errgroup.WithContext(ctx)
	for p := 0; p < parts; p++ {
		p := p
		lo, hi := p*len(in)/parts, (p+1)*len(in)/parts
		eg.Go(func() error {
			out := result{recs: make([]canopy.Record, 0, hi-lo)}
			emit := func(rec canopy.Record) { out.recs = append(out.recs, rec) }
			for i, rec := range in[lo:hi] {
				if i%1024 == 0 {
					if err := pctx.Err(); err != nil {
						return err
					}
				}
				err := st.Op.Operate(rec, emit)
				if err == nil {
					continue
				}
				if !hasTrap {
					return errors.Wrapf(err, "record %d", lo+i)
				}
				out.trapped = append(out.trapped, format(st.Name, rec, err))
			}
			outs[p] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return result{}, err
	}

	var res result
	n, t := 0, 0
	for _, o := range outs {
		n += len(o.recs)
		t += len(o.trapped)
	}
	res.recs = make([]canopy.Record, 0, n)
	for _, o := range outs {
		res.recs = append(res.recs, o.recs...)
		res.trapped = append(res.trapped, o.trapped...)
	}
	if hasTrap && s.Checkpoints != nil {
		if err := ctx.Err(); err != nil {
			return result{}, err
		}
		tst, _ := g.Stage(trap)
		if _, err := s.Checkpoints.Materialize(trapCheckpoint(trap, st.Name), tst.Schema, res.trapped); err != nil {
			return result{}, errors.Wrap(err, "saving trapped records")
		}
	}

	stats := s.stats()
	stats.Count("stage."+st.Name+".in", int64(len(in)), 1)
	stats.Count("stage."+st.Name+".out", int64(n), 1)
	if t > 0 {
		stats.Count("stage."+st.Name+".trapped", int64(t), 1)
	}
	s.logger().Debugf("each %s: %d in, %d out, %d trapped", st.Name, len(in), n, t)
	return res, nil
}

// trapCheckpoint names the checkpoint holding what stage sent to trap, so
// that a resumed run can still write the records trapped by stages it skips.
func trapCheckpoint(trap, stage string) string {
	return fmt.Sprintf("trap.%s.%s", trap, stage)
}

func (s *Scheduler) checkpoint(ctx context.Context, st Stage, resume bool, in []canopy.Record) (result, error) {
	if resume {
		recs, ok, err := s.Checkpoints.Resume(st.Name)
		if err != nil {
			return result{}, err
		}
		if !ok {
			return result{}, errors.New("checkpoint disappeared after planning")
		}
		s.stats().Count("checkpoint."+st.Name+".resumed", 1, 1)
		return result{recs: recs}, nil
	}
	if s.Checkpoints != nil {
		// nothing is published once the job has failed
		if err := ctx.Err(); err != nil {
			return result{}, err
		}
		recs, err := s.Checkpoints.Materialize(st.Name, st.Schema, in)
		return result{recs: recs}, err
	}
	recs := make([]canopy.Record, len(in))
	for i, rec := range in {
		var err error
		recs[i], err = st.Schema.Coerce(rec)
		if err != nil {
			return result{}, errors.Wrapf(err, "coercing record %d", i)
		}
	}
	return result{recs: recs}, nil
}

// sink writes the records of in that are complete for the stage's schema.
// Incomplete records are dropped and counted. Any storage error is fatal.
func (s *Scheduler) sink(ctx context.Context, st Stage, in []canopy.Record) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	w, err := st.Open()
	if err != nil {
		return errors.Wrap(err, "opening")
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "closing")
		}
	}()
	dropped := 0
	for _, rec := range in {
		if !st.Schema.Complete(rec) {
			dropped++
			continue
		}
		if err := w.Write(rec); err != nil {
			return errors.Wrap(err, "writing")
		}
	}
	stats := s.stats()
	stats.Count("stage."+st.Name+".in", int64(len(in)), 1)
	stats.Count("sink."+st.Name+".written", int64(len(in)-dropped), 1)
	if dropped > 0 {
		stats.Count("sink."+st.Name+".dropped", int64(dropped), 1)
	}
	s.logger().Printf("sink %s: wrote %d records, dropped %d incomplete", st.Name, len(in)-dropped, dropped)
	return nil
}

// trap writes every record trapped by the stages bound to it. Records
// trapped by stages this run skipped come from their saved checkpoints.
func (s *Scheduler) trap(ctx context.Context, g *Graph, st Stage, results []result, running map[string]bool) (err error) {
	all := make([]canopy.Record, 0)
	for _, in := range st.Inputs {
		if running[in] {
			all = append(all, results[g.index[in]].trapped...)
			continue
		}
		if s.Checkpoints == nil {
			continue
		}
		recs, ok, err := s.Checkpoints.Resume(trapCheckpoint(st.Name, in))
		if err != nil {
			return errors.Wrapf(err, "resuming records trapped by '%s'", in)
		}
		if !ok {
			s.logger().Printf("no saved trapped records for skipped stage %s", in)
		}
		all = append(all, recs...)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	w, err := st.Open()
	if err != nil {
		return errors.Wrap(err, "opening")
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "closing")
		}
	}()
	for _, rec := range all {
		if err := w.Write(rec); err != nil {
			return errors.Wrap(err, "writing")
		}
	}
	s.stats().Count("trap."+st.Name+".written", int64(len(all)), 1)
	s.logger().Printf("trap %s: %d records", st.Name, len(all))
	return nil
}
