// Package shade finds the trees which shade roads in municipal GIS dumps and
// recommends shaded road segments along GPS tracks.
package shade

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/albedo"
	"github.com/pilosa/canopy/checkpoint"
	"github.com/pilosa/canopy/datadog"
	"github.com/pilosa/canopy/flow"
	"github.com/pilosa/canopy/geo"
	"github.com/pilosa/canopy/geohash"
	"github.com/pilosa/canopy/leveldb"
	"github.com/pilosa/canopy/tap"
	"github.com/pilosa/canopy/termstat"
	"github.com/pkg/errors"
)

// Main holds the options for running the shade job.
type Main struct {
	GeohashPrecision int     `help:"Characters of geohash used as the spatial join key."`
	AlbedoYear       int64   `help:"Roads constructed in or after this year count as new."`
	MaxTreeDistance  float64 `help:"Trees further than this many meters from a road segment don't shade it."`
	DistanceStrategy string  `help:"How tree to road distance is estimated: midpoint, perpendicular, or segment."`
	MetersPerDegree  float64 `help:"Meters per degree used to scale distances. Only valid near the latitude it was measured at."`
	CheckpointDir    string  `help:"Directory holding checkpoints."`
	Fresh            bool    `help:"Discard existing checkpoints before running."`
	Concurrency      int     `help:"Partitions each stage splits its input into, and pieces local line files are read in."`
	MaxHashRows      int     `help:"Largest right side which is hash joined rather than co-grouped."`
	SpillDir         string  `help:"Spill co-groups to leveldb under this directory. Empty groups in memory."`
	DOT              string  `help:"Write the job graph in DOT format to this file."`
	AWSRegion        string  `help:"AWS region for s3:// paths."`
	LogPath          string  `help:"Log to this file instead of stderr."`
	Verbose          bool    `help:"Enable verbose logging."`
	Stats            string  `help:"Where to send stats: none, term, or statsd."`
	StatsdAddr       string  `help:"Address of the statsd server when stats=statsd."`

	GIS      string `flag:"-"`
	MetaTree string `flag:"-"`
	MetaRoad string `flag:"-"`
	GPS      string `flag:"-"`
	Trap     string `flag:"-"`
	Parsed   string `flag:"-"`
	Trees    string `flag:"-"`
	Roads    string `flag:"-"`
	Parks    string `flag:"-"`
	Shade    string `flag:"-"`
	Reco     string `flag:"-"`

	Stderr io.Writer `flag:"-"`
}

// NewMain returns a new Main with default values.
func NewMain() *Main {
	return &Main{
		GeohashPrecision: geohash.DefaultPrecision,
		AlbedoYear:       albedo.DefaultYearThreshold,
		MaxTreeDistance:  25,
		DistanceStrategy: geo.StrategyMidpoint,
		MetersPerDegree:  geo.DefaultMetersPerDegree,
		CheckpointDir:    "./checkpoints",
		Concurrency:      4,
		MaxHashRows:      100000,
		Stats:            "none",
		StatsdAddr:       "localhost:8125",

		Stderr: os.Stderr,
	}
}

// Usage names the positional arguments of the job.
const Usage = "GIS META_TREE META_ROAD GPS TRAP PARSED TREES ROADS PARKS SHADE RECO"

// SetPaths sets the dataset paths from the positional arguments, in Usage
// order.
func (m *Main) SetPaths(args []string) error {
	dsts := []*string{&m.GIS, &m.MetaTree, &m.MetaRoad, &m.GPS, &m.Trap, &m.Parsed, &m.Trees, &m.Roads, &m.Parks, &m.Shade, &m.Reco}
	if len(args) != len(dsts) {
		return errors.Errorf("need %d paths (%s), got %d", len(dsts), Usage, len(args))
	}
	for i, a := range args {
		*dsts[i] = a
	}
	return nil
}

func (m *Main) logger() (canopy.Logger, io.Closer, error) {
	var w io.Writer = m.Stderr
	var closer io.Closer = nopCloser{}
	if m.LogPath != "" {
		f, err := os.OpenFile(m.LogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening log file")
		}
		w, closer = f, f
	}
	return canopy.NewLogger(w, m.Verbose), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type statCloser interface {
	canopy.Statter
	io.Closer
}

type nopStats struct {
	canopy.NopStatter
	nopCloser
}

func (m *Main) statter(log canopy.Logger) (statCloser, error) {
	switch m.Stats {
	case "", "none":
		return nopStats{}, nil
	case "term":
		return termstat.NewCollector(m.Stderr, time.Second), nil
	case "statsd":
		s, err := datadog.New(m.StatsdAddr, log, "job:shade")
		return s, errors.Wrap(err, "connecting to statsd")
	}
	return nil, errors.Errorf("unknown stats destination '%s'", m.Stats)
}

// datasets opens the job's paths through o.
func (m *Main) datasets(o tap.Opener) Datasets {
	lines := func(path string) flow.Loader {
		return func(ctx context.Context) ([]canopy.Record, error) { return o.Lines(ctx, path) }
	}
	table := func(path string, schema canopy.Schema) flow.Loader {
		return func(ctx context.Context) ([]canopy.Record, error) { return o.Table(ctx, path, schema) }
	}
	sink := func(path string, schema canopy.Schema) flow.SinkOpener {
		return func() (canopy.Sink, error) { return o.Sink(path, schema) }
	}
	return Datasets{
		GIS:      lines(m.GIS),
		MetaTree: table(m.MetaTree, MetaTreeSchema),
		MetaRoad: table(m.MetaRoad, MetaRoadSchema),
		GPS:      lines(m.GPS),

		Trap:   sink(m.Trap, flow.TrapSchema),
		Parsed: sink(m.Parsed, ParsedSchema),
		Trees:  sink(m.Trees, TreeSchema),
		Roads:  sink(m.Roads, RoadSchema),
		Parks:  sink(m.Parks, ParkSchema),
		Shade:  sink(m.Shade, ShadeSchema),
		Reco:   sink(m.Reco, RecoSchema),
	}
}

func (m *Main) options(stats canopy.Statter) (Options, error) {
	dist, err := geo.StrategyByName(m.DistanceStrategy, m.MetersPerDegree)
	if err != nil {
		return Options{}, err
	}
	if m.GeohashPrecision < 1 || m.GeohashPrecision > geohash.MaxPrecision {
		return Options{}, errors.Errorf("geohash precision %d out of range [1, %d]", m.GeohashPrecision, geohash.MaxPrecision)
	}
	o := Options{
		GeohashPrecision: m.GeohashPrecision,
		AlbedoYear:       m.AlbedoYear,
		MaxTreeDistance:  m.MaxTreeDistance,
		Distance:         dist,
		MaxHashRows:      m.MaxHashRows,
		Stats:            stats,
	}
	if m.SpillDir != "" {
		o.Grouper = &leveldb.Grouper{Dir: m.SpillDir}
	}
	return o, nil
}

// Run runs the job.
func (m *Main) Run(ctx context.Context) (err error) {
	if m.Stderr == nil {
		m.Stderr = os.Stderr
	}
	lg, lc, err := m.logger()
	if err != nil {
		return err
	}
	defer lc.Close()
	stats, err := m.statter(lg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stats.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "closing stats")
		}
	}()

	opts, err := m.options(stats)
	if err != nil {
		return errors.Wrap(err, "checking options")
	}
	g, err := Graph(m.datasets(tap.Opener{AWSRegion: m.AWSRegion, Splits: m.Concurrency}), opts)
	if err != nil {
		return err
	}
	if m.DOT != "" {
		if err := writeDOT(g, m.DOT); err != nil {
			return errors.Wrap(err, "writing dot file")
		}
	}

	cm, err := checkpoint.Open(m.CheckpointDir, lg)
	if err != nil {
		return errors.Wrap(err, "opening checkpoints")
	}
	defer func() {
		if cerr := cm.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "closing checkpoints")
		}
	}()
	if m.Fresh {
		if err := cm.DiscardAll(); err != nil {
			return errors.Wrap(err, "discarding checkpoints")
		}
	}

	start := time.Now()
	sched := &flow.Scheduler{
		Concurrency: m.Concurrency,
		Checkpoints: cm,
		Log:         lg,
		Stats:       stats,
	}
	if err := sched.Run(ctx, g); err != nil {
		return errors.Wrap(err, "running shade job")
	}
	lg.Printf("done in %v", time.Since(start))
	return nil
}

func writeDOT(g *flow.Graph, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return g.WriteDOT(f)
}
