package shade

import (
	"context"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/extract"
	"github.com/pilosa/canopy/file"
	"github.com/pilosa/canopy/flow"
	"github.com/pilosa/canopy/geo"
	"github.com/pilosa/canopy/leveldb"
	"github.com/pilosa/canopy/mock"
	"github.com/pkg/errors"
)

const (
	treeLine      = `"123 Main","  Private: Y  Tree ID: 5 Tree Type: street Situs Number: 10 Tree Site: 2 Species: Coast Live Oak / Quercus agrifolia Source: survey","-122.1495,37.4001,0","tree"`
	overflowLine  = `"125 Main","  Private: N  Tree ID: 99999999999999999999 Tree Type: street Situs Number: 12 Tree Site: 1 Species: Coast Live Oak Source: survey","-122.1496,37.4001,0","tree"`
	malformedLine = `"1 Elm St","  Private: Y  Tree ID: 6,"-122.1,37.4,0","tree"`
	roadLine      = `"Main St","  Sequence: 1 Year Constructed: 2005 Traffic Count: 1200 Traffic Index: Low Volume Traffic Class: local road Traffic Date: 2001 Paving Length: 100 Paving Width: 30 Paving Area: 3000 Surface Type: Asphalt Concrete Surface Thickness: 5 Bike Lane: N Bus Route: Y Truck Route: N Remediation: none","-122.1500,37.4000,0 -122.1490,37.4000,0 -122.1480,37.4000,0","road"`
	parkLine      = `"Rengstorff","  Community Type: Park Acres: 12","-122.1,37.4,0","park"`
)

var gisLines = []string{treeLine, overflowLine, malformedLine, roadLine, parkLine}

const metaTree = "species\twikipedia\tcalflora\tmin_height\tmax_height\n" +
	"Coast Live Oak\thttp://en.wikipedia.org/wiki/Quercus_agrifolia\thttp://calflora.org/cgi-bin/species_query.cgi?where-taxon=Quercus+agrifolia\t6\t22\n" +
	"Valley Oak\thttp://en.wikipedia.org/wiki/Quercus_lobata\thttp://calflora.org/cgi-bin/species_query.cgi?where-taxon=Quercus+lobata\t15\t35\n"

const metaRoad = "pavement_type\talbedo_new\talbedo_worn\n" +
	"asphalt concrete\t0.05\t0.1\n" +
	"concrete\t0.35\t0.2\n"

var gpsLines = []string{"37.40005,-122.1495,morning ride", "not a fix", "91.0,-122.1"}

func TestTreeScenario(t *testing.T) {
	gis, err := gisPattern.Extract(`"123 Main","Private: Y  Tree ID: 5 ... Situs Number: 10 Tree Site: 2 Species: Coast Live Oak Source: x","-122.1,37.4,10","tree"`)
	if err != nil {
		t.Fatalf("extracting gis fields: %v", err)
	}
	misc, _ := gis.String("misc")
	rec, err := treePattern.Extract(misc)
	if err != nil {
		t.Fatalf("extracting tree fields: %v", err)
	}
	for name, exp := range map[string]int64{"tree_id": 5, "situs": 10, "tree_site": 2} {
		if v, err := rec.Int(name); err != nil || v != exp {
			t.Fatalf("%s: got %v, %v, expected %d", name, v, err, exp)
		}
	}
	if s, _ := rec.String("raw_species"); s != "Coast Live Oak" {
		t.Fatalf("got raw_species %q", s)
	}
}

func TestPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern *extract.Pattern
		text    string
		match   bool
	}{
		{name: "gis", pattern: gisPattern, text: treeLine, match: true},
		{name: "gis missing quote", pattern: gisPattern, text: malformedLine},
		{name: "road", pattern: roadPattern, text: strings.Split(roadLine, `","`)[1], match: true},
		{name: "tree is not road", pattern: roadPattern, text: strings.Split(treeLine, `","`)[1]},
		{name: "park", pattern: parkPattern, text: "  Community Type: Park Acres: 12", match: true},
		{name: "school is not park", pattern: parkPattern, text: "  Community Type: School"},
		{name: "gps", pattern: gpsPattern, text: "37.4, -122.1", match: true},
		{name: "gps junk", pattern: gpsPattern, text: "37.4;-122.1"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.pattern.Match(test.text); got != test.match {
				t.Fatalf("got %v, expected %v", got, test.match)
			}
		})
	}
}

func TestFormatTrap(t *testing.T) {
	parsed, err := gisPattern.Extract(treeLine)
	if err != nil {
		t.Fatalf("extracting: %v", err)
	}
	rec := formatTrap("tree_parse", parsed, extract.ErrNoMatch)
	if line, _ := rec.String(flow.TrapLine); line != treeLine {
		t.Fatalf("got line %q, expected %q", line, treeLine)
	}
	raw := canopy.NewRecord().MustSet(file.LineField, canopy.S(malformedLine))
	rec = formatTrap("gis_parse", raw, extract.ErrNoMatch)
	if line, _ := rec.String(flow.TrapLine); line != malformedLine {
		t.Fatalf("got line %q, expected %q", line, malformedLine)
	}
	if reason, _ := rec.String(flow.TrapReason); reason != string(extract.ErrNoMatch) {
		t.Fatalf("got reason %q", reason)
	}
}

func lineRecords(lines []string) []canopy.Record {
	ret := make([]canopy.Record, len(lines))
	for i, l := range lines {
		ret[i] = canopy.NewRecord().MustSet(file.LineField, canopy.S(l))
	}
	return ret
}

func loadRecords(recs []canopy.Record) flow.Loader {
	return func(context.Context) ([]canopy.Record, error) { return recs, nil }
}

type sinks struct {
	trap, parsed, trees, roads, parks, shade, reco mock.Sink
}

func memDatasets(t *testing.T, s *sinks) Datasets {
	t.Helper()
	metaTrees := []canopy.Record{
		canopy.NewRecord().MustSet("species", canopy.S("Coast Live Oak")).
			MustSet("wikipedia", canopy.S("w")).MustSet("calflora", canopy.S("c")).
			MustSet("min_height", canopy.F64(6)).MustSet("max_height", canopy.F64(22)),
	}
	metaRoads := []canopy.Record{
		canopy.NewRecord().MustSet("pavement_type", canopy.S("Asphalt Concrete ")).
			MustSet("albedo_new", canopy.F64(0.05)).MustSet("albedo_worn", canopy.F64(0.1)),
	}
	return Datasets{
		GIS:      loadRecords(lineRecords(gisLines)),
		MetaTree: loadRecords(metaTrees),
		MetaRoad: loadRecords(metaRoads),
		GPS:      loadRecords(lineRecords(gpsLines)),
		Trap:     s.trap.Opener(),
		Parsed:   s.parsed.Opener(),
		Trees:    s.trees.Opener(),
		Roads:    s.roads.Opener(),
		Parks:    s.parks.Opener(),
		Shade:    s.shade.Opener(),
		Reco:     s.reco.Opener(),
	}
}

func TestGraph(t *testing.T) {
	s := &sinks{}
	stats := &mock.RecordingStatter{}
	g, err := Graph(memDatasets(t, s), Options{
		GeohashPrecision: 6,
		AlbedoYear:       2002,
		MaxTreeDistance:  25,
		Distance:         geo.Midpoint{MetersPerDegree: geo.DefaultMetersPerDegree},
		MaxHashRows:      10,
		Stats:            stats,
	})
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}
	sched := &flow.Scheduler{Concurrency: 2, Stats: stats}
	if err := sched.Run(context.Background(), g); err != nil {
		t.Fatalf("running: %v", err)
	}

	counts := map[string]int{
		"parsed": len(s.parsed.Records()),
		"trees":  len(s.trees.Records()),
		"roads":  len(s.roads.Records()),
		"parks":  len(s.parks.Records()),
		"shade":  len(s.shade.Records()),
		"reco":   len(s.reco.Records()),
		"trap":   len(s.trap.Records()),
	}
	exp := map[string]int{"parsed": 4, "trees": 1, "roads": 1, "parks": 1, "shade": 1, "reco": 1, "trap": 2}
	for name, n := range exp {
		if counts[name] != n {
			t.Fatalf("%s: got %d records, expected %d (all: %v)", name, counts[name], n, counts)
		}
	}

	lines := make(map[string]string)
	for _, rec := range s.trap.Records() {
		stage, _ := rec.String(flow.TrapStage)
		lines[stage], _ = rec.String(flow.TrapLine)
	}
	if lines["gis_parse"] != malformedLine {
		t.Fatalf("gis_parse trapped %q", lines["gis_parse"])
	}
	if lines["tree_parse"] != overflowLine {
		t.Fatalf("tree_parse trapped %q", lines["tree_parse"])
	}

	tree := s.trees.Records()[0]
	if sp, _ := tree.String("species"); sp != "Coast Live Oak" {
		t.Fatalf("got species %q", sp)
	}
	road := s.roads.Records()[0]
	if a, _ := road.Float("albedo"); a != 0.05 {
		t.Fatalf("got albedo %v, expected 0.05", a)
	}

	shade := s.shade.Records()[0]
	if d, _ := shade.Float("tree_dist"); math.Abs(d-0.0001*geo.DefaultMetersPerDegree) > 1e-6 {
		t.Fatalf("got tree_dist %v", d)
	}
	if h, _ := shade.Float("avg_height"); h != 14 {
		t.Fatalf("got avg_height %v, expected 14", h)
	}
	if name, _ := shade.String("road_name"); name != "Main St" {
		t.Fatalf("got road_name %q", name)
	}

	reco := s.reco.Records()[0]
	if name, _ := reco.String("tree_name"); name != "123 Main" {
		t.Fatalf("got tree_name %q", name)
	}
	if n := stats.Get("gps.unparsed"); n != 2 {
		t.Fatalf("got %d unparsed gps lines, expected 2", n)
	}
	if n := stats.Get("stage.shade_near.in"); n != 2 {
		t.Fatalf("got %d tree/segment pairs, expected 2", n)
	}
}

func TestGPSParser(t *testing.T) {
	line := func(s string) canopy.Record { return canopy.NewRecord().MustSet(file.LineField, canopy.S(s)) }
	stats := &mock.RecordingStatter{}
	p := gpsParser{pattern: gpsPattern, stats: stats}
	var got []canopy.Record
	emit := func(rec canopy.Record) { got = append(got, rec) }
	for _, s := range []string{"37.4001,-122.1490,walk", "91,10", "12,-181", "not a fix"} {
		if err := p.Operate(line(s), emit); err != nil {
			t.Fatalf("parsing %q: %v", s, err)
		}
	}
	if len(got) != 1 {
		t.Fatalf("got %d positions, expected 1", len(got))
	}
	if lat, err := got[0].Float("gps_lat"); err != nil || lat != 37.4001 {
		t.Fatalf("got latitude %v, %v", lat, err)
	}
	if n := stats.Get("gps.unparsed"); n != 3 {
		t.Fatalf("got %d unparsed, expected 3", n)
	}

	// an untyped pattern leaves the coordinates as strings
	untyped := gpsParser{pattern: extract.MustCompile(`^(?P<gps_lat>\S+),(?P<gps_lng>\S+)$`, nil), stats: stats}
	err := untyped.Operate(line("1,2"), emit)
	if errors.Cause(err) != canopy.ErrWrongType {
		t.Fatalf("got %v, expected %v", err, canopy.ErrWrongType)
	}
}

func TestSetPaths(t *testing.T) {
	m := NewMain()
	if err := m.SetPaths([]string{"a", "b"}); err == nil {
		t.Fatalf("expected error for too few paths")
	}
	args := strings.Fields("gis mt mr gps trap parsed trees roads parks shade reco")
	if err := m.SetPaths(args); err != nil {
		t.Fatalf("setting paths: %v", err)
	}
	if m.GIS != "gis" || m.Reco != "reco" || m.Parks != "parks" {
		t.Fatalf("paths set wrong: %+v", m)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// sortedLines returns the header and the sorted rows of a tab delimited
// output.
func sortedLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	sort.Strings(lines[1:])
	return lines
}

func newTestMain(t *testing.T) (*Main, string) {
	t.Helper()
	dir, err := ioutil.TempDir("", "shade")
	if err != nil {
		t.Fatalf("getting temp dir: %v", err)
	}
	in := filepath.Join(dir, "in")
	if err := os.Mkdir(in, 0755); err != nil {
		t.Fatalf("making input dir: %v", err)
	}
	writeFile(t, filepath.Join(in, "gis.txt"), strings.Join(gisLines, "\n")+"\n")
	writeFile(t, filepath.Join(in, "meta_tree.tsv"), metaTree)
	writeFile(t, filepath.Join(in, "meta_road.tsv"), metaRoad)
	writeFile(t, filepath.Join(in, "gps.txt"), strings.Join(gpsLines, "\n")+"\n")

	m := NewMain()
	m.Stderr = ioutil.Discard
	m.Concurrency = 2
	m.CheckpointDir = filepath.Join(dir, "checkpoints")
	m.DOT = filepath.Join(dir, "shade.dot")
	out := filepath.Join(dir, "out")
	args := []string{
		filepath.Join(in, "gis.txt"),
		filepath.Join(in, "meta_tree.tsv"),
		filepath.Join(in, "meta_road.tsv"),
		filepath.Join(in, "gps.txt"),
	}
	for _, name := range []string{"trap", "parsed", "trees", "roads", "parks", "shade", "reco"} {
		args = append(args, filepath.Join(out, name+".tsv"))
	}
	if err := m.SetPaths(args); err != nil {
		t.Fatalf("setting paths: %v", err)
	}
	return m, dir
}

func TestRun(t *testing.T) {
	m, dir := newTestMain(t)
	defer os.RemoveAll(dir)
	m.SpillDir = filepath.Join(dir, "spill")
	m.DistanceStrategy = geo.StrategySegment
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("running: %v", err)
	}

	shade := sortedLines(t, m.Shade)
	if shade[0] != strings.Join(ShadeSchema.Names(), "\t") {
		t.Fatalf("unexpected shade header %q", shade[0])
	}
	if len(shade) != 2 {
		t.Fatalf("got shade rows %v", shade)
	}
	trees := sortedLines(t, m.Trees)
	if len(trees) != 2 || !strings.HasPrefix(trees[1], "123 Main\t-122.1495,37.4001,0\tY\t5\t10\t2\tCoast Live Oak\t") {
		t.Fatalf("got trees %v", trees)
	}
	trap := sortedLines(t, m.Trap)
	if len(trap) != 3 {
		t.Fatalf("got trap rows %v", trap)
	}
	reco := sortedLines(t, m.Reco)
	if len(reco) != 2 {
		t.Fatalf("got reco rows %v", reco)
	}
	// the co-groups spilled under SpillDir and cleaned up after themselves
	spilled, err := ioutil.ReadDir(m.SpillDir)
	if err != nil {
		t.Fatalf("reading spill dir: %v", err)
	}
	if len(spilled) != 0 {
		t.Fatalf("spill dir should be empty after the run, got %d entries", len(spilled))
	}
	dot, err := ioutil.ReadFile(m.DOT)
	if err != nil || !strings.Contains(string(dot), "digraph") {
		t.Fatalf("dot file: %v, %s", err, dot)
	}
}

func TestOptionsGrouper(t *testing.T) {
	m := NewMain()
	o, err := m.options(canopy.NopStatter{})
	if err != nil {
		t.Fatalf("getting options: %v", err)
	}
	if o.Grouper != nil {
		t.Fatalf("got grouper %#v without a spill dir, expected nil", o.Grouper)
	}
	m.SpillDir = "/tmp/spill"
	o, err = m.options(canopy.NopStatter{})
	if err != nil {
		t.Fatalf("getting options: %v", err)
	}
	if g, ok := o.Grouper.(*leveldb.Grouper); !ok || g.Dir != "/tmp/spill" {
		t.Fatalf("got grouper %#v, expected leveldb grouper in /tmp/spill", o.Grouper)
	}
}

func TestResume(t *testing.T) {
	m, dir := newTestMain(t)
	defer os.RemoveAll(dir)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("running: %v", err)
	}
	outputs := []string{m.Trap, m.Parsed, m.Trees, m.Roads, m.Parks, m.Shade, m.Reco}
	first := make(map[string][]string)
	for _, path := range outputs {
		first[path] = sortedLines(t, path)
	}

	// everything derived from the GIS dump resumes from checkpoints
	if err := os.Remove(m.GIS); err != nil {
		t.Fatalf("removing gis input: %v", err)
	}
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("resuming: %v", err)
	}
	for _, path := range outputs {
		got := sortedLines(t, path)
		if strings.Join(got, "\n") != strings.Join(first[path], "\n") {
			t.Fatalf("%s changed on resume:\n%v\n%v", filepath.Base(path), got, first[path])
		}
	}

	// starting fresh needs the input again
	m.Fresh = true
	if err := m.Run(context.Background()); err == nil {
		t.Fatalf("expected error running fresh without the gis input")
	}
}
