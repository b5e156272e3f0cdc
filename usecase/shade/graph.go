package shade

import (
	"fmt"

	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/albedo"
	"github.com/pilosa/canopy/extract"
	"github.com/pilosa/canopy/file"
	"github.com/pilosa/canopy/flow"
	"github.com/pilosa/canopy/geo"
	"github.com/pilosa/canopy/geohash"
	"github.com/pilosa/canopy/join"
	"github.com/pkg/errors"
)

// Datasets are the inputs and outputs of the job.
type Datasets struct {
	GIS      flow.Loader
	MetaTree flow.Loader
	MetaRoad flow.Loader
	GPS      flow.Loader

	Trap   flow.SinkOpener
	Parsed flow.SinkOpener
	Trees  flow.SinkOpener
	Roads  flow.SinkOpener
	Parks  flow.SinkOpener
	Shade  flow.SinkOpener
	Reco   flow.SinkOpener
}

// Options tune the job.
type Options struct {
	GeohashPrecision int
	AlbedoYear       int64
	MaxTreeDistance  float64
	Distance         geo.Strategy
	MaxHashRows      int
	// Grouper is used for the spatial co-group. Nil groups in memory.
	Grouper join.Grouper
	Stats   canopy.Statter
}

// Stages which send failing records to the trap.
var trapped = []string{
	"gis_parse",
	"tree_parse", "tree_species", "tree_geo", "tree_hash",
	"road_parse", "road_segments", "road_hash",
}

// Graph describes the job.
func Graph(d Datasets, o Options) (*flow.Graph, error) {
	stats := o.Stats
	if stats == nil {
		stats = canopy.NopStatter{}
	}
	hasher := func(lat, lng, result string) geohash.Transformer {
		return geohash.Transformer{Precision: o.GeohashPrecision, LatField: lat, LngField: lng, ResultField: result}
	}
	b := flow.NewBuilder()

	b.Source("gis", d.GIS).
		Each("gis_parse", "gis", extract.Parser{Field: file.LineField, Pattern: gisPattern, OnMismatch: extract.Trap}).
		Checkpoint("parsed", "gis_parse", ParsedSchema).
		Sink("parsed_out", "parsed", ParsedSchema, d.Parsed)

	// trees
	b.Source("meta_tree", d.MetaTree).
		Each("meta_tree_key", "meta_tree", extract.Normalize{From: "species", To: "species_key"}).
		Each("tree_filter", "parsed", extract.Filter{Field: "misc", Pattern: treePattern}).
		Each("tree_parse", "tree_filter", extract.Parser{Field: "misc", Pattern: treePattern, OnMismatch: extract.Trap}).
		Each("tree_species", "tree_parse", extract.Parser{Field: "raw_species", Pattern: speciesPattern, OnMismatch: extract.Trap}).
		Each("tree_key", "tree_species", extract.Normalize{From: "scrub_species", To: "tree_species"}).
		Each("tree_geo", "tree_key", extract.Parser{Field: "geo", Pattern: pointPattern, OnMismatch: extract.Trap}).
		Join("tree_meta", "tree_geo", "meta_tree_key", join.HashJoin{LeftKey: "tree_species", RightKey: "species_key"}).
		Each("tree_height", "tree_meta", canopy.OperationFunc(avgHeight)).
		Each("tree_hash", "tree_height", hasher("tree_lat", "tree_lng", "tree_geohash")).
		Retain("trees", "tree_hash", append(TreeSchema.Names(), "avg_height", "tree_lat", "tree_lng", "tree_geohash")...).
		Sink("trees_out", "trees", TreeSchema, d.Trees)

	// roads
	b.Source("meta_road", d.MetaRoad).
		Each("meta_road_key", "meta_road", extract.Normalize{From: "pavement_type", To: "pavement_key"}).
		Each("road_filter", "parsed", extract.Filter{Field: "misc", Pattern: roadPattern}).
		Each("road_parse", "road_filter", extract.Parser{Field: "misc", Pattern: roadPattern, OnMismatch: extract.Trap}).
		Each("road_key", "road_parse", extract.Normalize{From: "surface_type", To: "surface_key"}).
		Join("road_meta", "road_key", "meta_road_key", join.HashJoin{LeftKey: "surface_key", RightKey: "pavement_key"}).
		Each("road_albedo", "road_meta", albedo.NewEstimator(o.AlbedoYear)).
		Retain("roads", "road_albedo", append(RoadSchema.Names(), "albedo")...).
		Sink("roads_out", "roads", RoadSchema, d.Roads).
		Each("road_segments", "roads", geo.Segmenter{GeoField: "geo"}).
		Each("road_hash", "road_segments", hasher(geo.FieldLatMid, geo.FieldLngMid, "road_geohash"))

	// parks
	b.Each("park_filter", "parsed", extract.Filter{Field: "misc", Pattern: parkPattern}).
		Retain("parks", "park_filter", ParkSchema.Names()...).
		Sink("parks_out", "parks", ParkSchema, d.Parks)

	// trees near roads
	b.Each("shade_roads", "road_hash", canopy.Rename{"blurb": "road_name", "geo": "road_geo"}).
		Each("shade_trees", "trees", canopy.Rename{"blurb": "tree_name", "geo": "tree_geo"}).
		Join("shade_join", "shade_roads", "shade_trees", join.CoGroup{LeftKey: "road_geohash", RightKey: "tree_geohash", Grouper: o.Grouper}).
		Each("shade_dist", "shade_join", geo.DistanceOp{
			Strategy:    o.Distance,
			LatField:    "tree_lat",
			LngField:    "tree_lng",
			ResultField: "tree_dist",
			Stats:       stats,
		}).
		Each("shade_near", "shade_dist", canopy.Filter{Predicate: canopy.FloatAtMost{Field: "tree_dist", Max: o.MaxTreeDistance}}).
		Retain("shade_fields", "shade_near", ShadeSchema.Names()...).
		Checkpoint("shade", "shade_fields", ShadeSchema).
		Sink("shade_out", "shade", ShadeSchema, d.Shade)

	// recommendations along GPS tracks
	b.Source("gps", d.GPS).
		Each("gps_parse", "gps", gpsParser{pattern: gpsPattern, stats: stats}).
		Each("gps_hash", "gps_parse", hasher("gps_lat", "gps_lng", "gps_geohash")).
		Join("reco_join", "gps_hash", "shade", join.Auto{LeftKey: "gps_geohash", RightKey: "road_geohash", MaxHashRows: o.MaxHashRows, Grouper: o.Grouper}).
		Retain("reco", "reco_join", RecoSchema.Names()...).
		Sink("reco_out", "reco", RecoSchema, d.Reco)

	b.Trap("trap_out", flow.TrapSchema, formatTrap, d.Trap, trapped...)

	g, err := b.Build()
	return g, errors.Wrap(err, "building shade graph")
}

// avgHeight appends the mean of a tree's height range.
func avgHeight(rec canopy.Record, emit func(canopy.Record)) error {
	lo, err := rec.Float("min_height")
	if err != nil {
		return errors.Wrap(err, "getting min height")
	}
	hi, err := rec.Float("max_height")
	if err != nil {
		return errors.Wrap(err, "getting max height")
	}
	out, err := rec.Set("avg_height", canopy.F64((lo+hi)/2))
	if err != nil {
		return err
	}
	emit(out)
	return nil
}

// gpsParser extracts the position from a GPS log line. Lines which don't
// parse, or which aren't on the globe, are dropped and counted.
type gpsParser struct {
	pattern *extract.Pattern
	stats   canopy.Statter
}

// Operate implements canopy.Operation.
func (g gpsParser) Operate(rec canopy.Record, emit func(canopy.Record)) error {
	line, err := rec.String(file.LineField)
	if err != nil {
		return errors.Wrap(err, "getting gps line")
	}
	ext, err := g.pattern.Extract(line)
	if err != nil {
		g.stats.Count("gps.unparsed", 1, 1)
		return nil
	}
	lat, err := ext.Float("gps_lat")
	if err != nil {
		return errors.Wrap(err, "getting gps latitude")
	}
	lng, err := ext.Float("gps_lng")
	if err != nil {
		return errors.Wrap(err, "getting gps longitude")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		g.stats.Count("gps.unparsed", 1, 1)
		return nil
	}
	emit(ext)
	return nil
}

// formatTrap records the GIS line a failed record came from. Records past
// the parse have lost the line, so it is rebuilt from the four quoted fields.
func formatTrap(stage string, rec canopy.Record, err error) canopy.Record {
	line, lerr := rec.String(file.LineField)
	if lerr != nil {
		var parts [4]string
		for i, name := range ParsedSchema.Names() {
			parts[i], _ = rec.String(name)
		}
		line = fmt.Sprintf(`"%s","%s","%s","%s"`, parts[0], parts[1], parts[2], parts[3])
	}
	return canopy.NewRecord().
		MustSet(flow.TrapStage, canopy.S(stage)).
		MustSet(flow.TrapReason, canopy.S(errors.Cause(err).Error())).
		MustSet(flow.TrapLine, canopy.S(line))
}
