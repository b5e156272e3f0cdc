// Package canopy turns municipal GIS text dumps and GPS logs into a dataset
// of road segments shaded by nearby trees.
//
// The work is a batch job laid out as a graph of stages. The root package
// holds what every stage shares: the typed Record, the Schema a dataset is
// declared with, and the Operation, Source and Sink interfaces. Everything
// else lives in sub-packages:
//
// 1. extract
//
//    Anchored regular expressions with named groups pull typed fields out of
//    free text. Lines which don't have the right outer shape are either
//    filtered (they belong to some other category) or trapped (they're
//    malformed). A value which matched syntactically but won't convert to its
//    declared type is trapped too, rather than failing the job.
//
// 2. geohash, geo, albedo
//
//    Per-record math. Road polylines become segments with midpoints and
//    slope/intercept (vertical segments are flagged, never divided by zero),
//    points become geohash buckets, and road surfaces get an albedo from their
//    construction year.
//
// 3. join
//
//    Inner joins. A hash join materializes the small side (reference tables)
//    in memory; a co-group groups both sides by key, optionally spilling to
//    leveldb, and emits the per-key cross product. Geohash buckets turn the
//    tree/road proximity search into an equi-join, at the cost of missing pairs
//    which straddle a bucket edge.
//
// 4. checkpoint, flow
//
//    The flow package validates the stage graph and runs it, stage by stage,
//    each as soon as its upstreams are done. Checkpoints are written
//    atomically and recorded in a bolt catalog; on the next run a complete
//    checkpoint is read back and everything upstream of it is skipped.
//
// The job itself is assembled in usecase/shade and exposed on the command
// line by cmd.
package canopy
