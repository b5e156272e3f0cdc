// Package tap opens the pipeline's datasets by path. Local paths name a file
// or a directory of part files; s3://bucket/prefix names every object under
// a prefix; kafka://hosts/topic names a topic, read up to its current end.
package tap

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/aws/s3"
	"github.com/pilosa/canopy/file"
	"github.com/pilosa/canopy/kafka"
	"github.com/pilosa/canopy/tsv"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const checkEvery = 4096

// Opener opens datasets.
type Opener struct {
	AWSRegion string
	// Splits is the number of pieces a single local file is read in
	// concurrently by Lines.
	Splits int
}

func scheme(path string) string {
	if i := strings.Index(path, "://"); i > 0 {
		return path[:i]
	}
	return ""
}

// raw gets a RawSource for a file or object path.
func (o Opener) raw(path string) (canopy.RawSource, error) {
	switch scheme(path) {
	case "":
		return file.NewRawSource(path)
	case s3.Scheme:
		bucket, prefix, err := s3.ParseURL(path)
		if err != nil {
			return nil, err
		}
		return s3.NewRawSource(o.AWSRegion, bucket, prefix)
	}
	return nil, errors.Errorf("unsupported path '%s'", path)
}

// Lines reads every line of the dataset at path as a record with a single
// file.LineField.
func (o Opener) Lines(ctx context.Context, path string) ([]canopy.Record, error) {
	if scheme(path) == kafka.Scheme {
		hosts, topic, err := kafka.ParseURL(path)
		if err != nil {
			return nil, err
		}
		src := kafka.NewSource(hosts, topic)
		if err := src.Open(); err != nil {
			return nil, errors.Wrapf(err, "opening %s", path)
		}
		recs, err := drain(ctx, src)
		if cerr := src.Close(); err == nil {
			err = cerr
		}
		return recs, errors.Wrapf(err, "reading %s", path)
	}
	if scheme(path) == "" && o.Splits > 1 {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			recs, err := o.splitLines(ctx, path)
			return recs, errors.Wrapf(err, "reading %s", path)
		}
	}
	rs, err := o.raw(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	recs, err := drain(ctx, file.NewLineSource(rs))
	return recs, errors.Wrapf(err, "reading %s", path)
}

// splitLines reads the fragments of a local file concurrently, keeping the
// file's line order.
func (o Opener) splitLines(ctx context.Context, path string) ([]canopy.Record, error) {
	frags, err := file.SplitLines(path, o.Splits)
	if err != nil {
		return nil, err
	}
	parts := make([][]canopy.Record, len(frags))
	eg, ctx := errgroup.WithContext(ctx)
	for i, fr := range frags {
		i, fr := i, fr
		eg.Go(func() (err error) {
			parts[i], err = drain(ctx, file.NewLineSource(fr.Source()))
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	ret := make([]canopy.Record, 0, n)
	for _, p := range parts {
		ret = append(ret, p...)
	}
	return ret, nil
}

// Table reads the tab delimited dataset at path according to schema.
func (o Opener) Table(ctx context.Context, path string, schema canopy.Schema) ([]canopy.Record, error) {
	rs, err := o.raw(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	recs, err := drain(ctx, tsv.NewSource(rs, schema))
	return recs, errors.Wrapf(err, "reading %s", path)
}

// Sink creates a tab delimited dataset at path. Only local paths can be
// written.
func (o Opener) Sink(path string, schema canopy.Schema) (*tsv.Writer, error) {
	if scheme(path) != "" {
		return nil, errors.Errorf("can't write to '%s', only local paths are writable", path)
	}
	f, err := file.Create(path)
	if err != nil {
		return nil, err
	}
	return tsv.NewWriter(f, schema), nil
}

func drain(ctx context.Context, src canopy.Source) ([]canopy.Record, error) {
	ret := make([]canopy.Record, 0)
	for i := 0; ; i++ {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := src.Record()
		if err == io.EOF {
			return ret, nil
		} else if err != nil {
			return nil, err
		}
		ret = append(ret, rec)
	}
}
