// Package datadog sends pipeline stats to a dogstatsd agent.
package datadog

import (
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/pilosa/canopy"
	"github.com/pkg/errors"
)

// Prefix is prepended to every stat name.
const Prefix = "canopy."

// client is the subset of *statsd.Client used here.
type client interface {
	Count(name string, value int64, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Close() error
}

var _ canopy.Statter = &Statter{}

// Statter is a canopy.Statter backed by a dogstatsd client. Send errors are
// logged, never returned; stats are best effort.
type Statter struct {
	c    client
	tags []string
	log  canopy.Logger
}

// New gets a Statter which sends to the agent at addr (host:port), adding
// tags to every stat.
func New(addr string, log canopy.Logger, tags ...string) (*Statter, error) {
	c, err := statsd.New(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "creating statsd client for %s", addr)
	}
	return newStatter(c, log, tags), nil
}

func newStatter(c client, log canopy.Logger, tags []string) *Statter {
	if log == nil {
		log = canopy.NopLogger{}
	}
	return &Statter{c: c, tags: tags, log: log}
}

func (s *Statter) merge(tags []string) []string {
	if len(tags) == 0 {
		return s.tags
	}
	return append(append(make([]string, 0, len(s.tags)+len(tags)), s.tags...), tags...)
}

func (s *Statter) check(name string, err error) {
	if err != nil {
		s.log.Debugf("sending stat %s: %v", name, err)
	}
}

// Count implements canopy.Statter.
func (s *Statter) Count(name string, value int64, rate float64, tags ...string) {
	s.check(name, s.c.Count(Prefix+name, value, s.merge(tags), rate))
}

// Timing implements canopy.Statter.
func (s *Statter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	s.check(name, s.c.Timing(Prefix+name, value, s.merge(tags), rate))
}

// Close flushes and closes the client.
func (s *Statter) Close() error {
	return errors.Wrap(s.c.Close(), "closing statsd client")
}
