// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package kafka reads a topic as a bounded dataset. Every partition is
// consumed from its oldest retained offset up to the high-water mark
// observed when the Source is opened, so a job sees a fixed snapshot of the
// log and terminates.
package kafka

import (
	"bytes"
	"io"
	"io/ioutil"
	"log"
	"strings"

	"github.com/Shopify/sarama"
	"github.com/pilosa/canopy"
	"github.com/pilosa/canopy/file"
	"github.com/pkg/errors"
)

// Scheme is the URL scheme of kafka paths.
const Scheme = "kafka"

// ParseURL splits kafka://host1:9092,host2:9092/topic into hosts and topic.
func ParseURL(raw string) (hosts []string, topic string, err error) {
	rest := strings.TrimPrefix(raw, Scheme+"://")
	i := strings.Index(rest, "/")
	if rest == raw || i <= 0 {
		return nil, "", errors.Errorf("expected kafka://hosts/topic, got '%s'", raw)
	}
	topic = strings.Trim(rest[i+1:], "/")
	if topic == "" {
		return nil, "", errors.Errorf("no topic in '%s'", raw)
	}
	return strings.Split(rest[:i], ","), topic, nil
}

// offsetter is the part of sarama.Client the Source needs.
type offsetter interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partitionID int32, time int64) (int64, error)
}

type partition struct {
	id         int32
	start, end int64
}

// Source is a canopy.Source which emits a record with a single
// file.LineField per line of each message value.
type Source struct {
	Hosts []string
	Topic string

	client   sarama.Client
	consumer sarama.Consumer
	parts    []partition

	cur     sarama.PartitionConsumer
	curPart partition
	pending [][]byte
}

// NewSource gets a new Source.
func NewSource(hosts []string, topic string) *Source {
	return &Source{
		Hosts: hosts,
		Topic: topic,
	}
}

// Open connects to the cluster and snapshots the offsets to read.
func (s *Source) Open() error {
	sarama.Logger = log.New(ioutil.Discard, "", 0)
	config := sarama.NewConfig()
	config.Version = sarama.V0_10_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	client, err := sarama.NewClient(s.Hosts, config)
	if err != nil {
		return errors.Wrap(err, "getting new client")
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		client.Close()
		return errors.Wrap(err, "getting new consumer")
	}
	s.client = client
	return s.open(client, consumer)
}

func (s *Source) open(offsets offsetter, consumer sarama.Consumer) error {
	s.consumer = consumer
	ids, err := offsets.Partitions(s.Topic)
	if err != nil {
		return errors.Wrapf(err, "getting partitions of '%s'", s.Topic)
	}
	for _, id := range ids {
		start, err := offsets.GetOffset(s.Topic, id, sarama.OffsetOldest)
		if err != nil {
			return errors.Wrapf(err, "getting oldest offset of partition %d", id)
		}
		end, err := offsets.GetOffset(s.Topic, id, sarama.OffsetNewest)
		if err != nil {
			return errors.Wrapf(err, "getting newest offset of partition %d", id)
		}
		if end > start {
			s.parts = append(s.parts, partition{id: id, start: start, end: end})
		}
	}
	return nil
}

// Record implements canopy.Source.
func (s *Source) Record() (canopy.Record, error) {
	for {
		for len(s.pending) > 0 {
			line := s.pending[0]
			s.pending = s.pending[1:]
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			return canopy.NewRecord().MustSet(file.LineField, canopy.S(line)), nil
		}
		if s.cur == nil {
			if len(s.parts) == 0 {
				return canopy.Record{}, io.EOF
			}
			s.curPart, s.parts = s.parts[0], s.parts[1:]
			pc, err := s.consumer.ConsumePartition(s.Topic, s.curPart.id, s.curPart.start)
			if err != nil {
				return canopy.Record{}, errors.Wrapf(err, "consuming partition %d", s.curPart.id)
			}
			s.cur = pc
		}
		select {
		case msg, ok := <-s.cur.Messages():
			if !ok {
				return canopy.Record{}, errors.Errorf("partition %d closed before offset %d", s.curPart.id, s.curPart.end)
			}
			if msg.Offset >= s.curPart.end {
				if err := s.closePartition(); err != nil {
					return canopy.Record{}, err
				}
				continue
			}
			s.pending = bytes.Split(msg.Value, []byte("\n"))
			if msg.Offset+1 >= s.curPart.end {
				if err := s.closePartition(); err != nil {
					return canopy.Record{}, err
				}
			}
		case cerr, ok := <-s.cur.Errors():
			if ok {
				return canopy.Record{}, errors.Wrapf(cerr.Err, "reading partition %d", s.curPart.id)
			}
		}
	}
}

func (s *Source) closePartition() error {
	err := s.cur.Close()
	s.cur = nil
	return errors.Wrapf(err, "closing partition %d", s.curPart.id)
}

// Close closes the consumer and client.
func (s *Source) Close() error {
	if s.cur != nil {
		s.cur.Close()
	}
	err := s.consumer.Close()
	if s.client != nil {
		if cerr := s.client.Close(); err == nil {
			err = cerr
		}
	}
	return errors.Wrap(err, "closing kafka consumer")
}
