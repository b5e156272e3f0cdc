package termstat

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestCollector(t *testing.T) {
	out := &syncBuffer{}
	c := NewCollector(out, time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Count("stage.parse.in", 1, 1)
			}
		}()
	}
	wg.Wait()
	c.Count("sink.trees_out.dropped", 2, 1)
	c.Timing("stage.parse", 3*time.Second, 1)
	if got := c.Value("stage.parse.in"); got != 800 {
		t.Fatalf("got %d, expected 800", got)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}
	s := out.String()
	for _, want := range []string{"stage.parse.in: 800", "sink.trees_out.dropped: 2", "stage.parse: 3s"} {
		if !strings.Contains(s, want) {
			t.Fatalf("output %q missing %q", s, want)
		}
	}
}
