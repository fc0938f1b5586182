package fallback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Babyfoon/internal/core"
	"github.com/dkeye/Babyfoon/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func noTicks(time.Duration) (<-chan time.Time, func()) { return nil, func() {} }

type fakeMic struct {
	mu        sync.Mutex
	acquired  bool
	released  bool
	started   int
	failStart map[int]bool // by attempt number
	panicStop bool
}

type fakeSegment struct {
	mic *fakeMic
	n   int
}

func (m *fakeMic) Acquire(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquired = true
	return nil
}

func (m *fakeMic) StartSegment(_ context.Context, onMeter func(float64)) (core.Segment, error) {
	m.mu.Lock()
	m.started++
	n := m.started
	fail := m.failStart[n]
	m.mu.Unlock()
	if fail {
		return nil, errors.New("device busy")
	}
	if onMeter != nil {
		onMeter(-20)
	}
	return &fakeSegment{mic: m, n: n}, nil
}

func (m *fakeMic) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = true
	return nil
}

func (m *fakeMic) Started() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *fakeMic) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

func (s *fakeSegment) Stop() ([]byte, string, error) {
	if s.mic.panicStop {
		panic("recorder crashed")
	}
	return []byte(fmt.Sprintf("seg-%d", s.n)), domain.MimeWAV, nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failOn  string // payload that fails to upload
	puts    int
	block   chan struct{} // Put waits on it when set
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if string(data) == s.failOn {
		return errors.New("network down")
	}
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *fakeStore) Latest(_ context.Context, prefix string) (core.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return core.ObjectInfo{}, domain.ErrStreamNotFound
	}
	sort.Strings(keys)
	k := keys[len(keys)-1]
	return core.ObjectInfo{Key: k, Size: int64(len(s.objects[k]))}, nil
}

func (s *fakeStore) PublicURL(_ context.Context, key string) (string, error) {
	return "mem://" + key, nil
}

func (s *fakeStore) Payloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, string(s.objects[k]))
	}
	return out
}

func (s *fakeStore) Delete(key string) {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
}

type fakePlayer struct {
	mu      sync.Mutex
	played  []string
	stopped bool
}

func (p *fakePlayer) Play(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, url)
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return nil
}

func (p *fakePlayer) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}
