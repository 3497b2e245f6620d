package reading

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Domain names a measured quantity. A Store keeps one last-known value per domain.
type Domain string

const (
	Temperature Domain = "temperature"
	Humidity    Domain = "humidity"
	HeartRate   Domain = "heart_rate"
	Battery     Domain = "battery"
	RSSI        Domain = "rssi"
)

// NoData is the display text of a domain that has not been received yet.
const NoData = "--"

// Reading is a decoded value for a single domain.
type Reading struct {
	Domain Domain    `json:"domain"`
	Value  float64   `json:"value"`
	Text   string    `json:"text"`
	Unit   string    `json:"unit,omitempty"`
	At     time.Time `json:"at"`
}

// String returns the human readable text of the reading.
func (r Reading) String() string {
	if r.Text == "" {
		return NoData
	}
	return r.Text
}

// Store holds the last-known reading per domain. Domains keep the order in
// which they were first declared or set; there is no history.
type Store struct {
	mu       sync.RWMutex
	values   *orderedmap.OrderedMap[Domain, *Reading]
	subs     map[int]func(Reading)
	nextSub  int
	received bool
}

// NewStore creates a store with the given domains pre-declared as "no data".
func NewStore(domains ...Domain) *Store {
	s := &Store{
		values: orderedmap.New[Domain, *Reading](),
		subs:   make(map[int]func(Reading)),
	}
	for _, d := range domains {
		s.values.Set(d, nil)
	}
	return s
}

// Declare adds domains to the store without a value. Existing values are kept.
func (s *Store) Declare(domains ...Domain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range domains {
		if _, ok := s.values.Get(d); !ok {
			s.values.Set(d, nil)
		}
	}
}

// Set replaces the last-known value of r.Domain and notifies subscribers.
func (s *Store) Set(r Reading) {
	if r.At.IsZero() {
		r.At = time.Now()
	}

	s.mu.Lock()
	stored := r
	s.values.Set(r.Domain, &stored)
	s.received = true
	subs := make([]func(Reading), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(r)
	}
}

// Get returns the last-known value of d.
func (s *Store) Get(d Domain) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.values.Get(d)
	if !ok || r == nil {
		return Reading{Domain: d}, false
	}
	return *r, true
}

// HasData reports whether any reading was set since the last Reset.
func (s *Store) HasData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.received
}

// Snapshot returns the readings that hold a value, in domain order.
func (s *Store) Snapshot() []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reading, 0, s.values.Len())
	for pair := s.values.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value != nil {
			out = append(out, *pair.Value)
		}
	}
	return out
}

// Reset clears every value back to "no data". Declared domains are kept.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pair := s.values.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value = nil
	}
	s.received = false
}

// Summary renders a one-line status: "temperature: 20.37 °C | rssi: -60 dBm".
func (s *Store) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parts := make([]string, 0, s.values.Len())
	for pair := s.values.Oldest(); pair != nil; pair = pair.Next() {
		text := NoData
		if pair.Value != nil {
			text = pair.Value.String()
		}
		parts = append(parts, string(pair.Key)+": "+text)
	}
	return strings.Join(parts, " | ")
}

// Subscribe registers fn to be called on every Set. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(Reading)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// MarshalJSON encodes the values as an object keyed by domain, in domain
// order. Domains without data are omitted.
func (s *Store) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for pair := s.values.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value == nil {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(string(pair.Key))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(pair.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
