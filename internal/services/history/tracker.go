package history

import (
	"sort"
	"sync"
	"time"

	"ProbDesk/internal/domain/models"
	"ProbDesk/internal/domain/repository"
)

// Tracker is an arena of independent bounded series keyed by market id.
// The map lock only guards series lookup; appends lock a single series.
type Tracker struct {
	maxPoints int
	maxSpan   time.Duration

	mu     sync.RWMutex
	series map[string]*series
}

type series struct {
	mu       sync.Mutex
	question string
	points   []models.ProbabilityHistoryPoint
}

type Option func(*Tracker)

// WithMaxPoints bounds each series by count. 0 disables the bound.
func WithMaxPoints(n int) Option {
	return func(t *Tracker) {
		if n >= 0 {
			t.maxPoints = n
		}
	}
}

// WithMaxSpan bounds each series by time measured back from its newest point.
func WithMaxSpan(d time.Duration) Option {
	return func(t *Tracker) {
		if d >= 0 {
			t.maxSpan = d
		}
	}
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		maxPoints: 500,
		series:    make(map[string]*series),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) getOrCreate(marketID string) *series {
	t.mu.RLock()
	s, ok := t.series[marketID]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.series[marketID]; !ok {
		s = &series{}
		t.series[marketID] = s
	}
	return s
}

// Append insertion-sorts the point; an equal timestamp overwrites.
func (t *Tracker) Append(marketID string, point models.ProbabilityHistoryPoint) {
	if marketID == "" {
		return
	}
	s := t.getOrCreate(marketID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(point)
	s.trim(t.maxPoints, t.maxSpan)
}

// Record appends a snapshot and keeps the latest market question.
func (t *Tracker) Record(snap models.ProbabilitySnapshot) {
	if snap.MarketID == "" {
		return
	}
	s := t.getOrCreate(snap.MarketID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.MarketQuestion != "" {
		s.question = snap.MarketQuestion
	}
	s.insert(models.PointFromSnapshot(snap))
	s.trim(t.maxPoints, t.maxSpan)
}

// Get returns a copy of the series filtered to tf, measured back from the newest point.
func (t *Tracker) Get(marketID string, tf repository.Timeframe) (models.MarketProbabilityHistory, bool) {
	t.mu.RLock()
	s, ok := t.series[marketID]
	t.mu.RUnlock()

	out := models.MarketProbabilityHistory{
		MarketID:  marketID,
		Timeframe: string(tf),
		Points:    []models.ProbabilityHistoryPoint{},
	}
	if !ok {
		return out, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out.MarketQuestion = s.question
	if len(s.points) == 0 {
		return out, false
	}

	start := 0
	if w := tf.Window(); w > 0 {
		cutoff := s.points[len(s.points)-1].Timestamp.Add(-w)
		start = sort.Search(len(s.points), func(i int) bool {
			return !s.points[i].Timestamp.Before(cutoff)
		})
	}
	out.Points = append(out.Points, s.points[start:]...)
	return out, true
}

// Markets lists tracked market ids, sorted.
func (t *Tracker) Markets() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.series))
	for id := range t.series {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *series) insert(p models.ProbabilityHistoryPoint) {
	n := len(s.points)
	// fast path: in-order feed
	if n == 0 || s.points[n-1].Timestamp.Before(p.Timestamp) {
		s.points = append(s.points, p)
		return
	}
	i := sort.Search(n, func(i int) bool { return !s.points[i].Timestamp.Before(p.Timestamp) })
	if i < n && s.points[i].Timestamp.Equal(p.Timestamp) {
		s.points[i] = p
		return
	}
	s.points = append(s.points, models.ProbabilityHistoryPoint{})
	copy(s.points[i+1:], s.points[i:])
	s.points[i] = p
}

// trim evicts from the front; whichever bound is tighter wins.
func (s *series) trim(maxPoints int, maxSpan time.Duration) {
	drop := 0
	if maxPoints > 0 && len(s.points) > maxPoints {
		drop = len(s.points) - maxPoints
	}
	if maxSpan > 0 && len(s.points) > 0 {
		cutoff := s.points[len(s.points)-1].Timestamp.Add(-maxSpan)
		if i := sort.Search(len(s.points), func(i int) bool {
			return !s.points[i].Timestamp.Before(cutoff)
		}); i > drop {
			drop = i
		}
	}
	if drop == 0 {
		return
	}
	n := copy(s.points, s.points[drop:])
	clear(s.points[n:])
	s.points = s.points[:n]
}
