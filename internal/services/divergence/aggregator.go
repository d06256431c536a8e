package divergence

import (
	"fmt"
	"sort"
	"time"

	"ProbDesk/internal/domain/models"
)

// MergeStrategy picks the winner between two snapshots of one market.
// b always arrived after a.
type MergeStrategy string

const (
	MergeLatestTimestamp MergeStrategy = "latest_timestamp"
	MergeLastArrival     MergeStrategy = "last_arrival"
)

func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case "", MergeLatestTimestamp:
		return MergeLatestTimestamp, nil
	case MergeLastArrival:
		return MergeLastArrival, nil
	}
	return "", fmt.Errorf("unknown merge strategy %q", s)
}

// Prefer reports whether the later arrival b replaces a.
func (m MergeStrategy) Prefer(a, b models.ProbabilitySnapshot) bool {
	if m == MergeLastArrival {
		return true
	}
	return !b.Timestamp.Before(a.Timestamp)
}

// Aggregator is stateless; callers pass a point-in-time snapshot set.
type Aggregator struct {
	calc  *Calculator
	merge MergeStrategy
	now   func() time.Time
}

func NewAggregator(calc *Calculator, merge MergeStrategy) *Aggregator {
	if calc == nil {
		calc = NewCalculator()
	}
	if merge == "" {
		merge = MergeLatestTimestamp
	}
	return &Aggregator{calc: calc, merge: merge, now: time.Now}
}

// Latest collapses snapshots to one per market, sorted by market id. Arrival
// order only decides between duplicates, through the merge strategy.
func (a *Aggregator) Latest(snapshots []models.ProbabilitySnapshot) []models.ProbabilitySnapshot {
	byID := make(map[string]models.ProbabilitySnapshot, len(snapshots))
	for _, s := range snapshots {
		if s.MarketID == "" {
			continue
		}
		if cur, ok := byID[s.MarketID]; ok && !a.merge.Prefer(cur, s) {
			continue
		}
		byID[s.MarketID] = s
	}
	out := make([]models.ProbabilitySnapshot, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

func (a *Aggregator) Aggregate(snapshots []models.ProbabilitySnapshot) models.HeatmapData {
	latest := a.Latest(snapshots)
	data := models.HeatmapData{
		Cells:       make([]models.HeatmapCell, 0, len(latest)),
		GeneratedAt: a.now().UTC(),
	}
	if len(latest) == 0 {
		return data
	}

	var sum float64
	data.MaxDivergence = latest[0].Divergence
	data.MinDivergence = latest[0].Divergence
	for _, s := range latest {
		data.Cells = append(data.Cells, models.HeatmapCell{
			MarketID:          s.MarketID,
			MarketQuestion:    s.MarketQuestion,
			Category:          s.Category,
			Timestamp:         s.Timestamp,
			MarketPrice:       s.MarketPrice,
			AIProbability:     s.AIProbability,
			Divergence:        s.Divergence,
			DivergencePercent: s.DivergencePercent,
			ColorIntensity:    a.calc.ColorIntensity(s.Divergence),
			ConfidenceScore:   s.ConfidenceScore,
		})
		sum += s.Divergence
		if s.Divergence > data.MaxDivergence {
			data.MaxDivergence = s.Divergence
		}
		if s.Divergence < data.MinDivergence {
			data.MinDivergence = s.Divergence
		}
	}
	data.TotalMarkets = len(data.Cells)
	data.AvgDivergence = sum / float64(data.TotalMarkets)
	return data
}
