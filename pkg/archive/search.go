package archive

import (
	"math"
	"sort"
	"strings"
	"time"
)

// DefaultSearchLimit caps results when a query sets no limit.
const DefaultSearchLimit = 100

const exactTypeBonus = 50

// Query filters and ranks archives. Zero fields do not filter.
type Query struct {
	DataType     string     `json:"dataType,omitempty"`
	DateRange    *TimeRange `json:"dateRange,omitempty"`
	MinSize      int        `json:"minSize,omitempty"`
	MaxSize      int        `json:"maxSize,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Text         string     `json:"text,omitempty"`
	PreferLarger bool       `json:"preferLarger,omitempty"`
	Limit        int        `json:"limit,omitempty"`
}

// TimeRange bounds a date query. A zero bound is open.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Hit is one ranked search result.
type Hit struct {
	ArchiveID string  `json:"archiveId"`
	Metadata  *Record `json:"metadata"`
	Score     float64 `json:"score"`
}

// SearchResult holds the top hits and the number of matches before the limit.
type SearchResult struct {
	Total   int   `json:"total"`
	Results []Hit `json:"results"`
	Query   Query `json:"query"`
}

// Search scans archive metadata. It does not go through the queue and sees
// the state left by the last completed operation.
func (s *Store) Search(q Query) SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	candidates := s.records
	if q.DataType != "" {
		ids := s.index.ofType(q.DataType)
		candidates = make(map[string]*Record, len(ids))
		for id := range ids {
			if r, ok := s.records[id]; ok {
				candidates[id] = r
			}
		}
	}

	hits := make([]Hit, 0, len(candidates))
	for id, r := range candidates {
		if !matches(r, q) {
			continue
		}
		hits = append(hits, Hit{ArchiveID: id, Metadata: r, Score: relevance(r, q, now)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		a, b := hits[i].Metadata.CreatedAt, hits[j].Metadata.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return hits[i].ArchiveID > hits[j].ArchiveID
	})

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	total := len(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	for i := range hits {
		hits[i].Metadata = hits[i].Metadata.clone()
	}
	return SearchResult{Total: total, Results: hits, Query: q}
}

func matches(r *Record, q Query) bool {
	if q.DataType != "" && r.DataType != q.DataType {
		return false
	}
	if q.DateRange != nil {
		if r.DateRange == nil {
			return false
		}
		if !q.DateRange.Start.IsZero() && r.DateRange.End.Before(q.DateRange.Start) {
			return false
		}
		if !q.DateRange.End.IsZero() && r.DateRange.Start.After(q.DateRange.End) {
			return false
		}
	}
	if q.MinSize > 0 && r.ArchivedSize < q.MinSize {
		return false
	}
	if q.MaxSize > 0 && r.ArchivedSize > q.MaxSize {
		return false
	}
	for _, want := range q.Tags {
		if !contains(r.Tags, want) {
			return false
		}
	}
	if q.Text != "" && !matchesText(r, strings.ToLower(q.Text)) {
		return false
	}
	return true
}

func matchesText(r *Record, needle string) bool {
	haystack := make([]string, 0, 1+len(r.Tags)+len(r.Strategy))
	haystack = append(haystack, r.DataType)
	haystack = append(haystack, r.Tags...)
	for _, k := range r.Strategy {
		haystack = append(haystack, string(k))
	}
	for _, s := range haystack {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// relevance decays by one point per day of age, adds a size bonus when
// preferLarger is set and a flat bonus for an exact type match.
func relevance(r *Record, q Query, now time.Time) float64 {
	ageDays := now.Sub(r.CreatedAt).Hours() / 24
	score := math.Max(0, 100-ageDays)
	if q.PreferLarger {
		score += float64(r.RecordCount) / 1000
	}
	if q.DataType != "" && q.DataType == r.DataType {
		score += exactTypeBonus
	}
	return score
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
