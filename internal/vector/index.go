package vector

import (
	"math"
	"sort"
	"sync"
)

// Match is one nearest-neighbor hit.
type Match struct {
	ID    string
	Score float64
}

type entry struct {
	id  string
	vec []float64
}

// Index is an in-memory brute-force cosine-similarity index. The
// catalog is small (tens to hundreds of rows), so a linear scan beats
// any approximate structure here.
type Index struct {
	mu      sync.RWMutex
	entries []entry
	byID    map[string]int
}

func NewIndex() *Index {
	return &Index{byID: make(map[string]int)}
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func (ix *Index) Upsert(id string, vec []float64) {
	if id == "" || len(vec) == 0 {
		return
	}
	cp := append([]float64(nil), vec...)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if i, ok := ix.byID[id]; ok {
		ix.entries[i].vec = cp
		return
	}
	ix.byID[id] = len(ix.entries)
	ix.entries = append(ix.entries, entry{id: id, vec: cp})
}

// Replace swaps the whole index contents in one step.
func (ix *Index) Replace(ids []string, vecs [][]float64) {
	n := len(ids)
	if len(vecs) < n {
		n = len(vecs)
	}
	entries := make([]entry, 0, n)
	byID := make(map[string]int, n)
	for i := 0; i < n; i++ {
		if ids[i] == "" || len(vecs[i]) == 0 {
			continue
		}
		byID[ids[i]] = len(entries)
		entries = append(entries, entry{id: ids[i], vec: append([]float64(nil), vecs[i]...)})
	}
	ix.mu.Lock()
	ix.entries = entries
	ix.byID = byID
	ix.mu.Unlock()
}

// Query returns the topK most similar entries, score descending.
// Equal scores order by ascending id so results are reproducible.
// An empty index yields an empty slice, never an error.
func (ix *Index) Query(vec []float64, topK int) []Match {
	if topK <= 0 || len(vec) == 0 {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	matches := make([]Match, 0, len(ix.entries))
	for _, e := range ix.entries {
		matches = append(matches, Match{ID: e.id, Score: cosine(vec, e.vec)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK > len(matches) {
		topK = len(matches)
	}
	return matches[:topK]
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
