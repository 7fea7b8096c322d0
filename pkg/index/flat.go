package index

import (
	"container/heap"
	"fmt"
	"sync"
)

// FlatIndex implements a brute-force exact search index.
// Vectors are identified by their insertion position; the index is append-only.
// Search guarantees the exact nearest neighbors with O(n) complexity.
type FlatIndex struct {
	mu        sync.RWMutex
	vectors   [][]float32
	dimension int
	distFunc  func([]float32, []float32) float32
}

// NewFlatIndex creates a new brute-force index.
// A nil distFunc selects SquaredEuclideanDistance.
func NewFlatIndex(dimension int, distFunc func([]float32, []float32) float32) *FlatIndex {
	if distFunc == nil {
		distFunc = SquaredEuclideanDistance
	}
	return &FlatIndex{
		dimension: dimension,
		distFunc:  distFunc,
	}
}

// Dimension returns the fixed vector length of the index.
func (f *FlatIndex) Dimension() int {
	return f.dimension
}

// Add appends a vector and returns its position.
func (f *FlatIndex) Add(vector []float32) (int, error) {
	if len(vector) != f.dimension {
		return 0, fmt.Errorf("dimension mismatch: expected %d, got %d", f.dimension, len(vector))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Store a copy to avoid external modifications
	v := make([]float32, len(vector))
	copy(v, vector)
	f.vectors = append(f.vectors, v)

	return len(f.vectors) - 1, nil
}

// BatchAdd appends multiple vectors; either all are added or none.
func (f *FlatIndex) BatchAdd(vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != f.dimension {
			return fmt.Errorf("dimension mismatch at index %d: expected %d, got %d", i, f.dimension, len(vec))
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, vec := range vectors {
		v := make([]float32, f.dimension)
		copy(v, vec)
		f.vectors = append(f.vectors, v)
	}

	return nil
}

// Search returns the positions and distances of the min(k, Size()) nearest
// vectors, nearest first. Equal distances are ordered by position, so an
// earlier-inserted vector wins a tie.
func (f *FlatIndex) Search(query []float32, k int) ([]int, []float32, error) {
	if len(query) != f.dimension {
		return nil, nil, fmt.Errorf("dimension mismatch: expected %d, got %d", f.dimension, len(query))
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.vectors) == 0 || k <= 0 {
		return []int{}, []float32{}, nil
	}

	// Max heap holding the k best candidates; the root is the worst of them.
	h := &flatMaxHeap{}
	heap.Init(h)

	for id, vector := range f.vectors {
		dist := f.distFunc(query, vector)

		if h.Len() < k {
			heap.Push(h, flatHeapItem{id: id, distance: dist})
		} else if dist < (*h)[0].distance {
			// Positions are scanned in ascending order, so an equal distance
			// never displaces an earlier entry.
			heap.Pop(h)
			heap.Push(h, flatHeapItem{id: id, distance: dist})
		}
	}

	// Extract results in order
	results := make([]flatHeapItem, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(flatHeapItem)
	}

	ids := make([]int, len(results))
	distances := make([]float32, len(results))
	for i, item := range results {
		ids[i] = item.id
		distances[i] = item.distance
	}

	return ids, distances, nil
}

// Size returns the number of vectors in the index
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Vectors returns copies of all stored vectors in insertion order.
func (f *FlatIndex) Vectors() [][]float32 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([][]float32, len(f.vectors))
	for i, vec := range f.vectors {
		v := make([]float32, len(vec))
		copy(v, vec)
		out[i] = v
	}
	return out
}

// Stats returns statistics about the index
func (f *FlatIndex) Stats() map[string]interface{} {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return map[string]interface{}{
		"type":      "flat",
		"size":      len(f.vectors),
		"dimension": f.dimension,
	}
}

// SquaredEuclideanDistance returns the sum of squared component differences.
func SquaredEuclideanDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

// flatHeapItem represents an item in the max heap for flat index
type flatHeapItem struct {
	id       int
	distance float32
}

// flatMaxHeap implements heap.Interface for a max heap. Among equal
// distances the later position sorts as "larger" so it is evicted first.
type flatMaxHeap []flatHeapItem

func (h flatMaxHeap) Len() int { return len(h) }
func (h flatMaxHeap) Less(i, j int) bool {
	if h[i].distance != h[j].distance {
		return h[i].distance > h[j].distance
	}
	return h[i].id > h[j].id
}
func (h flatMaxHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *flatMaxHeap) Push(x interface{}) {
	*h = append(*h, x.(flatHeapItem))
}

func (h *flatMaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}
