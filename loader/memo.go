package loader

import (
	"image"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultMemoSize is the number of decoded images kept in memory.
const DefaultMemoSize = 32

// Memo keeps recently decoded images keyed by URL so that revisiting a
// slice does not decode it again.
type Memo struct {
	cache *lru.Cache
}

// NewMemo returns a Memo holding up to size images.
// A size <= 0 uses DefaultMemoSize.
func NewMemo(size int) *Memo {
	if size <= 0 {
		size = DefaultMemoSize
	}
	c, err := lru.New(size)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &Memo{cache: c}
}

// Get returns the decoded image for url.
func (m *Memo) Get(url string) (image.Image, bool) {
	v, ok := m.cache.Get(url)
	if !ok {
		return nil, false
	}
	return v.(image.Image), true
}

// Add stores img for url, evicting the least recently used image if full.
func (m *Memo) Add(url string, img image.Image) {
	m.cache.Add(url, img)
}

// Contains reports whether url is memoized without updating recency.
func (m *Memo) Contains(url string) bool {
	return m.cache.Contains(url)
}

// Remove forgets url.
func (m *Memo) Remove(url string) {
	m.cache.Remove(url)
}

// Len returns the number of memoized images.
func (m *Memo) Len() int {
	return m.cache.Len()
}

// Purge empties the memo.
func (m *Memo) Purge() {
	m.cache.Purge()
}
