package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Backend key layout. Each entry is persisted as two records so that a hit
// only rewrites the small metadata record, never the image bytes.
const (
	dataPrefix = "d/"
	metaPrefix = "m/"
)

func dataKey(url string) string { return dataPrefix + url }
func metaKey(url string) string { return metaPrefix + url }

// Entry describes one cached image.
type Entry struct {
	URL            string    `json:"url"`
	CreatedAt      time.Time `json:"createdAt"`
	SizeBytes      int64     `json:"sizeBytes"`
	AccessCount    int64     `json:"accessCount"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

// expired reports whether e is older than maxAge at now.
func (e *Entry) expired(now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && now.Sub(e.CreatedAt) > maxAge
}

// less orders entries for eviction: least used first, then least recently used.
func (e *Entry) less(o *Entry) bool {
	if e.AccessCount != o.AccessCount {
		return e.AccessCount < o.AccessCount
	}
	if !e.LastAccessedAt.Equal(o.LastAccessedAt) {
		return e.LastAccessedAt.Before(o.LastAccessedAt)
	}
	return e.URL < o.URL
}

func encodeEntry(e *Entry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(b []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("cache: decode entry: %w", err)
	}
	if e.URL == "" {
		return nil, fmt.Errorf("cache: decode entry: missing url")
	}
	return &e, nil
}

func sortForEviction(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].less(entries[j])
	})
}
