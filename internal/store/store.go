package store

import (
	"errors"
	"sort"
)

var ErrNotFound = errors.New("not found")

// SortSections orders sections the way every listing returns them: by
// ordering index, then creation time, then id.
func SortSections(sections []Section) {
	sort.SliceStable(sections, func(i, j int) bool {
		a, b := sections[i], sections[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
