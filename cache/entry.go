package cache

import (
	"slices"
	"sort"
	"time"
)

// Entry records one previously created entity.
type Entry struct {
	CreatedAt  time.Time
	Identifier string
}

// insertEntry places e after every entry created at or before it, keeping the
// list sorted by CreatedAt with ties in insertion order.
func insertEntry(entries []Entry, e Entry) []Entry {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].CreatedAt.After(e.CreatedAt)
	})
	return slices.Insert(entries, i, e)
}
