package fetch

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
)

// ParseID parses a decimal item id. Ids exceed the exact range of float64,
// so they are always compared as uint64.
func ParseID(id string) (uint64, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return n, nil
}

// CompareIDs orders two ids numerically. Malformed ids sort first.
func CompareIDs(a, b string) int {
	x, errA := ParseID(a)
	y, errB := ParseID(b)
	switch {
	case errA != nil && errB != nil:
		return cmp.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return cmp.Compare(x, y)
}

// Normalize returns items sorted ascending by id with duplicate ids
// collapsed. Items with malformed ids are kept and ordered the way
// CompareIDs orders them. The input is not modified and may arrive in any
// order.
func Normalize(items []Item) []Item {
	if len(items) == 0 {
		return []Item{}
	}

	type keyed struct {
		valid bool
		key   uint64
		item  Item
	}
	out := make([]keyed, 0, len(items))
	seen := make(map[uint64]struct{}, len(items))
	seenRaw := make(map[string]struct{})
	for _, it := range items {
		k, err := ParseID(it.ID)
		if err != nil {
			if _, dup := seenRaw[it.ID]; dup {
				continue
			}
			seenRaw[it.ID] = struct{}{}
			out = append(out, keyed{item: it})
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, keyed{valid: true, key: k, item: it})
	}

	slices.SortFunc(out, func(a, b keyed) int {
		switch {
		case !a.valid && !b.valid:
			return cmp.Compare(a.item.ID, b.item.ID)
		case !a.valid:
			return -1
		case !b.valid:
			return 1
		}
		return cmp.Compare(a.key, b.key)
	})

	result := make([]Item, len(out))
	for i, k := range out {
		result[i] = k.item
	}
	return result
}

// Bounds returns the oldest and newest well-formed ids of a page. Malformed
// ids never become a paging cursor.
func Bounds(items []Item) (oldest, newest string) {
	for _, it := range items {
		if _, err := ParseID(it.ID); err != nil {
			continue
		}
		if oldest == "" || CompareIDs(it.ID, oldest) < 0 {
			oldest = it.ID
		}
		if newest == "" || CompareIDs(it.ID, newest) > 0 {
			newest = it.ID
		}
	}
	return oldest, newest
}
