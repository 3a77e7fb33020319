package ledger

import (
	"sort"

	"github.com/Veraticus/ledger-must-balance/internal/model"
)

// DuplicateSet flags rows that share title, amount and date with another row
// of the same loaded set. It only warns; nothing is blocked.
type DuplicateSet struct {
	groups map[string][]string
	byID   map[string]string
}

// DuplicateSummary is the wire form of a DuplicateSet.
type DuplicateSummary struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

// FindDuplicates builds the duplicate set for txns.
func FindDuplicates(txns []model.Transaction) DuplicateSet {
	all := make(map[string][]string, len(txns))
	for i := range txns {
		key := txns[i].DuplicateKey()
		all[key] = append(all[key], txns[i].ID)
	}

	set := DuplicateSet{
		groups: make(map[string][]string),
		byID:   make(map[string]string),
	}
	for key, ids := range all {
		if len(ids) < 2 {
			continue
		}
		set.groups[key] = ids
		for _, id := range ids {
			set.byID[id] = key
		}
	}
	return set
}

// IsDuplicate reports whether txn was flagged.
func (d DuplicateSet) IsDuplicate(txn *model.Transaction) bool {
	_, ok := d.byID[txn.ID]
	return ok
}

// Count is the number of flagged rows.
func (d DuplicateSet) Count() int {
	return len(d.byID)
}

// Groups returns the ids of each cluster of look-alike rows.
func (d DuplicateSet) Groups() [][]string {
	keys := make([]string, 0, len(d.groups))
	for key := range d.groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	groups := make([][]string, 0, len(keys))
	for _, key := range keys {
		groups = append(groups, append([]string(nil), d.groups[key]...))
	}
	return groups
}

// Summary returns the flagged ids in a stable order.
func (d DuplicateSet) Summary() DuplicateSummary {
	ids := make([]string, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return DuplicateSummary{Count: len(ids), IDs: ids}
}
