package model

// ChangeKind describes how a file differs between two snapshots.
type ChangeKind int

const (
	// ChangeAdded means the path exists only in the newer snapshot.
	ChangeAdded ChangeKind = iota

	// ChangeRemoved means the path exists only in the older snapshot.
	ChangeRemoved

	// ChangeModified means the path exists in both snapshots with different hashes.
	ChangeModified
)

// String returns the lowercase name of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeModified:
		return "modified"
	default:
		return "unknown"
	}
}

// ParseChangeKind converts a change kind name back into a ChangeKind.
func ParseChangeKind(name string) (ChangeKind, bool) {
	switch name {
	case "added":
		return ChangeAdded, true
	case "removed":
		return ChangeRemoved, true
	case "modified":
		return ChangeModified, true
	default:
		return ChangeAdded, false
	}
}

// Change is a single file difference with its severity classification.
type Change struct {
	// Path is the absolute path of the changed file.
	Path string `json:"path"`

	// Kind is how the file changed.
	Kind ChangeKind `json:"kind"`

	// Severity is derived from the kind and the file extension.
	Severity Severity `json:"severity"`
}

// ChangeSet holds the three disjoint difference sets between two snapshots.
// Each slice is sorted by path.
type ChangeSet struct {
	Added    []Change `json:"added,omitempty"`
	Removed  []Change `json:"removed,omitempty"`
	Modified []Change `json:"modified,omitempty"`
}

// Len returns the total number of changes.
func (cs ChangeSet) Len() int {
	return len(cs.Added) + len(cs.Removed) + len(cs.Modified)
}

// IsEmpty reports whether the change set has no changes.
func (cs ChangeSet) IsEmpty() bool {
	return cs.Len() == 0
}

// All returns every change in added, removed, modified order.
func (cs ChangeSet) All() []Change {
	all := make([]Change, 0, cs.Len())
	all = append(all, cs.Added...)
	all = append(all, cs.Removed...)
	all = append(all, cs.Modified...)
	return all
}

// CountBySeverity returns the number of changes per severity.
func (cs ChangeSet) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, c := range cs.All() {
		counts[c.Severity]++
	}
	return counts
}
