package filesync

import "sort"

// ChangeSet classifies project-relative paths against a previous snapshot.
// The three sets are disjoint.
type ChangeSet struct {
	Added    map[string]struct{}
	Removed  map[string]struct{}
	Modified map[string]struct{}
}

// NewChangeSet returns an empty change set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Added:    make(map[string]struct{}),
		Removed:  make(map[string]struct{}),
		Modified: make(map[string]struct{}),
	}
}

// IsEmpty reports whether nothing changed.
func (c *ChangeSet) IsEmpty() bool {
	return c.Len() == 0
}

// Len is the total number of changed paths.
func (c *ChangeSet) Len() int {
	return len(c.Added) + len(c.Removed) + len(c.Modified)
}

// ToIndex returns added and modified paths, sorted.
func (c *ChangeSet) ToIndex() []string {
	out := make([]string, 0, len(c.Added)+len(c.Modified))
	for p := range c.Added {
		out = append(out, p)
	}
	for p := range c.Modified {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RemovedPaths returns removed paths, sorted.
func (c *ChangeSet) RemovedPaths() []string {
	return sortedKeys(c.Removed)
}

// AddedPaths returns added paths, sorted.
func (c *ChangeSet) AddedPaths() []string {
	return sortedKeys(c.Added)
}

// ModifiedPaths returns modified paths, sorted.
func (c *ChangeSet) ModifiedPaths() []string {
	return sortedKeys(c.Modified)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
