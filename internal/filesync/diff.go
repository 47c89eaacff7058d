package filesync

import (
	"github.com/Aman-CERP/codecontext/internal/snapshot"
)

// Diff classifies the current tree against the previous snapshot.
//
// Directories whose composite hash equals the snapshot's recorded composite
// are skipped without inspecting their files. With force set, every
// readable file in the tree is reported as added or modified. Files that
// could not be read are never reported.
func Diff(current *Tree, previous *snapshot.Snapshot, force bool) *ChangeSet {
	cs := NewChangeSet()
	if previous == nil {
		previous = snapshot.New("")
	}

	if force {
		for p, e := range current.Files {
			if e.Skipped {
				continue
			}
			if _, ok := previous.Files[p]; ok {
				cs.Modified[p] = struct{}{}
			} else {
				cs.Added[p] = struct{}{}
			}
		}
		for p := range previous.Files {
			if _, ok := current.Files[p]; !ok {
				cs.Removed[p] = struct{}{}
			}
		}
		return cs
	}

	cur := layout(current.paths())
	prev := layout(previous.Paths())

	var walk func(dir string)
	walk = func(dir string) {
		ch, hasCur := current.Dirs[dir]
		ph, hasPrev := previous.Dirs[dir]
		if hasCur && hasPrev && ch == ph {
			return
		}

		for _, p := range union(cur.files[dir], prev.files[dir]) {
			e, inCur := current.Files[p]
			rec, inPrev := previous.Files[p]
			switch {
			case inCur && !inPrev:
				if !e.Skipped {
					cs.Added[p] = struct{}{}
				}
			case !inCur && inPrev:
				cs.Removed[p] = struct{}{}
			case e.Skipped:
			case e.Hash != rec.ContentHash:
				cs.Modified[p] = struct{}{}
			}
		}
		for _, d := range union(cur.dirs[dir], prev.dirs[dir]) {
			walk(d)
		}
	}
	walk("")
	return cs
}

// dirLayout indexes direct child files and directories per directory.
type dirLayout struct {
	files map[string][]string
	dirs  map[string][]string
}

func layout(paths []string) dirLayout {
	l := dirLayout{files: make(map[string][]string), dirs: make(map[string][]string)}
	seen := make(map[string]bool)
	for _, p := range paths {
		dir := parentDir(p)
		l.files[dir] = append(l.files[dir], p)
		for d := dir; d != "" && !seen[d]; d = parentDir(d) {
			seen[d] = true
			parent := parentDir(d)
			l.dirs[parent] = append(l.dirs[parent], d)
		}
	}
	return l
}

func union(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	return sortedKeys(set)
}
