package filesync

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// HashBytes returns the hex xxhash64 of b.
func HashBytes(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

// HashFile streams a file through xxhash64.
func HashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	d := xxhash.New()
	if _, err := io.Copy(d, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", d.Sum64()), nil
}

// DirHashes aggregates file hashes bottom-up into a composite hash per
// directory. Keys are slash-separated relative dirs; "" is the root.
// Each composite is xxhash64 over the sorted "name\x00hash\n" entries of
// its direct children, with subdirectory names suffixed by "/".
func DirHashes(files map[string]string) map[string]string {
	children := make(map[string]map[string]string)
	ensure := func(dir string) map[string]string {
		c, ok := children[dir]
		if !ok {
			c = make(map[string]string)
			children[dir] = c
		}
		return c
	}

	for p, h := range files {
		dir := parentDir(p)
		ensure(dir)[path.Base(p)] = h
		for d := dir; d != ""; d = parentDir(d) {
			ensure(d)
			ensure(parentDir(d))
		}
	}

	dirs := make([]string, 0, len(children))
	for d := range children {
		dirs = append(dirs, d)
	}
	// Deepest first so children are final before their parent is hashed.
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := depth(dirs[i]), depth(dirs[j])
		if di != dj {
			return di > dj
		}
		return dirs[i] < dirs[j]
	})

	out := make(map[string]string, len(dirs))
	for _, d := range dirs {
		entries := children[d]
		names := make([]string, 0, len(entries))
		for n := range entries {
			names = append(names, n)
		}
		sort.Strings(names)

		h := xxhash.New()
		for _, n := range names {
			_, _ = h.WriteString(n)
			_, _ = h.WriteString("\x00")
			_, _ = h.WriteString(entries[n])
			_, _ = h.WriteString("\n")
		}
		sum := fmt.Sprintf("%016x", h.Sum64())
		out[d] = sum
		if d != "" {
			children[parentDir(d)][path.Base(d)+"/"] = sum
		}
	}
	return out
}

func parentDir(p string) string {
	d := path.Dir(p)
	if d == "." || d == "/" {
		return ""
	}
	return d
}

func depth(d string) int {
	if d == "" {
		return 0
	}
	return strings.Count(d, "/") + 1
}
