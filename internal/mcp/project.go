package mcp

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	goModuleRegex = regexp.MustCompile(`^module\s+(\S+)`)
	tomlNameRegex = regexp.MustCompile(`^\s*name\s*=\s*["']([^"']+)["']`)
)

// projectMarker reads a project name from one manifest file.
type projectMarker struct {
	file   string
	kind   string
	detect func(path string) string
}

var projectMarkers = []projectMarker{
	{"go.mod", "go", goModuleName},
	{"package.json", "node", packageJSONName},
	{"pyproject.toml", "python", tomlSectionName("[project]")},
	{"Cargo.toml", "rust", tomlSectionName("[package]")},
}

// DetectProject names the project at root from the first manifest found,
// falling back to the directory name.
func DetectProject(root string) ProjectInfo {
	info := ProjectInfo{
		RootPath: root,
		Name:     filepath.Base(root),
		Type:     "unknown",
	}
	for _, m := range projectMarkers {
		if name := m.detect(filepath.Join(root, m.file)); name != "" {
			info.Name = name
			info.Type = m.kind
			return info
		}
	}
	return info
}

// goModuleName returns the last segment of the module path.
func goModuleName(path string) string {
	var name string
	scanLines(path, func(line string) bool {
		if m := goModuleRegex.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			name = filepath.Base(m[1])
			return false
		}
		return true
	})
	return name
}

// packageJSONName strips the scope of scoped packages.
func packageJSONName(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var pkg struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(data, &pkg) != nil {
		return ""
	}
	if i := strings.LastIndex(pkg.Name, "/"); strings.HasPrefix(pkg.Name, "@") && i >= 0 {
		return pkg.Name[i+1:]
	}
	return pkg.Name
}

// tomlSectionName reads name = "..." from the given TOML table.
func tomlSectionName(section string) func(string) string {
	return func(path string) string {
		var name string
		inSection := false
		scanLines(path, func(line string) bool {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "[") {
				inSection = trimmed == section
				return true
			}
			if inSection {
				if m := tomlNameRegex.FindStringSubmatch(line); m != nil {
					name = m[1]
					return false
				}
			}
			return true
		})
		return name
	}
}

// scanLines calls fn per line until it returns false. Missing files are empty.
func scanLines(path string, fn func(string) bool) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer func() { _ = file.Close() }()

	sc := bufio.NewScanner(file)
	for sc.Scan() {
		if !fn(sc.Text()) {
			return
		}
	}
}
