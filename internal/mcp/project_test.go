package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProject(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		wantName string
		wantType string
	}{
		{
			name:     "go module",
			files:    map[string]string{"go.mod": "module github.com/test/myapp\n\ngo 1.21\n"},
			wantName: "myapp",
			wantType: "go",
		},
		{
			name:     "node package",
			files:    map[string]string{"package.json": `{"name": "my-node-app", "version": "1.0.0"}`},
			wantName: "my-node-app",
			wantType: "node",
		},
		{
			name:     "scoped node package",
			files:    map[string]string{"package.json": `{"name": "@org/widget"}`},
			wantName: "widget",
			wantType: "node",
		},
		{
			name:     "python project",
			files:    map[string]string{"pyproject.toml": "[tool.black]\nname = \"wrong\"\n\n[project]\nname = \"my-python-app\"\n"},
			wantName: "my-python-app",
			wantType: "python",
		},
		{
			name:     "rust crate",
			files:    map[string]string{"Cargo.toml": "[package]\nname = \"crab\"\nversion = \"0.1.0\"\n"},
			wantName: "crab",
			wantType: "rust",
		},
		{
			name: "go wins over node",
			files: map[string]string{
				"go.mod":       "module example.com/both\n",
				"package.json": `{"name": "frontend"}`,
			},
			wantName: "both",
			wantType: "go",
		},
		{
			name:     "broken package.json falls back",
			files:    map[string]string{"package.json": `{not json`},
			wantType: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a project directory with manifests
			root := t.TempDir()
			for name, content := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
			}

			// When: detecting the project
			info := DetectProject(root)

			// Then: name and type come from the first manifest
			wantName := tt.wantName
			if wantName == "" {
				wantName = filepath.Base(root)
			}
			assert.Equal(t, wantName, info.Name)
			assert.Equal(t, tt.wantType, info.Type)
			assert.Equal(t, root, info.RootPath)
		})
	}
}
