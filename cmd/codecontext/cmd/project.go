package cmd

import (
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/codecontext/internal/config"
	"github.com/Aman-CERP/codecontext/internal/logging"
	"github.com/Aman-CERP/codecontext/internal/scanner"
	"github.com/Aman-CERP/codecontext/pkg/codecontext"
)

// project is an opened project: its root, configuration and engine.
type project struct {
	root     string
	cfg      *config.Config
	engine   *codecontext.Engine
	closeLog func()
}

// openProject validates path, loads its configuration, installs logging
// and builds the engine. In server mode logs never reach stderr or stdout.
func openProject(path string, opts *globalOptions, serverMode bool) (*project, error) {
	root, err := scanner.ValidateRoot(path)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}

	var closeLog func()
	if serverMode {
		closeLog, err = logging.SetupServerMode(cfg.LogPath(), cfg.Logging.Level)
	} else {
		logCfg := logging.DefaultConfig(cfg.LogPath())
		logCfg.Level = cfg.Logging.Level
		logCfg.WriteToStderr = opts.verbose
		closeLog, err = logging.SetupDefault(logCfg)
	}
	if err != nil {
		return nil, err
	}

	engine, err := codecontext.New(cfg)
	if err != nil {
		closeLog()
		return nil, err
	}

	slog.Debug("project_opened",
		slog.String("root", root),
		slog.String("provider", cfg.Embeddings.Provider),
		slog.String("data_dir", cfg.Storage.DataDir))

	return &project{root: root, cfg: cfg, engine: engine, closeLog: closeLog}, nil
}

// Close releases the engine and flushes the log file.
func (p *project) Close() error {
	err := p.engine.Close()
	p.closeLog()
	return err
}

// collectionDir returns where the collection for this project lives.
func (p *project) collectionDir(collection string) string {
	return filepath.Join(p.cfg.CollectionsPath(), collection)
}

// dirSize sums the sizes of regular files under dir. A missing dir is 0.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
