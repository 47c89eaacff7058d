// Package codecontext is the public entry point for indexing a code project
// and searching it with hybrid dense and lexical retrieval.
//
// # Usage
//
//	cfg, err := config.Load(projectDir)
//	if err != nil {
//	    return err
//	}
//	engine, err := codecontext.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	stats, err := engine.Index(ctx, projectDir, false)
//	results, err := engine.Search(ctx, projectDir, "where are sessions validated", 5, 0)
//
// Indexing is incremental: only files whose content changed since the last
// run are chunked and embedded again. A second Index call for a project that
// is still being indexed fails fast with an index-busy error.
//
// # Thread Safety
//
// An Engine is safe for concurrent use by multiple goroutines.
package codecontext
