package engine

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/goodtune/limitsmate/internal/limits"
)

const scanWorkers = 8

// scan parses every log file modified at or after since and adds the entries
// meeting threshold to r in directory order. Unreadable files are logged and
// skipped. It reports whether any file of the session was read.
func (e *Engine) scan(since time.Time, namespace string, threshold int, r *limits.Report) (bool, error) {
	return scanDir(e.cfg.LogDir, since, namespace, threshold, e.cache, e.logger, r)
}

func scanDir(dir string, since time.Time, namespace string, threshold int, cache *limits.Cache, logger zerolog.Logger, r *limits.Report) (bool, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return false, &FileSystemError{Op: "read", Path: dir, Err: err}
	}

	results := make([][]limits.Entry, len(dirEntries))
	read := make([]bool, len(dirEntries))

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	g.SetLimit(scanWorkers)

	for i, de := range dirEntries {
		path := filepath.Join(dir, de.Name())
		g.Go(func() error {
			info, err := de.Info()
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return nil
			}
			if !info.Mode().IsRegular() || info.ModTime().Before(since) {
				return nil
			}

			entries, err := cache.Load(path, info, namespace)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return nil
			}
			read[i] = true
			results[i] = limits.Filter(entries, threshold)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range multierr.Errors(errs) {
		logger.Warn().Err(err).Msg("Skipping unreadable log file")
	}

	seen := false
	for i, de := range dirEntries {
		if read[i] {
			seen = true
		}
		r.Add(filepath.Join(dir, de.Name()), results[i])
	}
	return seen, nil
}

// deleteLogs removes the regular files in the log directory.
func (e *Engine) deleteLogs() (int, error) {
	dirEntries, err := os.ReadDir(e.cfg.LogDir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, &FileSystemError{Op: "read", Path: e.cfg.LogDir, Err: err}
	}

	var errs error
	removed := 0
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(e.cfg.LogDir, de.Name())); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		removed++
	}
	e.cache.Purge()

	if errs != nil {
		return removed, &FileSystemError{Op: "delete", Path: e.cfg.LogDir, Err: errs}
	}
	if removed > 0 {
		e.logger.Info().Int("files", removed).Str("dir", e.cfg.LogDir).Msg("Deleted log files")
	}
	return removed, nil
}
