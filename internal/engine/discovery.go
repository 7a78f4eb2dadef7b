package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/goodtune/limitsmate/internal/metrics"
)

// discover lists the logs after the session cursor and downloads every body
// not already on disk. Periodic passes are page-limited and honor the
// look-ahead; fetchAll passes are not. All downloads finish before it returns.
func (e *Engine) discover(ctx context.Context, fetchAll bool, trigger string) error {
	e.discoverMu.Lock()
	defer e.discoverMu.Unlock()

	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return ErrNotStarted
	}
	gen := e.generation
	userID := s.UserID
	cursor := s.lowerBound(fetchAll)
	e.mu.Unlock()

	records, err := e.gateway.QueryNewLogs(ctx, userID, e.cfg.PageSize, fetchAll, cursor)
	if err != nil {
		metrics.DiscoveryPassesTotal.WithLabelValues(trigger, "error").Inc()
		return err
	}
	if len(records) == 0 {
		metrics.DiscoveryPassesTotal.WithLabelValues(trigger, "empty").Inc()
		e.logger.Debug().Str("trigger", trigger).Time("cursor", cursor).Msg("No new logs")
		return nil
	}

	e.mu.Lock()
	if gen != e.generation {
		// The session was stopped or replaced while the query ran.
		e.mu.Unlock()
		e.logger.Debug().Str("trigger", trigger).Msg("Discarding discovery result for ended session")
		return nil
	}
	s.advance(records[len(records)-1].LastModified, fetchAll)
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PageSize)
	downloaded := 0
	for _, rec := range records {
		path := filepath.Join(e.cfg.LogDir, rec.ID+".log")
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			e.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat log file")
			continue
		}

		downloaded++
		g.Go(func() error {
			if err := e.gateway.FetchLogBody(gctx, rec.ID, e.cfg.LogDir); err != nil {
				return err
			}
			metrics.LogsDownloadedTotal.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.DiscoveryPassesTotal.WithLabelValues(trigger, "error").Inc()
		return err
	}

	metrics.DiscoveryPassesTotal.WithLabelValues(trigger, "success").Inc()
	e.logger.Debug().
		Str("trigger", trigger).
		Int("records", len(records)).
		Int("downloaded", downloaded).
		Msg("Discovery pass complete")
	return nil
}
