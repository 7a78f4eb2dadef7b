package engine

import (
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/limitsmate/internal/limits"
	"github.com/goodtune/limitsmate/internal/report"
)

// Analyze reports on every log file already in dir. It needs neither a
// session nor the sf CLI.
func Analyze(dir string, settings Settings, p report.Presenter, logger zerolog.Logger) (*report.Document, error) {
	if settings == nil {
		settings = StaticSettings{ThresholdPercent: DefaultThreshold}
	}
	cache, err := limits.NewCache(0)
	if err != nil {
		return nil, err
	}

	threshold := settings.Threshold()
	namespace := settings.Namespace()

	r := limits.NewReport()
	seen, err := scanDir(dir, time.Time{}, namespace, threshold, cache, logger, r)
	if err != nil {
		return nil, err
	}

	return p.Render(report.View{
		Kind:        chooseView(seen, r.Len()),
		Report:      r,
		Threshold:   threshold,
		Namespace:   namespace,
		GeneratedAt: time.Now(),
		DisplayName: filepath.Base,
		Link:        fileURL,
	})
}
