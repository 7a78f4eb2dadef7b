package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/goodtune/limitsmate/internal/report"
)

func TestAnalyze(t *testing.T) {
	p := report.NewTextPresenter()

	tests := []struct {
		name      string
		files     map[string]string
		threshold int
		wantKind  report.ViewKind
	}{
		{"empty directory", nil, 50, report.ViewError},
		{"below threshold", map[string]string{"a.log": coldLog}, 50, report.ViewAllClear},
		{"hot log", map[string]string{"a.log": coldLog, "b.log": hotLog}, 50, report.ViewConsumption},
		{"zero threshold", map[string]string{"a.log": coldLog}, 0, report.ViewConsumption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, body := range tt.files {
				if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			doc, err := Analyze(dir, StaticSettings{ThresholdPercent: tt.threshold}, p, zerolog.Nop())
			if err != nil {
				t.Fatalf("Analyze failed: %v", err)
			}
			if doc.Kind != tt.wantKind {
				t.Errorf("Expected %s view, got %s", tt.wantKind, doc.Kind)
			}
		})
	}
}

func TestAnalyze_MissingDirectory(t *testing.T) {
	_, err := Analyze(filepath.Join(t.TempDir(), "missing"), nil, report.NewTextPresenter(), zerolog.Nop())

	var fsErr *FileSystemError
	if !errors.As(err, &fsErr) || fsErr.Op != "read" {
		t.Errorf("Expected read FileSystemError, got %v", err)
	}
}
