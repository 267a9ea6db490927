package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-procurement-agent/internal/models"
)

// DebugRecorder dumps the page a job stopped on, so blocked pages and bad
// model replies can be looked at later.
type DebugRecorder struct {
	outputDir string
	now       func() time.Time
}

func NewDebugRecorder(dir string) (*DebugRecorder, error) {
	if dir == "" {
		dir = filepath.Join(".", "logs", "debug")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}
	return &DebugRecorder{outputDir: dir, now: time.Now}, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Record implements agent.ArtifactRecorder. Failures are logged, never
// returned: a missing dump must not change the job outcome.
func (d *DebugRecorder) Record(name, reason string, snap *models.PageSnapshot) {
	log := zap.S().Named("debug")
	ts := d.now().Format("2006-01-02_15-04-05")
	base := filepath.Join(d.outputDir, fmt.Sprintf("%s_%s", unsafeName.ReplaceAllString(name, "_"), ts))

	header := fmt.Sprintf("<!--\n  URL: %s\n  Title: %s\n  Reason: %s\n  Captured: %s\n-->\n",
		snap.URL, snap.Title, strings.ReplaceAll(reason, "--", "- -"), d.now().Format(time.RFC3339))
	if err := os.WriteFile(base+".html", []byte(header+snap.HTML), 0o644); err != nil {
		log.Warnf("⚠️ Failed to write HTML dump: %v", err)
		return
	}
	if len(snap.Screenshot) > 0 {
		if err := os.WriteFile(base+".jpg", snap.Screenshot, 0o644); err != nil {
			log.Warnf("⚠️ Failed to write screenshot: %v", err)
		}
	}
	log.Infof("📸 %s saved: %s.html", reason, base)
}
