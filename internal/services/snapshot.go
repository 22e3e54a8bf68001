package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/utils"
)

// SnapshotService captures page screenshots through a headless browser.
// Entirely best-effort: when the browser cannot be launched the constructor
// returns an error and the pipeline simply runs without visual stages.
type SnapshotService interface {
	Capture(ctx context.Context, pageURL, projectID string) (string, error)
	Close() error
}

type snapshotService struct {
	log     *logger.Logger
	browser *rod.Browser
	lnch    *launcher.Launcher
	dir     string
}

func NewSnapshotService(log *logger.Logger, dir string) (SnapshotService, error) {
	serviceLog := log.With("service", "SnapshotService")

	if utils.GetEnv("ROD_DISABLED", "", log) != "" {
		return nil, fmt.Errorf("snapshots disabled by configuration")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshot dir: %w", err)
	}

	lnch := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")
	controlURL, err := lnch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		lnch.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	serviceLog.Info("Headless browser ready for snapshots", "dir", dir)
	return &snapshotService{
		log:     serviceLog,
		browser: browser,
		lnch:    lnch,
		dir:     dir,
	}, nil
}

// Capture renders pageURL and writes a jpeg under the screenshot dir. The
// readme region is scrolled into view first so the shot shows content, not
// just the repository header.
func (s *snapshotService) Capture(ctx context.Context, pageURL, projectID string) (string, error) {
	page, err := stealth.Page(s.browser)
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(30 * time.Second)

	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load: %w", err)
	}
	time.Sleep(2 * time.Second)

	// Best-effort scroll toward the readme body.
	if _, err := page.Eval(`() => {
		const readme = document.querySelector('article.markdown-body');
		if (readme) { readme.scrollIntoView(); } else { window.scrollBy(0, 400); }
	}`); err != nil {
		s.log.Debug("Scroll script failed", "url", pageURL, "error", err)
	}

	quality := 80
	raw, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: &quality,
	})
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}

	path := filepath.Join(s.dir, projectID+".jpg")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

func (s *snapshotService) Close() error {
	err := s.browser.Close()
	s.lnch.Cleanup()
	return err
}
