package chrome

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"html2image/internal/config"
	"html2image/internal/domain"
	"html2image/internal/infra/logging"
)

// Rod captures elements with a fresh browser driven by go-rod. It follows the
// same workflow as Chromedp and is selected with render.engine: rod.
type Rod struct {
	cfg config.RenderConfig
}

// NewRod returns the alternative engine.
func NewRod(cfg config.RenderConfig) *Rod {
	return &Rod{cfg: cfg}
}

func (e *Rod) Name() string { return config.EngineRod }

func (e *Rod) launcher(ctx context.Context, profileDir string) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(e.cfg.NoSandbox).
		UserDataDir(profileDir).
		Set("hide-scrollbars").
		Set("disable-gpu").
		Set("disable-dev-shm-usage")
	if e.cfg.NoSandbox {
		l = l.Set("disable-setuid-sandbox")
	}

	// Use pre-installed browser if specified; rod downloads Chromium otherwise.
	switch {
	case e.cfg.ChromePath != "":
		l = l.Bin(e.cfg.ChromePath)
	default:
		if path, ok := launcher.LookPath(); ok {
			l = l.Bin(path)
		}
	}
	return l
}

// Capture renders html in a new browser and returns an image of the first
// element matching the configured selector.
func (e *Rod) Capture(ctx context.Context, html string, format domain.ImageFormat) ([]byte, error) {
	profileDir, err := createProfileDir(e.cfg)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(profileDir)

	l := e.launcher(ctx, profileDir)
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	closed := false
	defer func() { shutdown(l, closed) }()

	browser := rod.New().ControlURL(u).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		err := browser.Close()
		closed = err == nil
		switch {
		case err == nil:
		case IsSessionInterrupted(err):
			logging.Debug("Browser already gone on close", "error", err)
		default:
			logging.Warn("Failed to close browser", "error", err, "engine", e.Name())
		}
	}()

	p, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	p = p.Context(ctx)

	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             e.cfg.ViewportWidth,
		Height:            e.cfg.ViewportHeight,
		DeviceScaleFactor: e.cfg.DeviceScaleFactor,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	if format == domain.FormatPNG {
		err := proto.EmulationSetDefaultBackgroundColorOverride{
			Color: &proto.DOMRGBA{R: 0, G: 0, B: 0, A: gson.Num(0)},
		}.Call(p)
		if err != nil {
			return nil, fmt.Errorf("set transparent background: %w", err)
		}
	}

	// An empty, non-nil type list counts images and fonts as well.
	waitIdle := p.WaitRequestIdle(e.cfg.NetworkIdle, nil, nil, []proto.NetworkResourceType{})
	if err := p.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	waitIdle()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := p.Eval(`() => ` + fontsReadyJS); err != nil {
		return nil, fmt.Errorf("wait for fonts: %w", err)
	}

	found, el, err := p.Has(e.cfg.Selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", e.cfg.Selector, err)
	}
	if !found {
		return nil, elementNotFound(e.cfg.Selector)
	}

	res, err := proto.DOMGetBoxModel{ObjectID: el.Object.ObjectID}.Call(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeometryUnavailable, err)
	}
	if res.Model == nil {
		return nil, fmt.Errorf("%w: no box model", domain.ErrGeometryUnavailable)
	}
	box, err := boxFromQuad(res.Model.Border)
	if err != nil {
		return nil, err
	}
	clip := box.Padded(e.cfg.Padding)

	if err := sleep(ctx, e.cfg.SettleDelay); err != nil {
		return nil, err
	}

	req := &proto.PageCaptureScreenshot{
		Format:                proto.PageCaptureScreenshotFormatPng,
		Clip:                  &proto.PageViewport{X: clip.X, Y: clip.Y, Width: clip.Width, Height: clip.Height, Scale: 1},
		FromSurface:           true,
		CaptureBeyondViewport: true,
	}
	if format == domain.FormatJPEG {
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		req.Quality = gson.Int(e.cfg.JPEGQuality)
	}
	buf, err := p.Screenshot(false, req)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// shutdown waits for a launched browser process to exit and kills it when it
// was not closed cleanly or lingers past closeTimeout.
func shutdown(l *launcher.Launcher, closed bool) {
	exited := make(chan struct{})
	go func() {
		l.Cleanup()
		close(exited)
	}()
	if closed {
		select {
		case <-exited:
			return
		case <-time.After(closeTimeout):
			logging.Warn("Browser did not exit after close, killing it")
		}
	}
	l.Kill()
}
