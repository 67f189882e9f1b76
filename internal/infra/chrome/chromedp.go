package chrome

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"html2image/internal/config"
	"html2image/internal/domain"
	"html2image/internal/infra/logging"
)

const closeTimeout = 5 * time.Second

// Chromedp captures elements with a fresh headless Chrome driven by chromedp.
type Chromedp struct {
	cfg config.RenderConfig
}

// NewChromedp returns the default engine.
func NewChromedp(cfg config.RenderConfig) *Chromedp {
	return &Chromedp{cfg: cfg}
}

func (e *Chromedp) Name() string { return config.EngineChromedp }

func (e *Chromedp) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.WindowSize(e.cfg.ViewportWidth, e.cfg.ViewportHeight),
		chromedp.Flag("hide-scrollbars", true),
		// Force software rendering and avoid Vulkan/ANGLE issues in minimal container environments.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if e.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(e.cfg.ChromePath))
	}
	if e.cfg.NoSandbox {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// Capture renders html in a new browser and returns an image of the first
// element matching the configured selector. The browser is always closed
// before Capture returns.
func (e *Chromedp) Capture(ctx context.Context, html string, format domain.ImageFormat) ([]byte, error) {
	profileDir, err := createProfileDir(e.cfg)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(profileDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, e.allocatorOptions(profileDir)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logging.Debug("chromedp: "+fmt.Sprintf(format, args...), "engine", e.Name())
		}),
	)
	defer browserCancel()
	defer closeBrowser(browserCtx)

	idle := newIdleTracker()
	chromedp.ListenTarget(browserCtx, idle.handle)

	var nodes []*cdp.Node
	err = chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.EmulateViewport(int64(e.cfg.ViewportWidth), int64(e.cfg.ViewportHeight),
			chromedp.EmulateScale(e.cfg.DeviceScaleFactor)),
		transparentBackground(format),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return idle.wait(ctx, e.cfg.NetworkIdle)
		}),
		chromedp.Evaluate(fontsReadyJS, nil, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.Nodes(e.cfg.Selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if len(nodes) == 0 {
		return nil, elementNotFound(e.cfg.Selector)
	}

	var buf []byte
	err = chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		model, err := dom.GetBoxModel().WithNodeID(nodes[0].NodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrGeometryUnavailable, err)
		}
		if model == nil {
			return fmt.Errorf("%w: no box model", domain.ErrGeometryUnavailable)
		}
		box, err := boxFromQuad(model.Border)
		if err != nil {
			return err
		}
		clip := box.Padded(e.cfg.Padding)

		if err := sleep(ctx, e.cfg.SettleDelay); err != nil {
			return err
		}

		buf, err = e.screenshot(clip, format).Do(ctx)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *Chromedp) screenshot(clip domain.Clip, format domain.ImageFormat) *page.CaptureScreenshotParams {
	p := page.CaptureScreenshot().
		WithClip(&page.Viewport{X: clip.X, Y: clip.Y, Width: clip.Width, Height: clip.Height, Scale: 1}).
		WithFromSurface(true).
		WithCaptureBeyondViewport(true)
	if format == domain.FormatJPEG {
		return p.WithFormat(page.CaptureScreenshotFormatJpeg).WithQuality(int64(e.cfg.JPEGQuality))
	}
	return p.WithFormat(page.CaptureScreenshotFormatPng)
}

// transparentBackground drops the default white page background for PNG
// output. JPEG keeps it since the format has no alpha channel.
func transparentBackground(format domain.ImageFormat) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if format != domain.FormatPNG {
			return nil
		}
		return emulation.SetDefaultBackgroundColorOverride().
			WithColor(&cdp.RGBA{R: 0, G: 0, B: 0, A: 0}).
			Do(ctx)
	})
}

// closeBrowser shuts the browser down gracefully. Failures are logged only,
// the render result stands either way.
func closeBrowser(browserCtx context.Context) {
	ctx, cancel := context.WithTimeout(browserCtx, closeTimeout)
	defer cancel()
	if err := chromedp.Cancel(ctx); err != nil {
		if IsSessionInterrupted(err) {
			logging.Debug("Browser already gone on close", "error", err)
			return
		}
		logging.Warn("Failed to close browser", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
