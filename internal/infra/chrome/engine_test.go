package chrome

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"html2image/internal/config"
	"html2image/internal/domain"
)

const cardHTML = `<!doctype html>
<html><body style="margin:0">
<div class="code-container" style="position:absolute;left:20px;top:30px;width:200px;height:100px;background:#336699"></div>
</body></html>`

func engineConfig(t *testing.T) config.RenderConfig {
	t.Helper()
	cfg := config.Defaults().Render
	cfg.UserDataDir = t.TempDir()
	cfg.NetworkIdle = 100 * time.Millisecond
	cfg.SettleDelay = 10 * time.Millisecond
	return cfg
}

func chromeBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome binary available")
	return ""
}

func TestChromedpCapture_MissingBinary(t *testing.T) {
	cfg := engineConfig(t)
	cfg.ChromePath = "/nonexistent/chrome"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := NewChromedp(cfg).Capture(ctx, cardHTML, domain.FormatPNG)
	require.Error(t, err)

	entries, err := os.ReadDir(cfg.UserDataDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "profile dir must be removed after a failed launch")
}

func TestEngineNames(t *testing.T) {
	cfg := config.Defaults().Render
	assert.Equal(t, "chromedp", NewChromedp(cfg).Name())
	assert.Equal(t, "rod", NewRod(cfg).Name())
}

type captureEngine interface {
	Capture(ctx context.Context, html string, format domain.ImageFormat) ([]byte, error)
	Name() string
}

func TestEnginesCaptureElement(t *testing.T) {
	bin := chromeBinary(t)
	cfg := engineConfig(t)
	cfg.ChromePath = bin

	for _, e := range []captureEngine{NewChromedp(cfg), NewRod(cfg)} {
		t.Run(e.Name(), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			for _, format := range []domain.ImageFormat{domain.FormatPNG, domain.FormatJPEG} {
				buf, err := e.Capture(ctx, cardHTML, format)
				require.NoError(t, err)

				img, err := imaging.Decode(bytes.NewReader(buf))
				require.NoError(t, err)

				// (200 + 2*4) x (100 + 2*4) CSS pixels at scale 2
				b := img.Bounds()
				assert.InDelta(t, 416, b.Dx(), 2, "width for %s", format)
				assert.InDelta(t, 216, b.Dy(), 2, "height for %s", format)

				// The corner lies in the padding, outside the element: transparent
				// for PNG, filled with the default page background for JPEG.
				_, _, _, cornerA := img.At(b.Min.X+1, b.Min.Y+1).RGBA()
				_, _, _, centerA := img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2).RGBA()
				assert.Equal(t, uint32(0xffff), centerA, "element pixel must be opaque for %s", format)
				if format == domain.FormatPNG {
					assert.Zero(t, cornerA, "png padding must be transparent")
				} else {
					assert.Equal(t, uint32(0xffff), cornerA, "jpeg padding must be opaque")
				}
			}
		})
	}
}

func TestEnginesElementNotFound(t *testing.T) {
	bin := chromeBinary(t)
	cfg := engineConfig(t)
	cfg.ChromePath = bin

	for _, e := range []captureEngine{NewChromedp(cfg), NewRod(cfg)} {
		t.Run(e.Name(), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			_, err := e.Capture(ctx, `<html><body><p>no container</p></body></html>`, domain.FormatPNG)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrElementNotFound), "got %v", err)
		})
	}
}
