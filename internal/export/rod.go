package export

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/sirmark/resume/internal/logger"
)

// initial viewport height; full-page capture grows it to the content height.
const captureViewportHeight = 900

// RodCapturer rasterizes pages in headless Chrome.
type RodCapturer struct {
	controlURL string
	log        logger.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewRodCapturer connects to the Chrome DevTools endpoint at controlURL, or
// launches a local headless Chrome on first use when controlURL is empty.
func NewRodCapturer(controlURL string, log logger.Logger) *RodCapturer {
	return &RodCapturer{controlURL: controlURL, log: log}
}

func (c *RodCapturer) connect() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return c.browser, nil
	}

	wsURL := c.controlURL
	if wsURL == "" {
		l := launcher.New().Headless(true).Set("hide-scrollbars")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		c.lnch = l
		wsURL = u
		c.log.Info("Launched headless chrome", logger.String("url", wsURL))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect chrome: %w", err)
	}
	c.browser = b
	return b, nil
}

// Capture renders url and returns a full-page JPEG screenshot.
func (c *RodCapturer) Capture(ctx context.Context, url string, req CaptureRequest) ([]byte, error) {
	b, err := c.connect()
	if err != nil {
		return nil, err
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	// closed outside ctx so a timed-out capture still releases its tab
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			c.log.Warn("Failed to close capture page", logger.Error(closeErr))
		}
	}()

	return c.render(page.Context(ctx), url, req)
}

func (c *RodCapturer) render(page *rod.Page, url string, req CaptureRequest) ([]byte, error) {
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             req.ViewportWidth,
		Height:            captureViewportHeight,
		DeviceScaleFactor: req.Scale,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	quality := req.Quality
	data, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: &quality,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return data, nil
}

// Close shuts down the browser connection and any launched Chrome.
func (c *RodCapturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	if c.lnch != nil {
		c.lnch.Kill()
		c.lnch.Cleanup()
		c.lnch = nil
	}
	return err
}
