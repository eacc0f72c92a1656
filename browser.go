package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// networkIdleWindow is how long the page must have no in-flight requests
// before it counts as rendered.
const networkIdleWindow = 500 * time.Millisecond

// idleIgnoredTypes are long-lived channels that never finish loading.
// Everything else, images and fonts included, must settle before the page
// counts as idle.
var idleIgnoredTypes = []proto.NetworkResourceType{
	proto.NetworkResourceTypeWebSocket,
	proto.NetworkResourceTypeEventSource,
}

// closeGrace bounds how long Close waits for Chromium to exit on its own
// after Browser.close before killing it.
const closeGrace = 5 * time.Second

// cssPixelsPerInch converts viewport pixels to the inches printToPDF expects.
const cssPixelsPerInch = 96.0

type Viewport struct {
	Width  int
	Height int
}

type Credentials struct {
	Username string
	Password string
}

// Header returns the value of an HTTP Basic Authorization header.
func (c Credentials) Header() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}

type SessionOptions struct {
	ExecutablePath    string
	Viewport          Viewport
	Credentials       *Credentials
	NavigationTimeout time.Duration
}

type PDFOptions struct {
	Width  int
	Height int
}

// Session is one headless browser process driving a single page.
// Close must be called exactly once after a successful Launch.
type Session interface {
	Navigate(ctx context.Context, url string) error
	HideElements(ctx context.Context, classNames []string) (int, error)
	PrintPDF(ctx context.Context, opts PDFOptions) (io.ReadCloser, error)
	Close() error
}

type Launcher interface {
	Launch(ctx context.Context, opts SessionOptions) (Session, error)
}

var (
	_ Launcher = (*RodLauncher)(nil)
	_ Session  = (*rodSession)(nil)
)

// RodLauncher starts a fresh Chromium per session through go-rod. When no
// executable path is given rod looks one up, downloading it if needed.
type RodLauncher struct {
	logger *slog.Logger
}

func NewRodLauncher(logger *slog.Logger) *RodLauncher {
	return &RodLauncher{logger: logger}
}

type rodSession struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
	navTimeout time.Duration
	logger     *slog.Logger
}

func (l *RodLauncher) Launch(ctx context.Context, opts SessionOptions) (Session, error) {
	l.logger.Debug("launching chromium", slog.String("bin", executableLabel(opts.ExecutablePath)))

	lch := launcher.New().
		Context(ctx).
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-sync").
		Set("disable-translate").
		Set("no-first-run").
		Set("hide-scrollbars").
		Set("mute-audio")
	if opts.ExecutablePath != "" {
		lch = lch.Bin(opts.ExecutablePath)
	}

	controlURL, err := startBrowser(lch)
	if err != nil {
		return nil, err
	}

	s := &rodSession{
		launcher:   lch,
		browser:    rod.New().ControlURL(controlURL),
		navTimeout: opts.NavigationTimeout,
		logger:     l.logger,
	}

	if err := s.browser.Connect(); err != nil {
		s.kill()
		return nil, fmt.Errorf("%w: connecting: %v", ErrLaunch, err)
	}

	if err := s.openPage(opts); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	return s, nil
}

// startBrowser launches lch. On failure the process is killed and its
// profile directory removed; Cleanup would block on a process that never
// started.
func startBrowser(lch *launcher.Launcher) (string, error) {
	controlURL, err := lch.Launch()
	if err != nil {
		lch.Kill()
		if dir := lch.Get(flags.UserDataDir); dir != "" {
			_ = os.RemoveAll(dir)
		}
		return "", fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	return controlURL, nil
}

func viewportOverride(v Viewport) *proto.EmulationSetDeviceMetricsOverride {
	return &proto.EmulationSetDeviceMetricsOverride{
		Width:             v.Width,
		Height:            v.Height,
		DeviceScaleFactor: 2,
		Mobile:            false,
	}
}

// buildPDFOptions prints one page the size of the viewport, edge to edge.
func buildPDFOptions(opts PDFOptions) *proto.PagePrintToPDF {
	return &proto.PagePrintToPDF{
		PaperWidth:          floatPtr(float64(opts.Width) / cssPixelsPerInch),
		PaperHeight:         floatPtr(float64(opts.Height) / cssPixelsPerInch),
		Scale:               floatPtr(1),
		DisplayHeaderFooter: false,
		MarginTop:           floatPtr(0),
		MarginRight:         floatPtr(0),
		MarginBottom:        floatPtr(0),
		MarginLeft:          floatPtr(0),
		PrintBackground:     true,
	}
}

func (s *rodSession) openPage(opts SessionOptions) error {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("creating page: %w", err)
	}
	s.page = page

	if err := page.SetViewport(viewportOverride(opts.Viewport)); err != nil {
		return fmt.Errorf("setting viewport: %w", err)
	}

	if opts.Credentials != nil {
		if _, err := page.SetExtraHeaders([]string{"Authorization", opts.Credentials.Header()}); err != nil {
			return fmt.Errorf("setting auth header: %w", err)
		}
	}
	return nil
}

// Navigate loads url and blocks until no request has been in flight for
// networkIdleWindow.
func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if s.navTimeout > 0 {
		p = p.Timeout(s.navTimeout)
		defer p.CancelTimeout()
	}

	// Registered before navigating so the initial burst of requests is seen.
	waitIdle := p.WaitRequestIdle(networkIdleWindow, nil, nil, idleIgnoredTypes)

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	waitIdle()

	if err := p.GetContext().Err(); err != nil {
		return fmt.Errorf("%w: waiting for network idle: %v", ErrNavigation, err)
	}
	return nil
}

const hideElementsJS = `(classNames) => {
	let hidden = 0;
	for (const name of classNames) {
		for (const el of document.getElementsByClassName(name)) {
			el.style.visibility = 'hidden';
			hidden++;
		}
	}
	return hidden;
}`

// HideElements sets visibility:hidden on every element carrying one of the
// given classes and returns how many were hidden.
func (s *rodSession) HideElements(ctx context.Context, classNames []string) (int, error) {
	res, err := s.page.Context(ctx).Eval(hideElementsJS, classNames)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}
	return res.Value.Int(), nil
}

// PrintPDF asks Chromium for the PDF as a stream; bytes are pulled from the
// browser as the returned reader is read.
func (s *rodSession) PrintPDF(ctx context.Context, opts PDFOptions) (io.ReadCloser, error) {
	r, err := s.page.Context(ctx).PDF(buildPDFOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStream, err)
	}
	return r, nil
}

// Close terminates the browser process and removes its profile directory.
// The process is only killed when it rejects Browser.close or outlives closeGrace.
func (s *rodSession) Close() error {
	err := s.browser.Close()
	if err == nil {
		exited := make(chan struct{})
		go func() {
			s.launcher.Cleanup()
			close(exited)
		}()
		select {
		case <-exited:
			s.logger.Debug("terminated chromium")
		case <-time.After(closeGrace):
			s.launcher.Kill()
			<-exited
			s.logger.Debug("killed chromium after close grace")
		}
		return nil
	}

	s.kill()
	s.logger.Debug("killed chromium", slog.String("error", err.Error()))
	return fmt.Errorf("closing browser: %w", err)
}

func (s *rodSession) kill() {
	s.launcher.Kill()
	s.launcher.Cleanup()
}

func executableLabel(path string) string {
	if path == "" {
		return "(rod default)"
	}
	return path
}

func floatPtr(v float64) *float64 {
	return &v
}
