package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Dashboard chrome hidden before printing.
var hiddenClasses = []string{
	"panel-info-corner",
	"react-resizable-handle",
}

type RenderRequest struct {
	TargetURL   string
	Viewport    Viewport
	Credentials *Credentials
}

type Timing struct {
	Setup      time.Duration
	Navigation time.Duration
	Cleanup    time.Duration
	PDF        time.Duration
	Total      time.Duration
}

type Renderer struct {
	launcher   Launcher
	chromePath string
	navTimeout time.Duration
	logger     *slog.Logger
}

func NewRenderer(l Launcher, cfg Config, logger *slog.Logger) *Renderer {
	return &Renderer{
		launcher:   l,
		chromePath: cfg.ChromePath,
		navTimeout: cfg.NavigationTimeout,
		logger:     logger,
	}
}

// Render launches a browser, loads req.TargetURL, hides dashboard chrome and
// returns the PDF as a stream. The browser is released when the stream is
// drained or closed; on error it has already been released.
func (r *Renderer) Render(ctx context.Context, req RenderRequest) (*pdfStream, Timing, error) {
	var timing Timing
	totalStart := time.Now()

	setupStart := time.Now()
	session, err := r.launcher.Launch(ctx, SessionOptions{
		ExecutablePath:    r.chromePath,
		Viewport:          req.Viewport,
		Credentials:       req.Credentials,
		NavigationTimeout: r.navTimeout,
	})
	timing.Setup = time.Since(setupStart)
	if err != nil {
		timing.Total = time.Since(totalStart)
		if !errors.Is(err, ErrLaunch) {
			err = fmt.Errorf("%w: %v", ErrLaunch, err)
		}
		return nil, timing, err
	}

	handedOff := false
	defer func() {
		if handedOff {
			return
		}
		if cerr := session.Close(); cerr != nil {
			r.logger.Warn("failed to close browser", slog.String("error", cerr.Error()))
		}
	}()

	navStart := time.Now()
	r.logger.Debug("fetching url", slog.String("url", req.TargetURL))
	err = session.Navigate(ctx, req.TargetURL)
	timing.Navigation = time.Since(navStart)
	if err != nil {
		timing.Total = time.Since(totalStart)
		if !errors.Is(err, ErrNavigation) {
			err = fmt.Errorf("%w: %v", ErrNavigation, err)
		}
		return nil, timing, err
	}

	cleanupStart := time.Now()
	hidden, err := session.HideElements(ctx, hiddenClasses)
	timing.Cleanup = time.Since(cleanupStart)
	if err != nil {
		r.logger.Warn("page cleanup failed, rendering anyway",
			slog.String("url", req.TargetURL),
			slog.String("error", err.Error()),
		)
	} else {
		r.logger.Debug("hid dashboard chrome", slog.Int("elements", hidden))
	}

	pdfStart := time.Now()
	src, err := session.PrintPDF(ctx, PDFOptions{Width: req.Viewport.Width, Height: req.Viewport.Height})
	timing.PDF = time.Since(pdfStart)
	timing.Total = time.Since(totalStart)
	if err != nil {
		if !errors.Is(err, ErrStream) {
			err = fmt.Errorf("%w: %v", ErrStream, err)
		}
		return nil, timing, err
	}

	handedOff = true
	return newPDFStream(src, session.Close), timing, nil
}
