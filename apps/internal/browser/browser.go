// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package browser drives a Playwright controlled Chromium through identity provider sign-in pages.

One Browser is launched per test binary. Every test case gets its own Session: a fresh browser
context, which shares no cookies or storage with other contexts, and a single page in it.
*/
package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// DefaultIgnoreArgs are Chromium default arguments left out of every launch.
var DefaultIgnoreArgs = []string{"--no-sandbox", "-disable-setuid-sandbox", "--disable-extensions"}

// LaunchOptions configures Launch.
type LaunchOptions struct {
	Headless bool
	// IgnoreDefaultArgs defaults to DefaultIgnoreArgs when nil.
	IgnoreDefaultArgs []string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Browser is a running Chromium instance.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	log     *slog.Logger
}

// Launch starts the Playwright driver and a Chromium instance. The Playwright driver and
// browsers must already be installed.
func Launch(opts LaunchOptions) (*Browser, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IgnoreDefaultArgs == nil {
		opts.IgnoreDefaultArgs = DefaultIgnoreArgs
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless:          playwright.Bool(opts.Headless),
		IgnoreDefaultArgs: opts.IgnoreDefaultArgs,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}
	opts.Logger.Info("browser launched", slog.String("version", b.Version()), slog.Bool("headless", opts.Headless))
	return &Browser{pw: pw, browser: b, log: opts.Logger}, nil
}

// NewSession opens an isolated context with one page. The page's navigation timeout is
// disabled, so navigations wait as long as the identity provider takes.
func (b *Browser) NewSession() (*Session, error) {
	ctx, err := b.browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	page, err := ctx.NewPage()
	if err != nil {
		_ = ctx.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	page.SetDefaultNavigationTimeout(0)
	return &Session{Context: ctx, Page: page}, nil
}

// Close closes the browser and stops the Playwright driver.
func (b *Browser) Close() error {
	var errs []error
	if err := b.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("could not close browser: %w", err))
	}
	if err := b.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("could not stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

// Session is one test case's browser context and page.
type Session struct {
	Context playwright.BrowserContext
	Page    playwright.Page

	once sync.Once
	err  error
}

// Close closes the page, then the context. It is safe to call more than once and from
// another goroutine than the one driving the page; later calls return the first result.
func (s *Session) Close() error {
	s.once.Do(func() {
		var errs []error
		if err := s.Page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("could not close page: %w", err))
		}
		if err := s.Context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("could not close browser context: %w", err))
		}
		s.err = errors.Join(errs...)
	})
	return s.err
}
