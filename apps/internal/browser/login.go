// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package browser

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Element selectors on the Microsoft login pages and the ADFS 2019 forms-based sign-in page.
const (
	SelectorUsername      = "#i0116"
	SelectorNext          = "#idSIButton9"
	SelectorADFSPassword  = "#passwordInput"
	SelectorADFSSubmit    = "#submitButton"
	SelectorConsentAccept = "#idSIButton9"
)

// Flow signs a user in through the login pages an app redirected the page to.
type Flow struct {
	// HomeRoute is the app's root URL. A sign-in is complete once the page is back on it.
	HomeRoute string
	// Screenshot, if set, records each login page.
	Screenshot *Screenshot
	// ReturnTimeout bounds the wait for the redirect back to HomeRoute. Zero waits forever.
	ReturnTimeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (f Flow) log() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// EnterCredentialsADFS enters username on the Microsoft login page, follows the federation
// redirect to ADFS, submits password there and waits for the redirect back to the app.
func (f Flow) EnterCredentialsADFS(page playwright.Page, username, password string) error {
	if err := f.enterUsername(page, username); err != nil {
		return err
	}
	if err := f.enterADFSPassword(page, password); err != nil {
		return err
	}
	return f.waitForApp(page)
}

// EnterCredentialsADFSWithConsent is EnterCredentialsADFS for a sign-in that ends on the
// consent page, which is accepted.
func (f Flow) EnterCredentialsADFSWithConsent(page playwright.Page, username, password string) error {
	if err := f.enterUsername(page, username); err != nil {
		return err
	}
	if err := f.enterADFSPassword(page, password); err != nil {
		return err
	}
	accept, err := WaitVisible(page, SelectorConsentAccept)
	if err != nil {
		return err
	}
	f.screenshot(page, "consentPage")
	if err := accept.Click(); err != nil {
		return fmt.Errorf("could not accept consent: %w", err)
	}
	return f.waitForApp(page)
}

func (f Flow) enterUsername(page playwright.Page, username string) error {
	input, err := WaitVisible(page, SelectorUsername)
	if err != nil {
		return err
	}
	f.screenshot(page, "loginPage")
	if err := input.Fill(username); err != nil {
		return fmt.Errorf("could not enter username: %w", err)
	}
	if err := page.Locator(SelectorNext).Click(); err != nil {
		return fmt.Errorf("could not submit username: %w", err)
	}
	f.log().Debug("username submitted", slog.String("url", page.URL()))
	return nil
}

func (f Flow) enterADFSPassword(page playwright.Page, password string) error {
	input, err := WaitVisible(page, SelectorADFSPassword)
	if err != nil {
		return err
	}
	f.screenshot(page, "adfsLoginPage")
	if err := input.Fill(password); err != nil {
		return fmt.Errorf("could not enter password: %w", err)
	}
	if err := page.Locator(SelectorADFSSubmit).Click(); err != nil {
		return fmt.Errorf("could not submit password: %w", err)
	}
	f.log().Debug("password submitted", slog.String("url", page.URL()))
	return nil
}

// waitForApp blocks until the page has navigated back to HomeRoute and loaded.
func (f Flow) waitForApp(page playwright.Page) error {
	if f.HomeRoute == "" {
		if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: playwright.LoadStateNetworkidle}); err != nil {
			return fmt.Errorf("page did not settle after sign-in: %w", err)
		}
		return nil
	}
	back := regexp.MustCompile("^" + regexp.QuoteMeta(strings.TrimSuffix(f.HomeRoute, "/")) + "([/?#]|$)")
	opts := playwright.PageWaitForURLOptions{Timeout: playwright.Float(float64(f.ReturnTimeout.Milliseconds()))}
	if err := page.WaitForURL(back, opts); err != nil {
		return fmt.Errorf("page did not return to %s: %w", f.HomeRoute, err)
	}
	f.log().Debug("returned to app", slog.String("url", page.URL()))
	return nil
}

func (f Flow) screenshot(page playwright.Page, name string) {
	if f.Screenshot == nil {
		return
	}
	if err := f.Screenshot.Take(page, name); err != nil {
		f.log().Warn("screenshot failed", slog.String("name", name), slog.Any("error", err))
	}
}

// WaitVisible waits for the first element matching selector to be visible.
func WaitVisible(page playwright.Page, selector string) (playwright.Locator, error) {
	l := page.Locator(selector).First()
	if err := l.WaitFor(playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible}); err != nil {
		return nil, fmt.Errorf("element %s did not appear on %s: %w", selector, page.URL(), err)
	}
	return l, nil
}

// InputValue returns the current value of the input matching selector.
func InputValue(page playwright.Page, selector string) (string, error) {
	l, err := WaitVisible(page, selector)
	if err != nil {
		return "", err
	}
	v, err := l.InputValue()
	if err != nil {
		return "", fmt.Errorf("could not read %s: %w", selector, err)
	}
	return v, nil
}

// BodyHTML returns the inner HTML of the page body.
func BodyHTML(page playwright.Page) (string, error) {
	html, err := page.Locator("body").InnerHTML()
	if err != nil {
		return "", fmt.Errorf("could not read page body: %w", err)
	}
	return html, nil
}
