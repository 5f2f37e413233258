// Package session captures and persists the X browser session used by the
// API client.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/pauljones0/x-parser/internal/xclient"
)

type LoginOptions struct {
	// LoginURL defaults to https://x.com/login.
	LoginURL string
	// Timeout bounds how long the user has to finish logging in.
	Timeout time.Duration
	// PollInterval is how often the browser is checked for a session.
	PollInterval time.Duration
	// Headless hides the browser window; only useful with a pre-seeded profile.
	Headless bool
	// UserDataDir reuses a Chrome profile when set.
	UserDataDir string
}

var homeURLs = map[string]bool{
	"https://x.com/home":       true,
	"https://twitter.com/home": true,
}

// Login opens a browser on the X login page and waits for the user to sign
// in. It returns the auth_token and ct0 cookies of the new session.
func Login(ctx context.Context, opts LoginOptions) (xclient.Credentials, error) {
	if opts.LoginURL == "" {
		opts.LoginURL = "https://x.com/login"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.Flag("start-maximized", true),
		// Hides navigator.webdriver so the login page does not block automation.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(opts.LoginURL)); err != nil {
		return xclient.Credentials{}, fmt.Errorf("failed to navigate to login page: %w", err)
	}
	slog.Info("Waiting for login in browser window", "timeout", opts.Timeout)

	creds, err := waitForLogin(browserCtx, opts)
	if err != nil {
		return xclient.Credentials{}, fmt.Errorf("login failed: %w", err)
	}
	return creds, nil
}

func waitForLogin(ctx context.Context, opts LoginOptions) (xclient.Credentials, error) {
	timeout := time.After(opts.Timeout)
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return xclient.Credentials{}, fmt.Errorf("login timeout exceeded")
		case <-ctx.Done():
			return xclient.Credentials{}, ctx.Err()
		case <-ticker.C:
			var location string
			if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
				continue
			}
			if !homeURLs[location] {
				continue
			}
			cookies, err := extractCookies(ctx)
			if err != nil {
				slog.Debug("Cookie read failed, retrying", "error", err)
				continue
			}
			if creds := credentialsFromCookies(cookies); creds.Valid() {
				return creds, nil
			}
		}
	}
}

func extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	return cookies, err
}

// credentialsFromCookies picks the session cookies set on an X domain.
func credentialsFromCookies(cookies []*network.Cookie) xclient.Credentials {
	var creds xclient.Credentials
	for _, c := range cookies {
		if !isXDomain(c.Domain) {
			continue
		}
		switch c.Name {
		case "auth_token":
			creds.AuthToken = c.Value
		case "ct0":
			creds.CSRFToken = c.Value
		}
	}
	return creds
}

func isXDomain(domain string) bool {
	switch domain {
	case "x.com", ".x.com", "twitter.com", ".twitter.com":
		return true
	}
	return false
}
