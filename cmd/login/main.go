// Command login opens a browser on the X login page and saves the session
// cookies for the server to reuse.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pauljones0/x-parser/internal/config"
	"github.com/pauljones0/x-parser/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}

	path := flag.String("out", cfg.SessionPath, "where to write the session file")
	timeout := flag.Duration("timeout", 5*time.Minute, "how long to wait for the login to finish")
	profile := flag.String("profile", "", "Chrome user data dir to reuse")
	headless := flag.Bool("headless", false, "run the browser without a window")
	logout := flag.Bool("logout", false, "remove the saved session and exit")
	flag.Parse()

	if *logout {
		if err := session.ClearCredentials(*path); err != nil {
			slog.Error("Failed to remove session", "path", *path, "error", err)
			os.Exit(1)
		}
		slog.Info("Session removed", "path", *path)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	creds, err := session.Login(ctx, session.LoginOptions{
		Timeout:     *timeout,
		Headless:    *headless,
		UserDataDir: *profile,
	})
	if err != nil {
		slog.Error("Login failed", "error", err)
		os.Exit(1)
	}
	if err := session.SaveCredentials(*path, creds); err != nil {
		slog.Error("Failed to save session", "path", *path, "error", err)
		os.Exit(1)
	}
	slog.Info("Session saved", "path", *path)
}
