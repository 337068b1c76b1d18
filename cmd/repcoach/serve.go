package main

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ayusman/repcoach/internal/app"
	"github.com/ayusman/repcoach/internal/tracker"
	"github.com/ayusman/repcoach/internal/tray"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var withTray bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the coaching server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("tray") {
				cfg.Tray.Enabled = withTray
			}
			if cfg.Server.StaticDir == "" {
				cfg.Server.StaticDir = findWebDir(cfg.DataDir)
			}
			if cfg.Server.StaticDir != "" {
				log.Info().Str("dir", cfg.Server.StaticDir).Msg("serving static files")
			}

			a, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			if err := a.Start(); err != nil {
				a.Stop(context.Background())
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Tray.Enabled {
				exerciseID, _ := a.TrayTarget()
				runTray(ctx, a, exerciseID, log)
			} else {
				<-ctx.Done()
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.Stop(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&withTray, "tray", false, "Show the system tray menu")
	return cmd
}

// runTray blocks on the tray event loop until Quit is clicked or ctx ends.
func runTray(ctx context.Context, a *app.App, exerciseID string, log zerolog.Logger) {
	t := tray.New(exerciseID)

	t.OnToggle(func(enabled bool) error {
		err := a.ToggleMonitoring(ctx, enabled)
		if err != nil {
			log.Error().Err(err).Bool("enabled", enabled).Msg("toggle monitoring failed")
		}
		return err
	})
	t.OnFinish(func() {
		summary, err := a.FinishActive(ctx)
		if err != nil && !errors.Is(err, app.ErrNotMonitoring) {
			log.Error().Err(err).Msg("finish session failed")
			return
		}
		log.Info().Int("reps", summary.Reps).Float64("form_accuracy", summary.FormAccuracy).Msg("tray session finished")
	})
	t.OnOpen(func() {
		if err := openBrowser(browserURL(a.Addr())); err != nil {
			log.Warn().Err(err).Msg("failed to open browser")
		}
	})
	lastReps, lastPhase := -1, ""
	a.OnUpdate(func(u tracker.Update) {
		if u.Reps == lastReps && u.CurrentPhase == lastPhase {
			return
		}
		lastReps, lastPhase = u.Reps, u.CurrentPhase
		t.SetStatus(u.Reps, u.CurrentPhase)
	})

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
}

// browserURL turns a listen address into a loopback URL.
func browserURL(addr string) string {
	host := addr
	if strings.HasPrefix(host, "[::]") || strings.HasPrefix(host, "0.0.0.0") || strings.HasPrefix(host, ":") {
		host = "localhost" + host[strings.LastIndex(host, ":"):]
	}
	return "http://" + host + "/"
}

func openBrowser(url string) error {
	var name string
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		name = "xdg-open"
	}
	return exec.Command(name, url).Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
