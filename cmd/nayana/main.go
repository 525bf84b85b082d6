// Command nayana tracks eye-state signals from a camera or video file and
// serves sessions, live records and gesture bindings over HTTP.
//
// Usage:
//
//	nayana [flags] [serve]
//	nayana [flags] export <session-id> [file]
//	nayana [flags] sessions
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ayusman/nayana/internal/app"
	"github.com/ayusman/nayana/internal/config"
	"github.com/ayusman/nayana/internal/export"
	"github.com/ayusman/nayana/internal/logging"
	"github.com/ayusman/nayana/internal/server"
	"github.com/ayusman/nayana/internal/store"
	"github.com/ayusman/nayana/internal/tray"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	video := flag.String("video", "", "process a video file instead of the camera")
	noTray := flag.Bool("no-tray", false, "run without the system tray icon")
	idle := flag.Bool("idle", false, "do not start tracking until asked over HTTP")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nayana: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *video != "" {
		cfg.Capture.File = *video
	}
	if *noTray {
		cfg.Tray.Enabled = false
	}
	if err := logging.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "nayana: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		logging.Logger().Fatalf("Failed to create data directory: %v", err)
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		logging.Logger().Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(cfg, st, !*idle)
	case "export":
		err = exportSession(st, args)
	case "sessions":
		err = listSessions(st, os.Stdout)
	default:
		usage()
		st.Close()
		os.Exit(2)
	}
	if err != nil {
		logging.Error(logging.Fields{"command": cmd, "error": err.Error()}, "command failed")
		st.Close()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage:
  nayana [flags] [serve]                    track and serve the web UI
  nayana [flags] export <session-id> [file] write a session as CSV
  nayana [flags] sessions                   list recorded sessions

Flags:
`)
	flag.PrintDefaults()
}

// serve runs tracking, the HTTP server and, when enabled, the tray until a
// signal arrives or the tray quits.
func serve(cfg *config.Config, st *store.Store, autostart bool) error {
	a := app.New(app.FromConfig(cfg, st))
	if err := a.LoadSettings(); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if err := a.DiscoverPlugins(); err != nil {
		logging.Warn(logging.Fields{"dir": cfg.Plugins.Dir, "error": err.Error()}, "plugin discovery failed")
	}
	for _, p := range a.PluginManager().List() {
		logging.Info(logging.Fields{"plugin": p.Manifest.Name, "actions": p.Manifest.Actions}, "plugin loaded")
	}

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		logging.Info(logging.Fields{"dir": webDir}, "serving static files")
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		App:       a,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logging.Info(logging.Fields{"addr": cfg.Server.Addr}, "starting server")
		err := srv.ListenAndServe(cfg.Server.Addr)
		if err != nil {
			logging.Error(logging.Fields{"addr": cfg.Server.Addr, "error": err.Error()}, "server failed")
		}
		errCh <- err
	}()

	if autostart {
		if err := a.Start(); err != nil {
			logging.Error(logging.Fields{"source": a.Camera().Source(), "error": err.Error()}, "failed to start tracking")
		}
	}

	var t *tray.Tray
	if cfg.Tray.Enabled {
		t = newTray(a, cfg.Server.Addr, stop)
		go refreshTray(ctx, t, a)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// systray owns the main thread until Quit.
		t.Run()
	} else {
		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				a.Close()
				return err
			}
		}
	}

	logging.Info(nil, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn(logging.Fields{"error": err.Error()}, "server shutdown failed")
	}
	return a.Close()
}

func newTray(a *app.App, addr string, quit func()) *tray.Tray {
	t := tray.New(a.IsEnabled())
	t.OnToggle(a.SetEnabled)
	t.OnReset(a.Reset)
	t.OnSettings(func() {
		if err := openBrowser(browserURL(addr)); err != nil {
			logging.Warn(logging.Fields{"error": err.Error()}, "failed to open browser")
		}
	})
	t.OnQuit(quit)
	return t
}

func refreshTray(ctx context.Context, t *tray.Tray, a *app.App) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Update(a.Status())
		}
	}
}

// exportSession writes a stored session as CSV to a file or stdout.
func exportSession(st *store.Store, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: nayana export <session-id> [file]")
	}
	id := args[0]
	if _, err := st.Sessions().GetByID(id); err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}

	var w io.Writer = os.Stdout
	if len(args) == 2 {
		f, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", args[1], err)
		}
		defer f.Close()
		w = f
	}

	if err := export.WriteSession(w, st.Records(), id); err != nil {
		return err
	}
	if f, ok := w.(*os.File); ok && f != os.Stdout {
		return f.Sync()
	}
	return nil
}

func listSessions(st *store.Store, w io.Writer) error {
	sessions, err := st.Sessions().List()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSOURCE\tFRAMES\tBLINKS\tAVG FPS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.1f\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.Source, s.TotalFrames, s.Blinks, s.AvgFPS)
	}
	return tw.Flush()
}

// defaultConfigPath returns ~/.nayana/config.yaml when it exists.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(home, ".nayana", "config.yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.nayana/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".nayana", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

// browserURL turns a listen address into a local URL.
func browserURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
