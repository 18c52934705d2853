package cli

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"slices"
	"syscall"
	"time"

	"github.com/mchmarny/overunder/pkg/config"
	"github.com/rs/cors"
	urfave "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20

	portFlagName      = "port"
	noBrowserFlagName = "no-browser"
)

//go:embed assets/* templates/*
var embedFS embed.FS

func newServerCmd() *urfave.Command {
	return &urfave.Command{
		Name:            "server",
		Aliases:         []string{"serve"},
		Usage:           "Start local HTTP server",
		HideHelpCommand: true,
		Action:          cmdStartServer,
		Flags: []urfave.Flag{
			&urfave.IntFlag{
				Name:  portFlagName,
				Usage: "Port on which the server will listen (default: from config)",
			},
			&urfave.BoolFlag{
				Name:    noBrowserFlagName,
				Aliases: []string{"nb"},
				Usage:   "Do not open browser automatically",
			},
		},
	}
}

func cmdStartServer(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)

	port := int(cmd.Int(portFlagName))
	if port == 0 {
		port = cfg.Config.Server.Port
	}
	address := fmt.Sprintf("127.0.0.1:%d", port)

	s := &http.Server{
		Addr:           address,
		Handler:        newHandler(cfg, port),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("starting server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutting down server: %w", err)
		}
		slog.Info("server stopped")
		return nil
	})

	url := fmt.Sprintf("http://%s", address)
	slog.Info("server started", "address", url)

	if !cmd.Bool(noBrowserFlagName) {
		openBrowser(url)
	}

	return g.Wait()
}

// newHandler wraps the router with the configured CORS policy. The local
// origins of port are always allowed.
func newHandler(cfg *appConfig, port int) http.Handler {
	origins := slices.Clone(cfg.Config.Server.AllowedOrigins)
	for _, o := range config.LocalOrigins(port) {
		if !slices.Contains(origins, o) {
			origins = append(origins, o)
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
		Debug:          cfg.Debug,
	})
	return c.Handler(makeRouter(cfg))
}

func makeRouter(cfg *appConfig) *http.ServeMux {
	tmpl := template.Must(template.New("").Funcs(viewFuncs).ParseFS(embedFS, "templates/*.html"))

	a := cfg.Analyzer
	s := cfg.Sessions

	mux := http.NewServeMux()

	// Static files
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(embedFS)))
	mux.HandleFunc("GET /favicon.ico", faviconHandler)

	// Views
	mux.HandleFunc("GET /{$}", homeViewHandler(tmpl, cfg))

	// Session API
	mux.HandleFunc("POST /api/auth/login", loginAPIHandler(s))
	mux.HandleFunc("POST /api/auth/logout", logoutAPIHandler(s))
	mux.HandleFunc("GET /api/auth/status", sessionAPIHandler(s))

	// Analysis API
	mux.HandleFunc("POST /api/analyze", requireSessionHandler(s, analyzeAPIHandler(a)))
	mux.HandleFunc("POST /api/batch", requireSessionHandler(s, batchAPIHandler(a)))
	mux.HandleFunc("GET /api/history", requireSessionHandler(s, historyAPIHandler(a)))
	mux.HandleFunc("DELETE /api/history", requireSessionHandler(s, clearHistoryAPIHandler(a)))
	mux.HandleFunc("GET /api/history/export", requireSessionHandler(s, exportAPIHandler(cfg)))
	mux.HandleFunc("GET /api/stats", requireSessionHandler(s, statsAPIHandler(a)))

	return mux
}

func openBrowser(url string) {
	var cmd string
	args := make([]string, 0, 1)

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
	case "linux":
		cmd = "xdg-open"
	default: // windows
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler"}
	}

	args = append(args, url)
	if err := exec.Command(cmd, args...).Start(); err != nil {
		slog.Error("failed to open browser", "error", err)
	}
}
