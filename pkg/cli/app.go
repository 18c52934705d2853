package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mchmarny/overunder/pkg/analyzer"
	"github.com/mchmarny/overunder/pkg/config"
	"github.com/mchmarny/overunder/pkg/data"
	"github.com/mchmarny/overunder/pkg/gate"
	"github.com/mchmarny/overunder/pkg/logging"
	urfave "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "overunder"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

const (
	debugFlagName   = "debug"
	homeDirFlagName = "home"
	dbFlagName      = "db"
	formatFlagName  = "format"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging("info", false)

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	HomeDir  string
	DBPath   string
	Format   string
	Debug    bool
	Config   *config.Config
	DB       *sql.DB
	Store    *data.Store
	Analyzer *analyzer.Analyzer
	Gate     *gate.KeyGate
	Sessions *gate.Sessions
	Now      func() time.Time
}

func getConfig(cmd *urfave.Command) *appConfig {
	return cmd.Root().Metadata[appConfigKey].(*appConfig)
}

// newAppConfig wires config, storage, the analyzer and the gate for one run.
func newAppConfig(homeDir, dbPath string, c *config.Config, now func() time.Time) (*appConfig, error) {
	if now == nil {
		now = time.Now
	}
	if dbPath == "" {
		dbPath = filepath.Join(homeDir, data.DataFileName)
	}

	if err := data.Init(dbPath); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	db, err := data.GetDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := data.NewStore(db)
	keys := gate.NewKeyGate(c.AccessKeys, now)

	return &appConfig{
		HomeDir: homeDir,
		DBPath:  dbPath,
		Format:  formatJSON,
		Config:  c,
		DB:      db,
		Store:   store,
		Analyzer: analyzer.New(store,
			analyzer.WithClock(now),
			analyzer.WithPace(c.BatchPace),
			analyzer.WithBatchLimit(c.BatchLimit),
		),
		Gate:     keys,
		Sessions: gate.NewSessions(keys, gate.NewKeyringStore(homeDir), c.SessionTTL, now),
		Now:      now,
	}, nil
}

func newApp() *urfave.Command {
	return &urfave.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Over/Under novelty predictions derived from MD5 hash statistics",
		Metadata:              map[string]any{},
		Flags: []urfave.Flag{
			&urfave.BoolFlag{
				Name:  debugFlagName,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&urfave.StringFlag{
				Name:    homeDirFlagName,
				Usage:   "Directory holding config, session and database (default: $HOME/.overunder)",
				Sources: urfave.EnvVars("OVERUNDER_HOME"),
			},
			&urfave.StringFlag{
				Name:    dbFlagName,
				Usage:   "Path to the Sqlite database file (default: <home>/data.db)",
				Sources: urfave.EnvVars("OVERUNDER_DB"),
			},
			&urfave.StringFlag{
				Name:  formatFlagName,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
		},
		Commands: []*urfave.Command{
			newAuthCmd(),
			newAnalyzeCmd(),
			newBatchCmd(),
			newHistoryCmd(),
			newStatsCmd(),
			newServerCmd(),
		},
		Before: func(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
			homeDir := cmd.String(homeDirFlagName)
			if homeDir == "" {
				homeDir = getHomeDir()
			}

			c, err := config.ReadOrCreate(homeDir)
			if err != nil {
				return ctx, fmt.Errorf("loading config: %w", err)
			}

			debug := cmd.Bool(debugFlagName)
			initLogging(c.LogLevel, debug)

			cfg, err := newAppConfig(homeDir, cmd.String(dbFlagName), c, time.Now)
			if err != nil {
				return ctx, err
			}
			cfg.Debug = debug

			f := cmd.String(formatFlagName)
			if f == formatYAML || f == "yml" {
				cfg.Format = formatYAML
			}

			if cmd.Metadata == nil {
				cmd.Metadata = map[string]any{}
			}
			cmd.Metadata[appConfigKey] = cfg
			return ctx, nil
		},
		After: func(ctx context.Context, cmd *urfave.Command) error {
			if cfg, ok := cmd.Metadata[appConfigKey].(*appConfig); ok && cfg.DB != nil {
				cfg.DB.Close()
			}
			return nil
		},
	}
}

// requireSession guards commands behind the access gate.
func requireSession(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
	return ctx, getConfig(cmd).Sessions.Require()
}

func initLogging(level string, debug bool) {
	if debug {
		level = "debug"
	}
	logging.SetDefaultCLILogger(level)
}

func getHomeDir() string {
	dir, created, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}
	if created {
		slog.Debug("created home dir", "path", dir)
	}
	return dir
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

func writer(cmd *urfave.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func reader(cmd *urfave.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}

func output(cmd *urfave.Command, v any) error {
	if err := encode(writer(cmd), getConfig(cmd).Format, v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
