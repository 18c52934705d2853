package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/overunder/pkg/data"
	urfave "github.com/urfave/cli/v3"
)

const (
	labelFlagName = "label"
	limitFlagName = "limit"
	outFlagName   = "out"

	exportFileMode = 0600
)

func newHistoryCmd() *urfave.Command {
	return &urfave.Command{
		Name:            "history",
		Aliases:         []string{"h"},
		Usage:           "List, clear, export or import the analysis history",
		HideHelpCommand: true,
		Before:          requireSession,
		Commands: []*urfave.Command{
			{
				Name:   "list",
				Usage:  "List saved analyses, newest first",
				Action: cmdListHistory,
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:  labelFlagName,
						Usage: "Only entries with this prediction label",
					},
					&urfave.IntFlag{
						Name:  limitFlagName,
						Usage: "Maximum number of entries",
						Value: data.HistoryLimit,
					},
				},
			},
			newClearCmd(),
			{
				Name:   "export",
				Usage:  "Write the history snapshot to a dated JSON file",
				Action: cmdExportHistory,
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:  outFlagName,
						Usage: "Target directory, or - for stdout",
						Value: ".",
					},
				},
			},
			{
				Name:   "import",
				Usage:  "Append entries from an exported snapshot",
				Action: cmdImportHistory,
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:     fileFlagName,
						Aliases:  []string{"f"},
						Usage:    "Snapshot file",
						Required: true,
					},
				},
			},
		},
	}
}

func newStatsCmd() *urfave.Command {
	return &urfave.Command{
		Name:            "stats",
		Usage:           "Show aggregate counts over the history",
		HideHelpCommand: true,
		Before:          requireSession,
		Action: func(ctx context.Context, cmd *urfave.Command) error {
			st, err := getConfig(cmd).Analyzer.Stats(ctx)
			if err != nil {
				return fmt.Errorf("getting stats: %w", err)
			}
			return output(cmd, st)
		},
	}
}

func cmdListHistory(ctx context.Context, cmd *urfave.Command) error {
	filter := data.ListFilter{
		Label: cmd.String(labelFlagName),
		Limit: int(cmd.Int(limitFlagName)),
	}

	list, err := getConfig(cmd).Analyzer.History(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing history: %w", err)
	}
	return output(cmd, list)
}

func cmdExportHistory(ctx context.Context, cmd *urfave.Command) (retErr error) {
	cfg := getConfig(cmd)
	out := cmd.String(outFlagName)

	if out == "-" {
		return cfg.Store.Export(ctx, writer(cmd))
	}

	path := filepath.Join(out, data.ExportFileName(cfg.Now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, exportFileMode)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing export file: %w", cerr)
		}
	}()

	if err := cfg.Store.Export(ctx, f); err != nil {
		return fmt.Errorf("exporting history: %w", err)
	}

	slog.Info("history exported", "path", path)
	return nil
}

func cmdImportHistory(ctx context.Context, cmd *urfave.Command) error {
	path := cmd.String(fileFlagName)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	n, err := getConfig(cmd).Store.Import(ctx, f)
	if err != nil {
		return fmt.Errorf("importing %s: %w", path, err)
	}

	slog.Info("history imported", "path", path, "entries", n)
	return nil
}
