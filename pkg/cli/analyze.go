package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	urfave "github.com/urfave/cli/v3"
)

const fileFlagName = "file"

func newAnalyzeCmd() *urfave.Command {
	return &urfave.Command{
		Name:            "analyze",
		Aliases:         []string{"a"},
		Usage:           "Predict Over/Under for a single MD5 hash",
		ArgsUsage:       "HASH",
		UsageText:       "overunder analyze d41d8cd98f00b204e9800998ecf8427e",
		HideHelpCommand: true,
		Before:          requireSession,
		Action:          cmdAnalyze,
	}
}

func newBatchCmd() *urfave.Command {
	return &urfave.Command{
		Name:  "batch",
		Usage: "Analyze up to 50 newline separated MD5 hashes",
		UsageText: `overunder batch --file hashes.txt
   cat hashes.txt | overunder batch`,
		HideHelpCommand: true,
		Before:          requireSession,
		Action:          cmdBatch,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:    fileFlagName,
				Aliases: []string{"f"},
				Usage:   "File with one hash per line (default: stdin)",
			},
		},
	}
}

func cmdAnalyze(ctx context.Context, cmd *urfave.Command) error {
	if n := cmd.Args().Len(); n > 1 {
		return fmt.Errorf("expected one hash, got %d arguments", n)
	}

	res, err := getConfig(cmd).Analyzer.Analyze(ctx, cmd.Args().First())
	if err != nil {
		return fmt.Errorf("analyzing hash: %w", err)
	}
	return output(cmd, res)
}

func cmdBatch(ctx context.Context, cmd *urfave.Command) error {
	var r io.Reader = reader(cmd)
	if path := cmd.String(fileFlagName); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening batch file: %w", err)
		}
		defer f.Close()
		r = f
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading batch input: %w", err)
	}

	report, err := getConfig(cmd).Analyzer.AnalyzeBatch(ctx, string(b))
	if err != nil {
		return fmt.Errorf("analyzing batch: %w", err)
	}

	if report.Errors > 0 {
		slog.Warn("some hashes could not be analyzed", "processed", report.Processed, "errors", report.Errors)
	}
	return output(cmd, report)
}
