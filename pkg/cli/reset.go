package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"

	urfave "github.com/urfave/cli/v3"
)

const yesFlagName = "yes"

func newClearCmd() *urfave.Command {
	return &urfave.Command{
		Name:            "clear",
		Usage:           "Delete the whole analysis history",
		HideHelpCommand: true,
		Action:          cmdClearHistory,
		Flags: []urfave.Flag{
			&urfave.BoolFlag{
				Name:    yesFlagName,
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
		},
	}
}

func cmdClearHistory(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)
	w := writer(cmd)

	if !cmd.Bool(yesFlagName) {
		fmt.Fprintf(w, "This will permanently delete the analysis history in %s\n", cfg.DBPath)
		fmt.Fprint(w, "Are you sure? [y/N]: ")

		answer, err := bufio.NewReader(reader(cmd)).ReadString('\n')
		if err != nil && answer == "" {
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	if err := cfg.Analyzer.Clear(ctx); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}

	slog.Info("history cleared", "path", cfg.DBPath)
	return nil
}
