package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mchmarny/overunder/pkg/gate"
	urfave "github.com/urfave/cli/v3"
)

type sessionStatus struct {
	Authenticated bool      `json:"authenticated" yaml:"authenticated"`
	Timestamp     int64     `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitzero" yaml:"expiresAt,omitempty"`
}

func newSessionStatus(s *gate.Session, ttl time.Duration) *sessionStatus {
	if s == nil {
		return &sessionStatus{}
	}
	return &sessionStatus{
		Authenticated: s.Authenticated,
		Timestamp:     s.Timestamp,
		ExpiresAt:     s.ExpiresAt(ttl).UTC(),
	}
}

func newAuthCmd() *urfave.Command {
	return &urfave.Command{
		Name:            "auth",
		Usage:           "Manage the access session",
		HideHelpCommand: true,
		Commands: []*urfave.Command{
			{
				Name:      "login",
				Usage:     "Start a session with an access key",
				ArgsUsage: "KEY",
				Action:    cmdLogin,
			},
			{
				Name:   "logout",
				Usage:  "End the current session",
				Action: cmdLogout,
			},
			{
				Name:   "status",
				Usage:  "Show the current session",
				Action: cmdSessionStatus,
			},
			{
				Name:   "keys",
				Usage:  "List the access keys valid today",
				Hidden: true,
				Action: cmdListKeys,
			},
		},
	}
}

func cmdLogin(_ context.Context, cmd *urfave.Command) error {
	key := cmd.Args().First()
	if key == "" {
		return fmt.Errorf("access key required")
	}

	cfg := getConfig(cmd)
	s, err := cfg.Sessions.Login(key)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	slog.Info("logged in", "expires", s.ExpiresAt(cfg.Sessions.TTL()).Format(time.RFC3339))
	return output(cmd, newSessionStatus(s, cfg.Sessions.TTL()))
}

func cmdLogout(_ context.Context, cmd *urfave.Command) error {
	if err := getConfig(cmd).Sessions.Logout(); err != nil {
		return err
	}
	slog.Info("logged out")
	return nil
}

func cmdSessionStatus(_ context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)
	s, _ := cfg.Sessions.Check()
	return output(cmd, newSessionStatus(s, cfg.Sessions.TTL()))
}

func cmdListKeys(_ context.Context, cmd *urfave.Command) error {
	return output(cmd, getConfig(cmd).Gate.CurrentKeys())
}
