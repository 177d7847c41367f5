package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/radiocal/pkg/config"
	"github.com/charlie0129/radiocal/pkg/daemon"
)

func NewTokenCommand() *cobra.Command {
	var (
		role    string
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the daemon's TCP listener",
		Long: `Issue a bearer token for the daemon's TCP listener, signed with the jwtSecret of the
config file. Viewers may only read; controllers may also start and cancel jobs and
change settings.`,
		GroupID:     gAdvanced,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationLocal: ""},
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}
			tok, err := daemon.IssueToken(conf.JWTSecret(), subject, role, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			cmd.Println(tok)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&role, "role", daemon.RoleViewer, "token role: viewer or controller")
	f.StringVar(&subject, "subject", "radiocal", "token subject, shown in the daemon log")
	f.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
