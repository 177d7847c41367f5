package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/radiocal/pkg/config"
	"github.com/charlie0129/radiocal/pkg/daemon"
	"github.com/charlie0129/radiocal/pkg/version"
)

var (
	// alwaysAllowNonRootAccess indicates whether to always allow non-root users to access the radiocal daemon.
	alwaysAllowNonRootAccess = false
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "daemon",
		Short:       "Run radiocal daemon in the foreground",
		GroupID:     gAdvanced,
		Annotations: map[string]string{annotationLocal: ""},
		RunE: func(_ *cobra.Command, _ []string) error {
			if logFile == "" {
				if c, err := config.NewFile(configPath); err == nil && c.LogFile() != "" {
					setLogFile(c.LogFile())
				}
			}

			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("radiocal daemon starting")
			return daemon.Run(configPath, unixSocketPath, alwaysAllowNonRootAccess)
		},
	}

	f := cmd.Flags()

	f.BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")

	return cmd
}
