package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/charlie0129/radiocal/pkg/client"
	"github.com/charlie0129/radiocal/pkg/version"
)

var (
	logLevel       = "info"
	logFile        = ""
	unixSocketPath = "/var/run/radiocal.sock"
	configPath     = "/etc/radiocal.json"
	daemonURL      = ""
	daemonToken    = ""
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
	}
)

// apiClient is set up from the global flags before any command runs.
var apiClient *client.Client

// annotationLocal marks commands that never talk to the daemon.
const annotationLocal = "radiocal/local"

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	if logFile != "" {
		setLogFile(logFile)
	}

	return nil
}

// setLogFile mirrors the log to a rotated file.
func setLogFile(path string) {
	logrus.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}))
	logrus.WithField("file", path).Debug("logging to file")
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: radiocal daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'radiocal daemon', or use 'radiocal run' to calibrate without it.")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with the '--always-allow-non-root-access' flag")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "radiocal",
		Short: "radiocal calibrates the transmit power of radio modules",
		Long: `radiocal calibrates the transmit power of radio modules against a bench power meter.

It walks the module's calibration state machine, measuring every step with the power
meter, and records transmit power sweeps for later analysis.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			if daemonURL != "" {
				apiClient = client.NewRemoteClient(daemonURL, daemonToken)
			} else {
				apiClient = client.NewClient(unixSocketPath)
			}

			if _, local := cmd.Annotations[annotationLocal]; local {
				return nil
			}

			if daemonVersion, err := apiClient.GetVersion(); err == nil {
				if clientVersion := version.Version; daemonVersion.Version != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion.Version,
					}).Warn("Version mismatch between client and daemon. radiocal may not work as expected.")
				}
			} else if errors.Is(err, client.ErrNotFound) {
				logrus.Error("radiocal daemon is too old to report its version.")
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&logFile, "log-file", "", "also write logs to this file, rotated")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path (.json, .yaml or .yml)")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "radiocal daemon unix socket path")
	globalFlags.StringVar(&daemonURL, "daemon-url", "", "talk to a remote daemon's TCP listener instead of the unix socket, e.g. http://bench-3:8421")
	globalFlags.StringVar(&daemonToken, "token", os.Getenv("RADIOCAL_TOKEN"), "bearer token for --daemon-url")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewCalibrationCommand(),
		NewSweepCommand(),
		NewRecordsCommand(),
		NewRunCommand(),
		NewDutyFactorCommand(),
		NewScheduleCommand(),
		NewSetCommand(),
		NewTokenCommand(),
	)

	return cmd
}
