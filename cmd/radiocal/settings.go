package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newSetting(use, short string, args cobra.PositionalArgs, set func(args []string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(_ *cobra.Command, args []string) error {
			ret, err := set(args)
			if err != nil {
				return err
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			return nil
		},
	}
}

func NewSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "set",
		Short:   "Change daemon settings",
		GroupID: gAdvanced,
		Long:    "Change daemon settings. Changes are saved to the daemon's config file and apply from the next job.",
	}

	cmd.AddCommand(
		newSetting("packet-count <n>", "Set the packets transmitted per measurement round", cobra.ExactArgs(1),
			func(args []string) (string, error) {
				n, err := parseIntArg(args, "packet count")
				if err != nil {
					return "", err
				}
				if n <= 0 {
					return "", fmt.Errorf("packet count must be positive, got %d", n)
				}
				return apiClient.SetPacketCount(n)
			}),
		newSetting("read-timeout <duration>", "Set the power meter read timeout", cobra.ExactArgs(1),
			func(args []string) (string, error) {
				d, err := time.ParseDuration(args[0])
				if err != nil {
					return "", fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				return apiClient.SetReadTimeout(d)
			}),
		newSetting("sweep-channels <channels>", "Set the channels of scheduled sweeps, e.g. 8-34", cobra.ExactArgs(1),
			func(args []string) (string, error) {
				chs, err := parseChannels(args[0])
				if err != nil {
					return "", err
				}
				return apiClient.SetSweepChannels(chs)
			}),
	)

	return cmd
}
