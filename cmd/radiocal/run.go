package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/radiocal/pkg/bench"
	"github.com/charlie0129/radiocal/pkg/calibration"
	"github.com/charlie0129/radiocal/pkg/config"
)

// cliObserver prints session progress.
type cliObserver struct {
	cmd     *cobra.Command
	verbose bool
}

func (o *cliObserver) OnTransition(from, to calibration.State, status calibration.Status) {
	if !status.OK() {
		o.cmd.Printf("%-26s -> %-26s %s\n", from, to, bad("%s", status.String()))
		return
	}
	if o.verbose {
		o.cmd.Printf("%-26s -> %-26s %s\n", from, to, good("%s", status.String()))
	}
}

func (o *cliObserver) OnRecord(rec calibration.Record) {
	printRecord(o.cmd, rec)
}

// localBench loads the config and opens the bench it names, applying the
// command line overrides without saving them.
func localBench(ctx context.Context, packets int, timeout time.Duration) (*bench.Bench, *config.File, error) {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return nil, nil, err
	}
	if packets > 0 {
		conf.SetPacketCount(packets)
	}
	if timeout >= time.Second {
		conf.SetReadTimeout(timeout)
	}
	if err := conf.Validate(); err != nil {
		return nil, nil, err
	}
	logrus.WithFields(conf.LogrusFields()).Debug("config loaded")

	b, err := bench.Open(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	return b, conf, nil
}

func NewRunCommand() *cobra.Command {
	var (
		packets int
		timeout time.Duration
		verbose bool
	)

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run a job directly on the bench, without the daemon",
		GroupID: gAdvanced,
		Long: `Run a calibration or sweep in this process. The bench named in the config file must
not be in use by a daemon at the same time.`,
	}

	pf := cmd.PersistentFlags()
	pf.IntVar(&packets, "packets", 0, "packets per measurement round (default: from config)")
	pf.DurationVar(&timeout, "read-timeout", 0, "power meter read timeout (default: from config)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "print every state transition")

	calCmd := &cobra.Command{
		Use:         "calibration",
		Aliases:     []string{"calibrate", "cal"},
		Short:       "Calibrate the module",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationLocal: ""},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, conf, err := localBench(ctx, packets, timeout)
			if err != nil {
				return err
			}
			defer b.Close()

			sink, err := bench.OpenSinks(conf, "cal", b.MAC(ctx))
			if err != nil {
				return err
			}
			defer sink.Close()

			res, err := b.Calibrate(ctx, sink, &cliObserver{cmd: cmd, verbose: verbose})
			if res != nil {
				printResult(cmd, res)
			}
			if err != nil {
				return fmt.Errorf("calibration failed: %w", err)
			}
			return nil
		},
	}

	var flags sweepFlags
	sweepCmd := &cobra.Command{
		Use:         "sweep",
		Short:       "Sweep transmit power over channels",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationLocal: ""},
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, conf, err := localBench(ctx, packets, timeout)
			if err != nil {
				return err
			}
			defer b.Close()

			if len(opts.Channels) == 0 {
				opts.Channels = conf.SweepChannels()
			}

			sink, err := bench.OpenSinks(conf, string(opts.Mode), b.MAC(ctx))
			if err != nil {
				return err
			}
			defer sink.Close()

			sum, err := b.Sweep(ctx, opts, sink, &cliObserver{cmd: cmd, verbose: verbose})
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			cmd.Printf("Swept %s channels, %s records in %s.\n",
				bold("%d", sum.Channels), bold("%d", sum.Records), sum.FinishedAt.Sub(sum.StartedAt).Round(time.Second))
			return nil
		},
	}
	flags.register(sweepCmd.Flags())

	cmd.AddCommand(calCmd, sweepCmd)
	return cmd
}
