package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/charlie0129/radiocal/pkg/sweep"
)

// sweepFlags are the flags shared by "sweep" and "run sweep".
type sweepFlags struct {
	mode         string
	channels     string
	delay        int
	samples      string
	replications int
}

func (f *sweepFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.mode, "mode", string(sweep.ModeTxpo), "sweep mode: txpo or pdout-params")
	fs.StringVar(&f.channels, "channels", "", "channels to visit, e.g. 8,9,12-15 (default: the configured sweep channels, or 8-34)")
	fs.IntVar(&f.delay, "delay", 0, "pdout sampling delay (default depends on mode)")
	fs.StringVar(&f.samples, "samples", "", "comma separated pdout sample counts (default depends on mode)")
	fs.IntVar(&f.replications, "replications", 0, "pdout readings per sample count (default depends on mode)")
}

func (f *sweepFlags) options() (sweep.Options, error) {
	mode, err := sweep.ParseMode(f.mode)
	if err != nil {
		return sweep.Options{}, err
	}
	opts := sweep.Options{Mode: mode, Delay: f.delay, Replications: f.replications}
	if f.channels != "" {
		if opts.Channels, err = parseChannels(f.channels); err != nil {
			return sweep.Options{}, err
		}
	}
	if f.samples != "" {
		if opts.Samples, err = parseInts(f.samples); err != nil {
			return sweep.Options{}, err
		}
	}
	return opts, nil
}

func NewSweepCommand() *cobra.Command {
	var (
		flags sweepFlags
		watch bool
	)

	cmd := &cobra.Command{
		Use:     "sweep",
		Short:   "Run a transmit power sweep on the daemon",
		GroupID: gBasic,
		Long: `Run a transmit power sweep on the daemon.

For every channel the module transmits a burst while the power meter measures it. The
temperature, gain control word, measured power and power detector output are recorded.
In pdout-params mode the gain control is pinned and the power detector is read with
several sample counts.`,
		Example: `  radiocal sweep
  radiocal sweep --channels 8-12 --watch
  radiocal sweep --mode pdout-params --samples 4,16,64`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			job, err := apiClient.StartSweep(opts)
			if err != nil {
				return fmt.Errorf("failed to start sweep: %w", err)
			}
			cmd.Printf("Sweep started (%s).\n", job)
			if watch {
				return watchJob(cmd, job)
			}
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "follow the sweep until it finishes")
	return cmd
}
