package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/radiocal/pkg/calibration"
	"github.com/charlie0129/radiocal/pkg/config"
	"github.com/charlie0129/radiocal/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version",
		Annotations: map[string]string{annotationLocal: ""},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of radiocal",
		Long:    `Get the daemon's job status and configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return err
			}
			raw, err := apiClient.GetConfig()
			if err != nil {
				return fmt.Errorf("failed to get config: %w", err)
			}

			if asJSON {
				b, err := json.MarshalIndent(map[string]any{"status": st, "config": raw}, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			printRunStatus(cmd, st)

			conf := config.NewFileFromConfig(raw, "")
			cmd.Println()
			cmd.Println(bold("Bench configuration:"))
			if conf.DeviceEndpoint() == "" {
				cmd.Printf("  Device: %s\n", bold("simulator"))
			} else {
				cmd.Printf("  Device: %s\n", bold("%s", conf.DeviceEndpoint()))
				cmd.Printf("  Power meter: %s\n", bold("%s @ %d baud", conf.MeterPort(), conf.MeterBaudRate()))
			}
			cmd.Printf("  Packets per round: %s\n", bold("%d", conf.PacketCount()))
			cmd.Printf("  Meter read timeout: %s\n", bold("%s", conf.ReadTimeout()))
			cmd.Printf("  Records: %s\n", bold("%s", conf.RecordDir()))
			if conf.MQTTBroker() != "" {
				cmd.Printf("  MQTT: %s\n", bold("%s (%s)", conf.MQTTBroker(), conf.MQTTTopic()))
			}
			if conf.SweepSchedule() != "" {
				cmd.Printf("  Sweep schedule: %s\n", bold("%s", conf.SweepSchedule()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printRunStatus(cmd *cobra.Command, st *calibration.RunStatus) {
	phase := bold("%s", string(st.Phase))
	switch st.Phase {
	case calibration.PhaseError:
		phase = bad("%s", string(st.Phase))
	case calibration.PhaseIdle:
		phase = good("%s", string(st.Phase))
	}

	cmd.Println(bold("Job status:"))
	cmd.Printf("  Phase: %s\n", phase)
	if st.Job != "" {
		cmd.Printf("  Job: %s\n", st.Job)
	}
	if st.Phase == calibration.PhaseCalibrating {
		cmd.Printf("  State: %s\n", bold("%s", st.State.String()))
	}
	if !st.StartedAt.IsZero() {
		cmd.Printf("  Started: %s (%s ago)\n", st.StartedAt.Local().Format(time.DateTime), time.Since(st.StartedAt).Round(time.Second))
	}
	cmd.Printf("  Records taken: %s\n", bold("%d", st.Records))
	if st.LastError != "" {
		cmd.Printf("  Last error: %s\n", bad("%s", st.LastError))
	}
	if st.Last != nil {
		printResult(cmd, st.Last)
	}
	if !st.ScheduledAt.IsZero() {
		cmd.Printf("  Next scheduled sweep: %s\n", bold("%s", st.ScheduledAt.Local().Format(time.DateTime)))
	}
}

func printResult(cmd *cobra.Command, res *calibration.Result) {
	outcome := good("succeeded")
	if !res.Succeeded() {
		outcome = bad("failed with %s", res.Status)
	}
	cmd.Printf("  Last calibration: %s, %d steps, %d rounds, took %s\n",
		outcome, res.Steps, res.Rounds, res.FinishedAt.Sub(res.StartedAt).Round(time.Second))
	if res.Message != "" {
		cmd.Printf("  Message: %s\n", res.Message)
	}
}
