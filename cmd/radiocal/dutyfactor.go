package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/charlie0129/radiocal/pkg/client"
	"github.com/charlie0129/radiocal/pkg/dutyfactor"
)

func NewDutyFactorCommand() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:     "duty-factor <module-id> <firmware>",
		Aliases: []string{"df"},
		Short:   "Show the duty factor and meter correction for a module",
		GroupID: gAdvanced,
		Example: `  radiocal duty-factor 0xFD 199.2
  radiocal duty-factor 0x0D 196`,
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{annotationLocal: ""},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 0, 8)
			if err != nil {
				return fmt.Errorf("invalid module id %q: %v", args[0], err)
			}

			var df *client.DutyFactor
			if remote {
				if df, err = apiClient.GetDutyFactor(uint8(id), args[1]); err != nil {
					return err
				}
			} else {
				var major, minor int
				if n, _ := fmt.Sscanf(args[1], "%d.%d", &major, &minor); n == 0 {
					return fmt.Errorf("invalid firmware version %q", args[1])
				}
				mod, fw := dutyfactor.ModuleID(id), dutyfactor.NewFirmwareVersion(major, minor)
				f := dutyfactor.Resolve(mod, fw)
				df = &client.DutyFactor{
					Module:       fmt.Sprintf("0x%02X", id),
					Family:       dutyfactor.FamilyOf(mod).String(),
					Firmware:     fw.String(),
					DutyFactor:   f,
					CorrectionDB: dutyfactor.CorrectionDB(f),
					TPM:          dutyfactor.SupportsTPM(mod, fw),
				}
			}

			cmd.Printf("Module %s (%s), firmware %s\n", bold("%s", df.Module), df.Family, df.Firmware)
			cmd.Printf("  Duty factor: %s\n", bold("%.0f%%", df.DutyFactor*100))
			cmd.Printf("  Meter correction: %s\n", bold("%.2f dB", df.CorrectionDB))
			cmd.Printf("  Transmit power management: %s\n", bold("%t", df.TPM))
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "ask the daemon instead of resolving locally")
	return cmd
}
