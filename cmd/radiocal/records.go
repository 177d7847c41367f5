package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func NewRecordsCommand() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:     "records",
		Short:   "Show the most recent measured records",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := apiClient.GetRecords(limit)
			if err != nil {
				return err
			}
			if asJSON {
				b, err := json.MarshalIndent(recs, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}
			if len(recs) == 0 {
				cmd.Println("No records yet.")
				return nil
			}
			for _, rec := range recs {
				printRecord(cmd, rec)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
