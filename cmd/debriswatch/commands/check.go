package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/orbit"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the catalog and report what would be served",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := catalog.Load(cmd.Context(), loadConfig(), logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Catalog source:       %s\n", store.Source())
			fmt.Fprintf(out, "Total records:        %d\n", store.CountRecords())
			fmt.Fprintf(out, "Unique satellites:    %d\n", store.CountUniqueSatellites())

			ids := store.ListIDs(0)
			if len(ids) == 0 {
				return fmt.Errorf("catalog %s has no records", store.Source())
			}

			// A record that SGP4 rejects can still be served by the
			// closed-form orbit, but not as a ground track.
			var unpropagated int
			for _, id := range ids {
				rec, _ := store.Get(id)
				if _, err := orbit.SynthesizeTLE(rec, store.LoadedAt()); err != nil {
					unpropagated++
				}
			}
			fmt.Fprintf(out, "Without ground track: %d\n", unpropagated)
			fmt.Fprintln(out, "OK")
			return nil
		},
	}
}
