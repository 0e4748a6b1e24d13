package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <url>",
		Short: "Fetches one page and re-ingests it when its content changed",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngestCommand,
	}
}

func runIngestCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	res, err := appInstance.Coordinator.IngestURL(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("ingest %s: %w", args[0], err)
	}
	return writeOutput(cmd, res)
}

func writeOutput(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
