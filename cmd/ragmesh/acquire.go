package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/ragmesh/knowledge"
)

var acquireJSON bool

var acquireCmd = &cobra.Command{
	Use:   "acquire <person>...",
	Short: "Fetch people from Wikipedia into the knowledge base",
	Long: `Fetches each person's Wikipedia page, splits it into chunks and stores
them. Re-acquiring a person overwrites the stored chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAcquire,
}

func init() {
	acquireCmd.Flags().BoolVar(&acquireJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(acquireCmd)
}

func runAcquire(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mesh, err := newMesh(cfg)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer mesh.Close()

	ctx := commandContext(cmd)
	results := make(map[string]knowledge.AcquisitionResult, len(args))
	failed := 0
	for _, subject := range args {
		subject = strings.TrimSpace(subject)
		res := mesh.Acquire(ctx, subject)
		results[subject] = res
		if !res.Success {
			failed++
		}
		if !acquireJSON {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", subject, res.Message)
		}
	}

	if acquireJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d subjects could not be acquired", failed, len(args))
	}
	return nil
}
