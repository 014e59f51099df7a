package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/knowledge"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <person> <query>",
	Short: "Query the knowledge base for a person",
	Long: `Runs a similarity query against the chunks stored for a person without
involving the model.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 3, "maximum number of chunks")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchLimit < 1 {
		return fmt.Errorf("limit must be positive, got %d", searchLimit)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mesh, err := newMesh(cfg)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer mesh.Close()

	subject := args[0]
	query := strings.Join(args[1:], " ")
	hits, err := mesh.Store().Query(commandContext(cmd), query, knowledge.SubjectKey(subject), searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(hits, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	printHits(cmd, subject, hits)
	return nil
}

func printHits(cmd *cobra.Command, subject string, hits []core.ScoredChunk) {
	if len(hits) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No information found about %s in knowledge base\n", subject)
		return
	}
	for i, h := range hits {
		fmt.Fprintf(cmd.OutOrStdout(), "  [%d] %s #%d (%.2f)\n", i+1, h.SourceTitle, h.SequenceIndex, h.Score)
		fmt.Fprintf(cmd.OutOrStdout(), "      %s\n\n", h.Text)
	}
}
