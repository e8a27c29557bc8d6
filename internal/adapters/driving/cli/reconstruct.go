package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

var (
	reconstructCollection string
	reconstructBefore     int
	reconstructAfter      int
)

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct <message-id>",
	Short: "Reconstruct the conversation around a message",
	Long: `Returns the target message alongside up to --before and --after
chronological neighbors sharing the same contact, per the conversation
reconstruction algorithm.`,
	Args: cobra.ExactArgs(1),
	RunE: runReconstruct,
}

func init() {
	reconstructCmd.Flags().StringVar(&reconstructCollection, "collection", "", "collection holding the message (required)")
	reconstructCmd.Flags().IntVar(&reconstructBefore, "before", 5, "neighbors to include before the target")
	reconstructCmd.Flags().IntVar(&reconstructAfter, "after", 5, "neighbors to include after the target")
	rootCmd.AddCommand(reconstructCmd)
}

func runReconstruct(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}
	if reconstructCollection == "" {
		return errors.New("--collection is required")
	}

	result, err := searchService.Reconstruct(context.Background(), domain.ReconstructionRequest{
		Collection:   reconstructCollection,
		MessageID:    args[0],
		WindowBefore: reconstructBefore,
		WindowAfter:  reconstructAfter,
	})
	if err != nil {
		return fmt.Errorf("reconstruct failed: %w", err)
	}

	for _, r := range result.Before {
		cmd.Printf("  %s  %s\n", r.ID, truncate(r.Document, 140))
	}
	cmd.Printf("> %s  %s\n", result.Target.ID, truncate(result.Target.Document, 140))
	for _, r := range result.After {
		cmd.Printf("  %s  %s\n", r.ID, truncate(r.Document, 140))
	}
	return nil
}
