package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
	"github.com/custodia-labs/sercha-cli/internal/core/ports/driving"
)

var (
	indexBatchTag   string
	indexReset      bool
	indexWindowSize int
	indexOverlap    int
	indexModelID    string
	indexDevice     string
	indexFollow     bool
)

var indexCmd = &cobra.Command{
	Use:   "index <records-file>",
	Short: "Ingest a batch of extracted records into vector collections",
	Long: `Reads newline-delimited JSON records (one domain.RawRecord per
line) from the given file, runs them through the normalize/denoise/chunk/
encode/store pipeline, and prints the resulting task id. Use --follow to
stream progress until the task reaches a terminal state.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexBatchTag, "batch-tag", "", "names this ingestion batch (required)")
	indexCmd.Flags().BoolVar(&indexReset, "reset", false, "drop target collections before ingesting")
	indexCmd.Flags().IntVar(&indexWindowSize, "window", 0, "chunk window size (0 = built-in default of 5)")
	indexCmd.Flags().IntVar(&indexOverlap, "overlap", 0, "chunk overlap (0 = built-in default of 1)")
	indexCmd.Flags().StringVar(&indexModelID, "model", "nomic-embed-text", "embedding model id")
	indexCmd.Flags().StringVar(&indexDevice, "device", "cpu", "embedding device hint")
	indexCmd.Flags().BoolVar(&indexFollow, "follow", true, "stream progress until the task finishes")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexingService == nil {
		return errors.New("indexing service not configured")
	}
	if indexBatchTag == "" {
		return errors.New("--batch-tag is required")
	}

	records, err := readRawRecords(args[0])
	if err != nil {
		return fmt.Errorf("reading records: %w", err)
	}

	ctx := context.Background()
	req := driving.IndexRequest{
		BatchTag:   indexBatchTag,
		Records:    records,
		Reset:      indexReset,
		WindowSize: indexWindowSize,
		Overlap:    indexOverlap,
		ModelID:    indexModelID,
		Device:     indexDevice,
	}

	taskID, err := indexingService.Index(ctx, req)
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}
	cmd.Printf("task %s started (%d records)\n", taskID, len(records))

	if !indexFollow || taskService == nil {
		return nil
	}
	return followTask(cmd, ctx, taskID)
}

func followTask(cmd *cobra.Command, ctx context.Context, taskID string) error {
	events, cancel, err := taskService.Subscribe(ctx, taskID)
	if err != nil {
		return fmt.Errorf("subscribing to task %s: %w", taskID, err)
	}
	defer cancel()

	for evt := range events {
		cmd.Printf("[%s] %3d%% %s\n", evt.Stage, evt.Progress, evt.Message)
		if evt.Terminal {
			if evt.Err != "" {
				return fmt.Errorf("task %s failed: %s", taskID, evt.Err)
			}
			if evt.Statistics != nil {
				cmd.Printf("done: parsed=%d skipped=%d chunks=%d images=%d vectors=%d\n",
					evt.Statistics.MessagesParsed, evt.Statistics.MessagesSkipped,
					evt.Statistics.ChunksBuilt, evt.Statistics.ImagesParsed, evt.Statistics.VectorsStored)
			}
		}
	}
	return nil
}

// readRawRecords parses one domain.RawRecord per line from path.
func readRawRecords(path string) ([]domain.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []domain.RawRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}
		var rec domain.RawRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
