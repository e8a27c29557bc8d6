package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect indexing tasks",
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Print a task's current state",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStatus,
}

func init() {
	taskCmd.AddCommand(taskStatusCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	if taskService == nil {
		return errors.New("task service not configured")
	}

	task, err := taskService.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("task status failed: %w", err)
	}

	cmd.Printf("task:     %s\n", task.TaskID)
	cmd.Printf("state:    %s\n", task.State)
	cmd.Printf("stage:    %s\n", task.Stage)
	cmd.Printf("progress: %d%%\n", task.Progress)
	if task.Message != "" {
		cmd.Printf("message:  %s\n", task.Message)
	}
	if task.Error != "" {
		cmd.Printf("error:    %s\n", task.Error)
	}
	return nil
}
