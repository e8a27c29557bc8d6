// Package cli is the cobra-based command-line driving adapter: a thin
// translation layer between flags/args and the core/services ports. It
// holds no business logic of its own.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-cli/internal/core/ports/driving"
)

const version = "0.1.0"

// Services, injected once by cmd/serchaforensic before Execute runs.
var (
	indexingService driving.IndexingService
	searchService   driving.SearchService
	taskService     driving.TaskService
)

var rootCmd = &cobra.Command{
	Use:   "serchaforensic",
	Short: "Semantic search over seized digital evidence",
	Long: `serchaforensic indexes messages and images extracted from seized
digital evidence into vector collections and answers semantic search and
conversation-reconstruction queries against them.`,
}

// SetServices wires the core ports this adapter calls into. Must be called
// before Execute.
func SetServices(indexing driving.IndexingService, search driving.SearchService, tasks driving.TaskService) {
	indexingService = indexing
	searchService = search
	taskService = tasks
}

// Execute runs the CLI, returning any error from the matched command.
func Execute() error {
	return rootCmd.Execute()
}
