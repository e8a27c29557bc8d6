package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

var (
	searchCollections   []string
	searchK             int
	searchMode          string
	searchExcludeNoise  bool
	searchContact       string
	searchApp           string
	searchDirection     string
	searchTimestampFrom int64
	searchTimestampTo   int64
	searchGPSLat        float64
	searchGPSLon        float64
	searchRadiusKm      float64
	searchDistanceCeil  float64
	searchJSON          bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over indexed collections",
	Long: `Encodes the query and retrieves the top-K scored rows from one or
more vector collections, applying the given filters. With more than one
--collection, results are merged by descending score then ascending
(collection, id).`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchCollections, "collection", nil, "collection(s) to search (required)")
	searchCmd.Flags().IntVarP(&searchK, "k", "k", 10, "number of results to return")
	searchCmd.Flags().StringVar(&searchMode, "mode", "ANN", "retrieval mode: ANN or KNN")
	searchCmd.Flags().BoolVar(&searchExcludeNoise, "exclude-noise", true, "drop rows flagged as noise")
	searchCmd.Flags().StringVar(&searchContact, "contact", "", "restrict to a single contact")
	searchCmd.Flags().StringVar(&searchApp, "app", "", "restrict to a single source application")
	searchCmd.Flags().StringVar(&searchDirection, "direction", "", "restrict to incoming, outgoing, or unknown")
	searchCmd.Flags().Int64Var(&searchTimestampFrom, "from", 0, "unix seconds lower bound (0 = unset)")
	searchCmd.Flags().Int64Var(&searchTimestampTo, "to", 0, "unix seconds upper bound (0 = unset)")
	searchCmd.Flags().Float64Var(&searchGPSLat, "lat", 0, "latitude center for a geographic filter")
	searchCmd.Flags().Float64Var(&searchGPSLon, "lon", 0, "longitude center for a geographic filter")
	searchCmd.Flags().Float64Var(&searchRadiusKm, "radius-km", 0, "radius in km for a geographic filter (0 = unset)")
	searchCmd.Flags().Float64Var(&searchDistanceCeil, "distance-ceiling", 0, "drop results above this distance (0 = unset)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}
	if len(searchCollections) == 0 {
		return errors.New("--collection is required (repeatable)")
	}

	filter := domain.QueryFilter{
		ExcludeNoise: searchExcludeNoise,
		Contact:      searchContact,
		App:          searchApp,
		Direction:    domain.Direction(searchDirection),
	}
	if searchTimestampFrom != 0 {
		filter.TimestampStart = &searchTimestampFrom
	}
	if searchTimestampTo != 0 {
		filter.TimestampEnd = &searchTimestampTo
	}
	if searchRadiusKm > 0 {
		filter.GPSLat = &searchGPSLat
		filter.GPSLon = &searchGPSLon
		filter.RadiusKm = searchRadiusKm
	}

	var ceiling *float64
	if searchDistanceCeil > 0 {
		ceiling = &searchDistanceCeil
	}

	reqs := make([]domain.SearchRequest, len(searchCollections))
	for i, col := range searchCollections {
		reqs[i] = domain.SearchRequest{
			Collection:      col,
			QueryText:       args[0],
			K:               searchK,
			Filter:          filter,
			Mode:            domain.RetrievalMode(searchMode),
			DistanceCeiling: ceiling,
		}
	}

	ctx := context.Background()
	var results []domain.SearchResultRow
	var err error
	if len(reqs) == 1 {
		results, err = searchService.Search(ctx, reqs[0])
	} else {
		results, err = searchService.MultiSearch(ctx, reqs)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResultRow) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResultRow) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	for i, r := range results {
		cmd.Printf("  [%d] %s/%s  score=%.3f  distance=%.3f\n", i+1, r.Collection, r.ID, r.Score, r.Distance)
		if r.Document != "" {
			cmd.Printf("      %s\n", truncate(r.Document, 140))
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
