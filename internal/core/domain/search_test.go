package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchRequest_Fields(t *testing.T) {
	ceiling := 0.4
	req := SearchRequest{
		Collection:      "messages_batch1",
		QueryText:       "meet at the warehouse",
		K:               10,
		Mode:            RetrievalANN,
		DistanceCeiling: &ceiling,
		Filter: QueryFilter{
			ExcludeNoise: true,
			Contact:      "+15551234567",
		},
	}

	assert.Equal(t, "messages_batch1", req.Collection)
	assert.Equal(t, 10, req.K)
	assert.Equal(t, RetrievalANN, req.Mode)
	assert.True(t, req.Filter.ExcludeNoise)
	assert.Equal(t, 0.4, *req.DistanceCeiling)
}

func TestSearchResultRow_ScoreRange(t *testing.T) {
	tests := []struct {
		name  string
		score float64
	}{
		{"perfect match", 1.0},
		{"high relevance", 0.9},
		{"zero score", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := SearchResultRow{Score: tt.score}
			assert.GreaterOrEqual(t, row.Score, 0.0)
			assert.LessOrEqual(t, row.Score, 1.0)
		})
	}
}

func TestRetrievalMode_Values(t *testing.T) {
	assert.Equal(t, RetrievalMode("ANN"), RetrievalANN)
	assert.Equal(t, RetrievalMode("KNN"), RetrievalKNN)
}

func TestReconstructionResult_Shape(t *testing.T) {
	result := ReconstructionResult{
		Before: []Row{{ID: "m1"}},
		Target: Row{ID: "m2"},
		After:  []Row{{ID: "m3"}, {ID: "m4"}},
	}

	assert.Len(t, result.Before, 1)
	assert.Equal(t, "m2", result.Target.ID)
	assert.Len(t, result.After, 2)
}

func TestQueryFilter_EmptyBehavesAsNoFilter(t *testing.T) {
	filter := QueryFilter{}

	assert.Nil(t, filter.TimestampStart)
	assert.Nil(t, filter.TimestampEnd)
	assert.False(t, filter.ExcludeNoise)
	assert.Empty(t, filter.Contact)
}
