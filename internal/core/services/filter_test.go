package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

func TestFilterCompiler_EmptyFilterMatchesEverything(t *testing.T) {
	c := NewFilterCompiler()

	pred, geo, err := c.Compile(domain.QueryFilter{}, domain.CollectionKindMessages)

	require.NoError(t, err)
	assert.Nil(t, geo)
	assert.True(t, pred.Evaluate(domain.Metadata{}))
}

func TestFilterCompiler_InvertedTimestampRangeRejected(t *testing.T) {
	c := NewFilterCompiler()
	start, end := int64(100), int64(10)

	_, _, err := c.Compile(domain.QueryFilter{TimestampStart: &start, TimestampEnd: &end}, domain.CollectionKindMessages)

	assert.ErrorIs(t, err, domain.ErrInvalidPredicate)
}

func TestFilterCompiler_NegativeRadiusRejected(t *testing.T) {
	c := NewFilterCompiler()
	lat, lon := 10.0, 10.0

	_, _, err := c.Compile(domain.QueryFilter{GPSLat: &lat, GPSLon: &lon, RadiusKm: -1}, domain.CollectionKindMessages)

	assert.ErrorIs(t, err, domain.ErrInvalidPredicate)
}

func TestFilterCompiler_ExcludeNoiseAndContact(t *testing.T) {
	c := NewFilterCompiler()

	pred, _, err := c.Compile(domain.QueryFilter{ExcludeNoise: true, Contact: "alice"}, domain.CollectionKindMessages)
	require.NoError(t, err)

	assert.True(t, pred.Evaluate(domain.Metadata{
		"is_noise": domain.BoolValue(false),
		"contact":  domain.StringValue("alice"),
	}))
	assert.False(t, pred.Evaluate(domain.Metadata{
		"is_noise": domain.BoolValue(true),
		"contact":  domain.StringValue("alice"),
	}))
	assert.False(t, pred.Evaluate(domain.Metadata{
		"is_noise": domain.BoolValue(false),
		"contact":  domain.StringValue("bob"),
	}))
}

func TestFilterCompiler_GeoProducesPostFilter(t *testing.T) {
	c := NewFilterCompiler()
	lat, lon := 40.0, -73.0

	pred, geo, err := c.Compile(domain.QueryFilter{GPSLat: &lat, GPSLon: &lon, RadiusKm: 5}, domain.CollectionKindMessages)

	require.NoError(t, err)
	require.NotNil(t, geo)
	assert.NotNil(t, pred)
	assert.True(t, geo.Matches(lat, lon))
	assert.False(t, geo.Matches(lat+5, lon+5))
}

func TestFilterCompiler_ChunkCollectionConstrainsBothEndpoints(t *testing.T) {
	c := NewFilterCompiler()
	start, end := int64(10), int64(20)

	pred, _, err := c.Compile(domain.QueryFilter{TimestampStart: &start, TimestampEnd: &end}, domain.CollectionKindChunks)
	require.NoError(t, err)

	// Chunk starts in range but ends after it: must be rejected.
	assert.False(t, pred.Evaluate(domain.Metadata{
		"timestamp":     domain.NumberValue(15),
		"timestamp_end": domain.NumberValue(25),
	}))
	// Both endpoints inside the range: must match.
	assert.True(t, pred.Evaluate(domain.Metadata{
		"timestamp":     domain.NumberValue(12),
		"timestamp_end": domain.NumberValue(18),
	}))
}

func TestFilterCompiler_MessageCollectionIgnoresTimestampEnd(t *testing.T) {
	c := NewFilterCompiler()
	start, end := int64(10), int64(20)

	pred, _, err := c.Compile(domain.QueryFilter{TimestampStart: &start, TimestampEnd: &end}, domain.CollectionKindMessages)
	require.NoError(t, err)

	assert.True(t, pred.Evaluate(domain.Metadata{"timestamp": domain.NumberValue(15)}))
}

func TestHaversineKm_SamePointIsZero(t *testing.T) {
	assert.InDelta(t, 0, haversineKm(10, 10, 10, 10), 0.0001)
}
