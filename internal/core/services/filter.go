package services

import (
	"math"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

// kmPerDegreeLat is the approximate distance, in kilometers, spanned by one
// degree of latitude; used to size the coarse bounding box before the
// haversine post-filter runs.
const kmPerDegreeLat = 111.0

// GeoPostFilter is the second step of a compiled geographic radius
// predicate: a haversine check the Search Engine applies to candidates
// already narrowed by the bounding box.
type GeoPostFilter struct {
	Lat, Lon float64
	RadiusKm float64
}

// Matches reports whether (lat, lon) lies within RadiusKm of the filter's
// reference point.
func (g GeoPostFilter) Matches(lat, lon float64) bool {
	return haversineKm(g.Lat, g.Lon, lat, lon) <= g.RadiusKm
}

// FilterCompiler translates the high-level predicate object of §4.7 into a
// domain.Predicate the Vector Store can evaluate, plus an optional
// GeoPostFilter the Search Engine applies after retrieval.
type FilterCompiler struct{}

// NewFilterCompiler returns a ready FilterCompiler; it carries no state.
func NewFilterCompiler() *FilterCompiler {
	return &FilterCompiler{}
}

// int64PtrToFloat64Ptr converts an *int64 to the *float64 domain.Range
// expects, matching the float64 timestamp representation used elsewhere
// (see indexer.go's metadata encoding).
func int64PtrToFloat64Ptr(v *int64) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

// Compile builds the predicate and, when a geographic radius is requested,
// the post-filter to apply to candidates. kind identifies the target
// collection so a timestamp range can be constrained correctly: a chunk
// spans [timestamp, timestamp_end], so both endpoints must fall inside the
// requested range, not just the chunk's start. Fails with
// domain.ErrInvalidPredicate when the filter is self-contradictory, e.g. an
// inverted timestamp range.
func (c *FilterCompiler) Compile(f domain.QueryFilter, kind domain.CollectionKind) (domain.Predicate, *GeoPostFilter, error) {
	if f.TimestampStart != nil && f.TimestampEnd != nil && *f.TimestampStart > *f.TimestampEnd {
		return nil, nil, domain.ErrInvalidPredicate
	}
	if f.RadiusKm < 0 {
		return nil, nil, domain.ErrInvalidPredicate
	}

	var preds []domain.Predicate

	if f.TimestampStart != nil || f.TimestampEnd != nil {
		tsMin, tsMax := int64PtrToFloat64Ptr(f.TimestampStart), int64PtrToFloat64Ptr(f.TimestampEnd)
		preds = append(preds, domain.Range{
			Field: "timestamp",
			Min:   tsMin,
			Max:   tsMax,
		})
		if kind == domain.CollectionKindChunks {
			preds = append(preds, domain.Range{
				Field: "timestamp_end",
				Min:   tsMin,
				Max:   tsMax,
			})
		}
	}
	if f.Direction != "" {
		preds = append(preds, domain.Equal{Field: "direction", Value: domain.StringValue(string(f.Direction))})
	}
	if f.ExcludeNoise {
		preds = append(preds, domain.Equal{Field: "is_noise", Value: domain.BoolValue(false)})
	}
	if f.Contact != "" {
		preds = append(preds, domain.Equal{Field: "contact", Value: domain.StringValue(f.Contact)})
	}
	if f.App != "" {
		preds = append(preds, domain.Equal{Field: "app", Value: domain.StringValue(f.App)})
	}

	var geo *GeoPostFilter
	if f.GPSLat != nil && f.GPSLon != nil && f.RadiusKm > 0 {
		latDelta := f.RadiusKm / kmPerDegreeLat
		lonDelta := f.RadiusKm / (kmPerDegreeLat * math.Cos(degToRad(*f.GPSLat)))
		lonDelta = math.Abs(lonDelta)

		latMin, latMax := *f.GPSLat-latDelta, *f.GPSLat+latDelta
		lonMin, lonMax := *f.GPSLon-lonDelta, *f.GPSLon+lonDelta

		preds = append(preds,
			domain.Range{Field: "gps_lat", Min: &latMin, Max: &latMax},
			domain.Range{Field: "gps_lon", Min: &lonMin, Max: &lonMax},
		)
		geo = &GeoPostFilter{Lat: *f.GPSLat, Lon: *f.GPSLon, RadiusKm: f.RadiusKm}
	}

	if len(preds) == 0 {
		return domain.And{}, geo, nil
	}
	return domain.And{Predicates: preds}, geo, nil
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }

// haversineKm computes the great-circle distance between two points in
// kilometers.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	dLat := degToRad(lat2 - lat1)
	dLon := degToRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(degToRad(lat1))*math.Cos(degToRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
