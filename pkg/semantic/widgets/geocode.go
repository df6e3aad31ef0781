package widgets

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"googlemaps.github.io/maps"
)

// Geocoder turns a place name into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat, lng float64, err error)
}

// GoogleGeocoder resolves places with the Google Maps Geocoding API.
type GoogleGeocoder struct {
	client *maps.Client
}

// NewGoogleGeocoder creates a geocoder for apiKey.
func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google maps api key is empty")
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleGeocoder{client: client}, nil
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, query string) (float64, float64, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: query})
	if err != nil {
		return 0, 0, fmt.Errorf("geocoding %q failed: %w", query, err)
	}
	if len(results) == 0 {
		return 0, 0, fmt.Errorf("no geocoding results for %q", query)
	}
	loc := results[0].Geometry.Location
	return loc.Lat, loc.Lng, nil
}

// ResolveMapCenters geocodes the place names of map widgets that fell back
// to the default center. Detections are returned as new values; failures
// leave the default center in place.
func ResolveMapCenters(ctx context.Context, g Geocoder, detections []Detection, logger *logrus.Logger) []Detection {
	out := make([]Detection, len(detections))
	copy(out, detections)
	if g == nil {
		return out
	}

	for i, det := range out {
		if !det.IsWidget || det.Metadata == nil || det.Metadata.Map == nil {
			continue
		}
		cfg := det.Metadata.Map
		if cfg.CenterSource != CenterDefault || cfg.Query == "" {
			continue
		}

		lat, lng, err := g.Geocode(ctx, cfg.Query)
		if err != nil {
			if logger != nil {
				logger.WithError(err).WithField("element_id", det.ElementID).Warn("Map center lookup failed")
			}
			continue
		}

		md := det.Metadata.Clone()
		md.Map.Latitude = lat
		md.Map.Longitude = lng
		md.Map.CenterSource = CenterGeocoded
		out[i].Metadata = &md
	}
	return out
}
