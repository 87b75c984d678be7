package domain

import (
	"context"
	"errors"
	"time"
)

// Difficulty is the tier derived from a route's distance and elevation gain.
type Difficulty string

const (
	DifficultyEasy     Difficulty = "Easy"
	DifficultyModerate Difficulty = "Moderate"
	DifficultyHard     Difficulty = "Hard"
)

var (
	// ErrRouteNotFound is returned for ids absent from the catalog.
	ErrRouteNotFound = errors.New("route not found")
	// ErrInvalidRoute rejects malformed or duplicate catalog entries.
	ErrInvalidRoute = errors.New("invalid route")
)

// Classify maps a route's distance and elevation gain to a difficulty tier.
// Thresholds are exclusive and the first matching rule wins.
func Classify(distanceKM, elevationM float64) Difficulty {
	if elevationM > 600 || distanceKM > 60 {
		return DifficultyHard
	}
	if elevationM > 300 {
		return DifficultyModerate
	}
	return DifficultyEasy
}

// Route is one catalog entry. Every field is fixed at load time except Likes.
type Route struct {
	ID         int     `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Type       string  `json:"type" yaml:"type"`
	DistanceKM float64 `json:"distance" yaml:"distance"`
	ElevationM float64 `json:"elevation" yaml:"elevation"`
	Likes      int     `json:"likes" yaml:"likes"`
	Lat        float64 `json:"lat" yaml:"lat"`
	Lon        float64 `json:"lon" yaml:"lon"`
	TrackFile  string  `json:"gpx_file" yaml:"gpx_file"`
}

// Difficulty classifies the route.
func (r Route) Difficulty() Difficulty {
	return Classify(r.DistanceKM, r.ElevationM)
}

// Location returns the route's start point.
func (r Route) Location() GeoPoint {
	return GeoPoint{Lat: r.Lat, Lon: r.Lon}
}

// LikeRecord is one row of the remote like collection.
type LikeRecord struct {
	RouteID int
	Likes   int
}

// RemoteLikeStore is the authoritative like-count collection shared by all clients.
// UpdateLikes overwrites the stored count for one route.
type RemoteLikeStore interface {
	List(ctx context.Context) ([]LikeRecord, error)
	UpdateLikes(ctx context.Context, routeID, likes int) error
}

// KeyValueStore persists string values for a client profile. Get reports
// ok=false for missing keys. SetIfAbsent returns false when the key already exists.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)
}

// LikeEventType names a published like event.
type LikeEventType string

// EventLikeRecorded is published after a like is accepted.
const EventLikeRecorded LikeEventType = "LikeRecorded"

// LikeEvent describes an accepted like.
type LikeEvent struct {
	Type       LikeEventType `json:"type"`
	RouteID    int           `json:"route_id"`
	ClientID   string        `json:"client_id"`
	Likes      int           `json:"likes"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// EventPublisher announces accepted likes. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event LikeEvent) error
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reports the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
