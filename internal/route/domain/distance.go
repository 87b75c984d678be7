package domain

import "math"

// EarthRadiusKM is the mean Earth radius used for great-circle distances.
const EarthRadiusKM = 6371.0

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies within latitude [-90, 90] and longitude [-180, 180].
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// DistanceKM returns the great-circle distance to other in kilometers.
func (p GeoPoint) DistanceKM(other GeoPoint) float64 {
	return GreatCircleKM(p.Lat, p.Lon, other.Lat, other.Lon)
}

// GreatCircleKM computes the haversine distance between two coordinates given in degrees.
func GreatCircleKM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dlat := toRadians(lat2 - lat1)
	dlon := toRadians(lon2 - lon1)

	sinDlat := math.Sin(dlat / 2)
	sinDlon := math.Sin(dlon / 2)
	a := sinDlat*sinDlat + math.Cos(phi1)*math.Cos(phi2)*sinDlon*sinDlon
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKM * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
