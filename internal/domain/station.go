package domain

import "time"

// Station is a fixed upper-air observation site identified by the
// provider-assigned code (WMO id or ICAO-style string).
type Station struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
	Src       string    `json:"src,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCoords reports whether the station carries a usable coordinate pair.
// Catalog entries sometimes ship with one of the two missing; those are
// treated as having no position at all.
func (s Station) HasCoords() bool {
	return s.Lat != nil && s.Lon != nil
}
