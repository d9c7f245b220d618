// Package domain models upper-air observation data from the University of
// Wyoming sounding archive.
//
// # Data Source
//
// Radiosonde soundings originate from https://weather.uwyo.edu, which serves
// one text report per station and observation instant. Stations launch
// balloons on a fixed synoptic schedule, nominally 00Z and 12Z, so a fetch
// run walks a station's timeline in whole-hour steps (see [BuildInstants]).
//
// # Conventions
//
// Station identifiers are the archive's own strings, usually the five-digit
// WMO number ("72469") but occasionally letter codes. They are never parsed,
// only passed through.
//
// Observation instants are UTC. Persistence truncates them to the minute so
// a re-fetch of the same launch lands on the same record.
//
// Coordinates in the station catalog are optional; the archive omits them
// for some historical stations, hence the pointer fields on [Station].
//
// All time is read through the package clock so tests can substitute a fake
// (see SetClock).
package domain
