package domain

import "time"

// SoundingRecord is one stored vertical profile: the serialized table text
// plus the metadata under which it was captured. StationName is a snapshot
// taken at download time and may drift from the station's current name.
type SoundingRecord struct {
	ID           int64     `json:"id"`
	StationID    string    `json:"station_id"`
	StationName  string    `json:"station_name,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
	DownloadedAt time.Time `json:"downloaded_at"`
	Payload      string    `json:"payload"`
}

// SoundingFilter narrows List/Count queries over stored soundings.
// Zero-value fields are ignored.
type SoundingFilter struct {
	StationIDs []string
	Start      *time.Time
	End        *time.Time
	Limit      int
	Offset     int
}
