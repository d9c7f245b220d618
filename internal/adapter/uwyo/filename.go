package uwyo

import (
	"path/filepath"
	"strings"
	"time"
)

// OutputFilename derives the export path for a fetched text block. The
// station name is truncated at the first comma (names arrive as
// "Denver, CO"), lower-cased, and spaces become underscores, so repeated
// fetches of the same (station, instant) reuse one file.
func OutputFilename(dir, stationName string, at time.Time) string {
	name := stationName
	if i := strings.IndexByte(name, ','); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")

	return filepath.Join(dir, name+at.UTC().Format("_2006_01_02_15")+".csv")
}
