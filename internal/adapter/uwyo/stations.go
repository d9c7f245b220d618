package uwyo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upperair/soundings/internal/domain"
)

// catalogResponse mirrors the station catalog JSON endpoint.
type catalogResponse struct {
	Stations []catalogStation `json:"stations"`
}

type catalogStation struct {
	StationID flexString `json:"stationid"`
	Name      string     `json:"name"`
	Lat       *float64   `json:"lat"`
	Lon       *float64   `json:"lon"`
	Src       string     `json:"src"`
}

// flexString tolerates the catalog occasionally serializing station ids as
// bare numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("station id is neither string nor number: %s", data)
	}
	*f = flexString(n.String())
	return nil
}

// FetchStations retrieves the station catalog valid at the given instant.
// Every returned station is stamped with the fetch time.
func (c *Client) FetchStations(ctx context.Context, at time.Time) ([]domain.Station, error) {
	params := url.Values{
		"datetime": {at.UTC().Format(datetimeLayout)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.stationsURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("station catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("station catalog: HTTP %d: %s", resp.StatusCode, body)
	}

	var payload catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode station catalog: %w", err)
	}

	fetchedAt := domain.Now()
	out := make([]domain.Station, 0, len(payload.Stations))
	for _, raw := range payload.Stations {
		id := strings.TrimSpace(string(raw.StationID))
		if id == "" {
			continue
		}
		out = append(out, domain.Station{
			ID:        id,
			Name:      strings.TrimSpace(raw.Name),
			Lat:       raw.Lat,
			Lon:       raw.Lon,
			Src:       raw.Src,
			UpdatedAt: fetchedAt,
		})
	}
	return out, nil
}
