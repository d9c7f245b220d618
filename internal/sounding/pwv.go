package sounding

import "sort"

// IntegratePWV computes precipitable water vapor in millimeters by
// integrating absolute humidity over height with the trapezoidal rule,
// considering only levels at or above minHeight (meters).
//
// The boolean result is false when the table lacks the HGHT or ABSH column
// or fewer than two usable samples remain above the threshold; an
// undefined column is reported as such rather than as zero. Rows are sorted
// by height first, so the result does not depend on input order.
func IntegratePWV(t Table, minHeight float64) (float64, bool) {
	hghtCol := t.Column("HGHT")
	abshCol := t.Column("ABSH")
	if hghtCol == "" || abshCol == "" {
		return 0, false
	}

	type sample struct{ height, density float64 }
	var samples []sample
	for _, row := range t.Rows {
		h, okH := row[hghtCol].Float()
		d, okD := row[abshCol].Float()
		if !okH || !okD || h < minHeight {
			continue
		}
		samples = append(samples, sample{height: h, density: d})
	}
	if len(samples) < 2 {
		return 0, false
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].height < samples[j].height
	})

	var total float64
	for i := 1; i < len(samples); i++ {
		dh := samples[i].height - samples[i-1].height
		total += dh * (samples[i].density + samples[i-1].density) / 2
	}

	// g/m³ integrated over meters gives g/m²; 1000 g/m² of water is 1 mm
	// of column depth.
	return total / 1000, true
}
