package sounding

import (
	"math"
	"strconv"
	"strings"
)

// headerToken is the first column name of every UWYO sounding table; the
// first line starting with it is taken as the header.
const headerToken = "PRES"

// columnUnits maps base column names to their physical units. Columns
// without an entry keep a bare label.
var columnUnits = map[string]string{
	"PRES": "hPa",
	"HGHT": "m",
	"TEMP": "C",
	"DWPT": "C",
	"RELH": "%",
	"MIXR": "g/kg",
	"DRCT": "deg",
	"SKNT": "knot",
	"THTA": "K",
	"THTE": "K",
	"THTV": "K",
	"ABSH": "g/m3",
}

// Row maps a labeled column name ("PRES,hPa") to its cell.
type Row map[string]Cell

// Table is a parsed sounding block: labeled columns in order, typed rows,
// and the original raw text retained for fallback round-trips.
type Table struct {
	Columns []string
	Rows    []Row
	Raw     string
}

// Parse extracts the measurement table from a raw sounding text block.
// Input without a recognizable header yields an empty table with the raw
// text preserved.
func Parse(text string) Table {
	var headers []string
	var rows [][]Cell

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if headers == nil {
			fields := strings.Fields(trimmed)
			if len(fields) > 0 && fields[0] == headerToken {
				headers = fields
			}
			continue
		}

		// First blank line after the header ends the table.
		if trimmed == "" {
			break
		}

		fields := strings.Fields(trimmed)
		if len(fields) < len(headers) {
			// Secondary unit/legend line.
			continue
		}
		if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
			// Stray header repeat or separator; not a data row.
			continue
		}

		row := make([]Cell, len(headers))
		for i := range headers {
			row[i] = parseCell(fields[i])
		}
		rows = append(rows, row)
	}

	if headers == nil {
		return Table{Raw: text}
	}

	headers, rows = deriveAbsoluteHumidity(headers, rows)

	t := Table{
		Columns: make([]string, len(headers)),
		Rows:    make([]Row, len(rows)),
		Raw:     text,
	}
	for i, h := range headers {
		t.Columns[i] = labelColumn(h)
	}
	for i, cells := range rows {
		row := make(Row, len(cells))
		for j, c := range cells {
			row[t.Columns[j]] = c
		}
		t.Rows[i] = row
	}
	return t
}

// deriveAbsoluteHumidity appends an ABSH column when both RELH and TEMP are
// present. Rows missing either input get an absent ABSH cell.
func deriveAbsoluteHumidity(headers []string, rows [][]Cell) ([]string, [][]Cell) {
	tempIdx, relhIdx := -1, -1
	for i, h := range headers {
		switch h {
		case "TEMP":
			tempIdx = i
		case "RELH":
			relhIdx = i
		}
	}
	if tempIdx < 0 || relhIdx < 0 {
		return headers, rows
	}

	headers = append(headers, "ABSH")
	for i, row := range rows {
		temp, okT := row[tempIdx].Float()
		relh, okR := row[relhIdx].Float()
		if !okT || !okR {
			rows[i] = append(row, Absent())
			continue
		}
		rows[i] = append(row, Number(absoluteHumidity(temp, relh)))
	}
	return headers, rows
}

// absoluteHumidity computes water vapor density in g/m³ from temperature in
// °C and relative humidity in percent, via the Magnus saturation vapor
// pressure approximation.
func absoluteHumidity(tempC, relhPct float64) float64 {
	es := 6.112 * math.Exp(17.67*tempC/(tempC+243.5))
	return es * relhPct * 2.1674 / (273.15 + tempC)
}

// labelColumn attaches the known unit suffix to a base column name.
func labelColumn(name string) string {
	if unit, ok := columnUnits[name]; ok {
		return name + "," + unit
	}
	return name
}

// baseName strips the unit suffix from a labeled column name.
func baseName(label string) string {
	if i := strings.IndexByte(label, ','); i >= 0 {
		return label[:i]
	}
	return label
}

// Serialize encodes the table in the delimited payload form: labeled column
// names on the first line, one row per following line, absent cells as empty
// fields, `;` field separator, `\n` line terminator.
func (t Table) Serialize() string {
	var b strings.Builder
	b.WriteString(strings.Join(t.Columns, ";"))
	b.WriteByte('\n')
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(row[col].Encode())
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Decode reverses Serialize. A payload that does not carry the delimited
// header (legacy raw blobs) comes back as an empty table with Raw set, so
// callers always get something displayable.
func Decode(payload string) Table {
	lines := strings.Split(strings.TrimRight(payload, "\n"), "\n")
	if len(lines) == 0 || !strings.Contains(lines[0], ";") {
		return Table{Raw: payload}
	}

	columns := strings.Split(lines[0], ";")
	t := Table{Columns: columns, Raw: payload}
	for _, line := range lines[1:] {
		fields := strings.Split(line, ";")
		row := make(Row, len(columns))
		for i, col := range columns {
			if i < len(fields) {
				row[col] = decodeField(fields[i])
			} else {
				row[col] = Absent()
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Column returns the labeled column name matching a base name, or "" when
// the table has no such column.
func (t Table) Column(base string) string {
	for _, col := range t.Columns {
		if baseName(col) == base {
			return col
		}
	}
	return ""
}
