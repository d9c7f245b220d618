package sounding

import "strconv"

type cellKind uint8

const (
	kindAbsent cellKind = iota
	kindNumber
	kindText
)

// Cell is one table value: a number, a raw text token, or absent.
// Consumers switch on the accessors rather than guessing at zero values.
type Cell struct {
	kind cellKind
	num  float64
	text string
}

// Number creates a numeric cell.
func Number(v float64) Cell {
	return Cell{kind: kindNumber, num: v}
}

// Text creates a cell holding a token that did not parse as a number.
func Text(s string) Cell {
	return Cell{kind: kindText, text: s}
}

// Absent is the missing-value cell.
func Absent() Cell {
	return Cell{}
}

// IsAbsent reports whether the cell holds no value.
func (c Cell) IsAbsent() bool {
	return c.kind == kindAbsent
}

// Float returns the numeric value and whether the cell is numeric.
func (c Cell) Float() (float64, bool) {
	return c.num, c.kind == kindNumber
}

// Encode renders the cell for the delimited payload form: numbers in their
// shortest exact representation, text verbatim, absent as the empty field.
func (c Cell) Encode() string {
	switch c.kind {
	case kindNumber:
		return strconv.FormatFloat(c.num, 'g', -1, 64)
	case kindText:
		return c.text
	default:
		return ""
	}
}

// parseCell turns one whitespace token into a typed cell.
func parseCell(token string) Cell {
	if v, err := strconv.ParseFloat(token, 64); err == nil {
		return Number(v)
	}
	return Text(token)
}

// decodeField is parseCell for the delimited payload form, where the empty
// field encodes absence.
func decodeField(field string) Cell {
	if field == "" {
		return Absent()
	}
	return parseCell(field)
}
