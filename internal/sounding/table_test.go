package sounding_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upperair/soundings/internal/sounding"
)

const sampleBlock = `72469 Denver Observations at 12Z 26 Apr 2024
-----------------------------------------------------------------------------
   PRES   HGHT   TEMP   DWPT   RELH   MIXR   DRCT   SKNT   THTA   THTE   THTV
    hPa     m      C      C      %    g/kg    deg   knot     K      K      K
-----------------------------------------------------------------------------
 1000.0    100   20.0   15.0   70.0  10.80    230     10  293.1  324.4  295.0
  925.0    766   15.2   12.1   81.0   9.80    240     15  295.5  324.1  297.2
  850.0   1457    9.8    7.4   85.0   8.40    250     20  297.0  321.7  298.5

Station information and sounding indices
`

func TestParse(t *testing.T) {
	t.Run("sample block", func(t *testing.T) {
		tbl := sounding.Parse(sampleBlock)

		want := []string{
			"PRES,hPa", "HGHT,m", "TEMP,C", "DWPT,C", "RELH,%",
			"MIXR,g/kg", "DRCT,deg", "SKNT,knot", "THTA,K", "THTE,K", "THTV,K",
			"ABSH,g/m3",
		}
		if diff := cmp.Diff(want, tbl.Columns); diff != "" {
			t.Fatalf("columns mismatch (-want +got):\n%s", diff)
		}
		require.Len(t, tbl.Rows, 3)

		pres, ok := tbl.Rows[0]["PRES,hPa"].Float()
		require.True(t, ok)
		assert.Equal(t, 1000.0, pres)

		hght, ok := tbl.Rows[1]["HGHT,m"].Float()
		require.True(t, ok)
		assert.Equal(t, 766.0, hght)

		assert.Equal(t, sampleBlock, tbl.Raw)
	})

	t.Run("derived absolute humidity for T=20 RH=70", func(t *testing.T) {
		tbl := sounding.Parse(sampleBlock)

		absh, ok := tbl.Rows[0]["ABSH,g/m3"].Float()
		require.True(t, ok)
		assert.InDelta(t, 12.1, absh, 0.05)
	})

	t.Run("absh absent when an input token is not numeric", func(t *testing.T) {
		block := "   PRES   HGHT   TEMP   DWPT   RELH\n" +
			" 1000.0    100   20.0   15.0   70.0\n" +
			"  925.0    766  *****   12.1   81.0\n"
		tbl := sounding.Parse(block)

		require.Len(t, tbl.Rows, 2)
		_, ok := tbl.Rows[0]["ABSH,g/m3"].Float()
		assert.True(t, ok)
		assert.True(t, tbl.Rows[1]["ABSH,g/m3"].IsAbsent(),
			"row with unparseable TEMP must get an absent ABSH, not zero")
	})

	t.Run("no absh without humidity column", func(t *testing.T) {
		block := "   PRES   HGHT   TEMP\n 1000.0    100   20.0\n"
		tbl := sounding.Parse(block)

		assert.Equal(t, []string{"PRES,hPa", "HGHT,m", "TEMP,C"}, tbl.Columns)
	})

	t.Run("stops at first blank line after header", func(t *testing.T) {
		block := "   PRES   HGHT\n 1000.0    100\n\n  925.0    766\n"
		tbl := sounding.Parse(block)

		require.Len(t, tbl.Rows, 1)
	})

	t.Run("skips repeated header between rows", func(t *testing.T) {
		block := "   PRES   HGHT\n 1000.0    100\n   PRES   HGHT\n  925.0    766\n"
		tbl := sounding.Parse(block)

		require.Len(t, tbl.Rows, 2)
	})

	t.Run("headerless input yields empty table with raw preserved", func(t *testing.T) {
		tbl := sounding.Parse("no table here\njust prose\n")

		assert.Empty(t, tbl.Columns)
		assert.Empty(t, tbl.Rows)
		assert.Equal(t, "no table here\njust prose\n", tbl.Raw)
	})

	t.Run("empty input", func(t *testing.T) {
		tbl := sounding.Parse("")

		assert.Empty(t, tbl.Columns)
		assert.Empty(t, tbl.Rows)
	})

	t.Run("unknown column keeps bare label", func(t *testing.T) {
		block := "   PRES   HGHT   FOO\n 1000.0    100   1.5\n"
		tbl := sounding.Parse(block)

		assert.Equal(t, []string{"PRES,hPa", "HGHT,m", "FOO"}, tbl.Columns)
	})
}

func TestSerializeRoundTrip(t *testing.T) {
	tbl := sounding.Parse(sampleBlock)
	payload := tbl.Serialize()

	lines := strings.Split(strings.TrimRight(payload, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "PRES,hPa;HGHT,m;"))

	decoded := sounding.Decode(payload)
	assert.Equal(t, tbl.Columns, decoded.Columns)
	require.Len(t, decoded.Rows, len(tbl.Rows))
	for i := range tbl.Rows {
		for _, col := range tbl.Columns {
			want := tbl.Rows[i][col]
			got := decoded.Rows[i][col]
			wantV, wantOK := want.Float()
			gotV, gotOK := got.Float()
			assert.Equal(t, wantOK, gotOK, "row %d column %s", i, col)
			if wantOK {
				assert.Equal(t, wantV, gotV, "row %d column %s", i, col)
			}
		}
	}
}

func TestSerializeAbsentCells(t *testing.T) {
	block := "   PRES   HGHT   TEMP   DWPT   RELH\n" +
		" 1000.0    100   20.0   15.0   70.0\n" +
		"  925.0    766  *****   12.1   81.0\n"
	payload := sounding.Parse(block).Serialize()

	lines := strings.Split(strings.TrimRight(payload, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[2], ";"),
		"absent trailing ABSH must serialize as an empty field")

	decoded := sounding.Decode(payload)
	require.Len(t, decoded.Rows, 2)
	assert.True(t, decoded.Rows[1]["ABSH,g/m3"].IsAbsent())
}

func TestDecodeFallback(t *testing.T) {
	raw := "not a delimited payload at all"
	tbl := sounding.Decode(raw)

	assert.Empty(t, tbl.Columns)
	assert.Empty(t, tbl.Rows)
	assert.Equal(t, raw, tbl.Raw)
}
