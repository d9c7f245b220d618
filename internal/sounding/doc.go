// Package sounding parses University of Wyoming upper-air sounding text
// blocks into typed tables and derives column-integrated water vapor.
//
// # Data Source
//
// Sounding pages are served by the UWYO sounding endpoint as HTML; the
// measurement table lives in a single <pre> block. The block has free-form
// preamble lines, a header line whose first token is always PRES, an
// optional secondary line carrying units, and then one whitespace-separated
// data row per pressure level:
//
//	-----------------------------------------------------------------------------
//	   PRES   HGHT   TEMP   DWPT   RELH   MIXR   DRCT   SKNT   THTA   THTE   THTV
//	    hPa     m      C      C      %    g/kg    deg   knot     K      K      K
//	-----------------------------------------------------------------------------
//	 1000.0    100   20.0   15.0   70.0  10.80    230     10  293.1  324.4  295.0
//	  925.0    766   15.2   12.1   81.0   9.80    240     15  295.5  324.1  297.2
//
// The unit line has fewer tokens than the header and is skipped; lines whose
// first token is not numeric are never data rows. The first blank line after
// the header terminates the table.
//
// # Derived Absolute Humidity
//
// When both TEMP (°C) and RELH (%) columns are present, an ABSH column
// (g/m³) is appended per row using the Magnus saturation vapor pressure
// approximation:
//
//	absh = 6.112 * exp(17.67*T/(T+243.5)) * RH * 2.1674 / (273.15 + T)
//
// Rows where either input is missing get an absent cell, never zero, so
// downstream integration can distinguish "no measurement" from "dry air".
//
// # Serialized Form
//
// Tables round-trip through a semicolon-delimited text encoding: the first
// line holds the labeled column names (base name plus unit, e.g. "PRES,hPa"),
// each following line one row, absent cells as empty fields. This is the
// payload format stored per sounding.
package sounding
