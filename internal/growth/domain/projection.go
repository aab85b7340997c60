package domain

import (
	"encoding/json"
	"fmt"
	"strconv"

	dErrors "growthsheet/pkg/domain-errors"
)

// Cell is one numeric spreadsheet cell. A cell without a value renders as
// JSON null and as an empty CSV field.
type Cell struct {
	Value float64
	Valid bool
}

// Num returns a cell holding v.
func Num(v float64) Cell {
	return Cell{Value: v, Valid: true}
}

// Blank is the empty cell.
var Blank = Cell{}

func cellOf(v *float64) Cell {
	if v == nil {
		return Blank
	}
	return Num(*v)
}

// String formats the cell for CSV output.
func (c Cell) String() string {
	if !c.Valid {
		return ""
	}
	return strconv.FormatFloat(c.Value, 'f', -1, 64)
}

// MarshalJSON implements json.Marshaler.
func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Cell) UnmarshalJSON(data []byte) error {
	var v *float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = cellOf(v)
	return nil
}

// Row is an ordered sequence of cells.
type Row []Cell

// Table is a cell range. Calculations always return a single row.
type Table []Row

// Scalar returns the only cell of a 1x1 table.
func (t Table) Scalar() (Cell, bool) {
	if len(t) != 1 || len(t[0]) != 1 {
		return Blank, false
	}
	return t[0][0], true
}

// Mode selects which columns a calculation returns.
type Mode string

const (
	ModeBoth     Mode = "both"
	ModeSDS      Mode = "sds"
	ModeCentiles Mode = "centiles"
	ModeChron    Mode = "chron"
	ModeCorr     Mode = "corr"
)

// Column is a named field of a parsed response group.
type Column[R any] struct {
	Name  string
	Value func(R) Cell
}

// Projection maps every output mode of one function to its ordered columns.
// It is the only place column order is defined.
type Projection[R any] struct {
	modes   []Mode
	columns map[Mode][]Column[R]
}

// Modes returns the legal modes in declaration order.
func (p Projection[R]) Modes() []Mode {
	return p.modes
}

// Columns returns the columns of mode.
func (p Projection[R]) Columns(mode Mode) ([]Column[R], bool) {
	cols, ok := p.columns[mode]
	return cols, ok
}

// Project builds the single-row table for mode.
func (p Projection[R]) Project(mode Mode, group R) (Table, error) {
	cols, ok := p.Columns(mode)
	if !ok {
		return nil, dErrors.Invalid(FieldOutputMode, fmt.Sprintf(
			"%q is not a valid output mode. Must be one of %s", string(mode), quoteList(p.modes)))
	}
	row := make(Row, len(cols))
	for i, col := range cols {
		row[i] = col.Value(group)
	}
	return Table{row}, nil
}

var (
	colCorrectedSDS = Column[CalculatedValues]{"corrected_sds",
		func(v CalculatedValues) Cell { return cellOf(v.CorrectedSDS) }}
	colChronologicalSDS = Column[CalculatedValues]{"chronological_sds",
		func(v CalculatedValues) Cell { return cellOf(v.ChronologicalSDS) }}
	colCorrectedCentile = Column[CalculatedValues]{"corrected_centile",
		func(v CalculatedValues) Cell { return cellOf(v.CorrectedCentile) }}
	colChronologicalCentile = Column[CalculatedValues]{"chronological_centile",
		func(v CalculatedValues) Cell { return cellOf(v.ChronologicalCentile) }}

	colChronologicalAge = Column[MeasurementDates]{"chronological_decimal_age",
		func(d MeasurementDates) Cell { return cellOf(d.ChronologicalDecimalAge) }}
	colCorrectedAge = Column[MeasurementDates]{"corrected_decimal_age",
		func(d MeasurementDates) Cell { return cellOf(d.CorrectedDecimalAge) }}
)

// SDSCentileProjection is the output contract of the SDS/centile function.
var SDSCentileProjection = Projection[CalculatedValues]{
	modes: []Mode{ModeBoth, ModeSDS, ModeCentiles},
	columns: map[Mode][]Column[CalculatedValues]{
		ModeBoth:     {colCorrectedSDS, colChronologicalSDS, colCorrectedCentile, colChronologicalCentile},
		ModeSDS:      {colCorrectedSDS, colChronologicalSDS},
		ModeCentiles: {colCorrectedCentile, colChronologicalCentile},
	},
}

// DecimalAgeProjection is the output contract of the corrected decimal age function.
var DecimalAgeProjection = Projection[MeasurementDates]{
	modes: []Mode{ModeBoth, ModeChron, ModeCorr},
	columns: map[Mode][]Column[MeasurementDates]{
		ModeBoth:  {colChronologicalAge, colCorrectedAge},
		ModeChron: {colChronologicalAge},
		ModeCorr:  {colCorrectedAge},
	},
}

// ColumnNames lists the column names of mode, for table headers.
func ColumnNames[R any](p Projection[R], mode Mode) []string {
	cols, _ := p.Columns(mode)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
