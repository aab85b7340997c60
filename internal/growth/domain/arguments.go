// Package domain holds the calculation core: argument validation, the
// canonical request payload, response parsing and output projection.
// Nothing here performs I/O.
package domain

import (
	"fmt"
	"strings"
	"time"

	dErrors "growthsheet/pkg/domain-errors"
)

// Sex of the patient as accepted by the growth reference API.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// Sexes lists the accepted values in the order they are reported in errors.
var Sexes = []Sex{SexMale, SexFemale}

// MeasurementMethod names the kind of observation being scored.
type MeasurementMethod string

const (
	MethodHeight MeasurementMethod = "height"
	MethodWeight MeasurementMethod = "weight"
	MethodOFC    MeasurementMethod = "ofc"
	MethodBMI    MeasurementMethod = "bmi"
)

// MeasurementMethods lists the accepted values in the order they are reported in errors.
var MeasurementMethods = []MeasurementMethod{MethodHeight, MethodWeight, MethodOFC, MethodBMI}

// Reference identifies a growth reference family. Each family owns a fixed
// calculation endpoint below the API base URL.
type Reference string

const (
	ReferenceUKWHO      Reference = "uk-who"
	ReferenceTrisomy21  Reference = "trisomy-21"
	ReferenceTurner     Reference = "turner"
	ReferenceCDC        Reference = "cdc"
	DefaultReference              = ReferenceUKWHO
	calculationEndpoint           = "calculation"
)

// References lists every supported family.
var References = []Reference{ReferenceUKWHO, ReferenceTrisomy21, ReferenceTurner, ReferenceCDC}

// ParseReference resolves a family name; the empty string selects uk-who.
func ParseReference(s string) (Reference, error) {
	if s == "" {
		return DefaultReference, nil
	}
	for _, r := range References {
		if string(r) == s {
			return r, nil
		}
	}
	return "", dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("unknown growth reference %q", s))
}

// Path returns the endpoint path of the family's calculation resource.
func (r Reference) Path() string {
	return "/" + string(r) + "/" + calculationEndpoint
}

// Argument names used in validation errors and in the request payload.
const (
	FieldBirthDate         = "birth_date"
	FieldObservationDate   = "observation_date"
	FieldGestationWeeks    = "gestation_weeks"
	FieldGestationDays     = "gestation_days"
	FieldSex               = "sex"
	FieldMeasurementMethod = "measurement_method"
	FieldObservationValue  = "observation_value"
	FieldAPIKey            = "api_key"
	FieldOutputMode        = "output_mode"
)

// Arguments are the caller-supplied inputs of one calculation, as loosely
// typed as a spreadsheet cell: nil dates are null, NaN or infinite numbers
// are "not a number", an empty APIKey is null and an empty OutputMode means
// ModeBoth.
type Arguments struct {
	BirthDate         *time.Time
	ObservationDate   *time.Time
	GestationWeeks    float64
	GestationDays     float64
	Sex               string
	MeasurementMethod string
	ObservationValue  float64
	APIKey            string
	OutputMode        string
	Reference         Reference
}

// Mode returns the requested output mode with the default applied.
func (a Arguments) Mode() Mode {
	if a.OutputMode == "" {
		return ModeBoth
	}
	return Mode(a.OutputMode)
}

// DateLayout is the calendar form dates take on the wire.
const DateLayout = "2006-01-02"

// FormatDate renders the calendar date of t in t's own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate accepts a YYYY-MM-DD date or an RFC 3339 timestamp, which is
// what spreadsheets emit when a date cell is serialized. It returns nil for
// blank or unparseable input so the validator reports the date as null.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	return nil
}

// DateOf is a convenience for building Arguments from a time value.
func DateOf(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}
