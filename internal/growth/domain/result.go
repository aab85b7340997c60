package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	dErrors "growthsheet/pkg/domain-errors"
)

// CalculatedValues is the measurement_calculated_values group of a response.
// Absent values stay nil.
type CalculatedValues struct {
	ChronologicalSDS     *float64 `json:"chronological_sds"`
	CorrectedSDS         *float64 `json:"corrected_sds"`
	ChronologicalCentile *float64 `json:"chronological_centile"`
	CorrectedCentile     *float64 `json:"corrected_centile"`
}

// MeasurementDates is the measurement_dates group of a response.
type MeasurementDates struct {
	ChronologicalDecimalAge *float64 `json:"chronological_decimal_age"`
	CorrectedDecimalAge     *float64 `json:"corrected_decimal_age"`
}

// CalculationResult is the part of a growth API response the core reads.
type CalculationResult struct {
	MeasurementCalculatedValues *CalculatedValues `json:"measurement_calculated_values"`
	MeasurementDates            *MeasurementDates `json:"measurement_dates"`
	// Detail carries the API's explanation when it declines to calculate.
	Detail json.RawMessage `json:"detail,omitempty"`
}

// ParseResult decodes a response body. Bodies that are not a JSON object
// fail with a bad_data error; the HTTP status is never consulted.
func ParseResult(body []byte) (*CalculationResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, dErrors.New(dErrors.CodeBadData, "growth api response is not a JSON object")
	}
	var result CalculationResult
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadData, fmt.Sprintf("growth api response is malformed: %v", err))
	}
	return &result, nil
}

// CalculatedValues returns the calculated-values group, or an empty_result
// error when the API left it out. Its presence is the only success signal.
func (r *CalculationResult) CalculatedValues() (CalculatedValues, error) {
	if r.MeasurementCalculatedValues == nil {
		return CalculatedValues{}, r.empty("measurement_calculated_values")
	}
	return *r.MeasurementCalculatedValues, nil
}

// Dates returns the measurement-dates group. Responses without calculated
// values are failures here too.
func (r *CalculationResult) Dates() (MeasurementDates, error) {
	if _, err := r.CalculatedValues(); err != nil {
		return MeasurementDates{}, err
	}
	if r.MeasurementDates == nil {
		return MeasurementDates{}, r.empty("measurement_dates")
	}
	return *r.MeasurementDates, nil
}

func (r *CalculationResult) empty(group string) error {
	msg := "Null returned from API: response has no " + group
	if detail := r.detail(); detail != "" {
		msg += ": " + detail
	}
	return dErrors.New(dErrors.CodeEmptyResult, msg)
}

// detail renders the API's detail member, which is either a string or a
// list of validation objects.
func (r *CalculationResult) detail() string {
	if len(r.Detail) == 0 || bytes.Equal(r.Detail, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Detail, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, r.Detail); err != nil {
		return ""
	}
	return compact.String()
}
