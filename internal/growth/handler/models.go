package handler

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"

	"growthsheet/internal/growth/domain"
	"growthsheet/pkg/platform/httputil"
	s "growthsheet/pkg/string"
	"growthsheet/pkg/validation"
)

// Response formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// CalculationRequest is one row of arguments as sent over HTTP. Spreadsheet
// callers send whatever a cell holds, so every field decodes leniently and
// the core decides which argument is reported first.
type CalculationRequest struct {
	BirthDate         Text    `json:"birth_date"`
	ObservationDate   Text    `json:"observation_date"`
	GestationWeeks    *Number `json:"gestation_weeks"`
	GestationDays     *Number `json:"gestation_days"`
	Sex               Text    `json:"sex"`
	MeasurementMethod Text    `json:"measurement_method"`
	ObservationValue  *Number `json:"observation_value"`
	OutputMode        Text    `json:"output_mode"`
}

// Arguments converts the envelope into core arguments. Dates that do not
// parse become null so the core decides which check fails first.
func (r CalculationRequest) Arguments(reference domain.Reference, apiKey string) domain.Arguments {
	return domain.Arguments{
		BirthDate:         domain.ParseDate(string(r.BirthDate)),
		ObservationDate:   domain.ParseDate(string(r.ObservationDate)),
		GestationWeeks:    r.GestationWeeks.Float64(),
		GestationDays:     r.GestationDays.Float64(),
		Sex:               string(r.Sex),
		MeasurementMethod: string(r.MeasurementMethod),
		ObservationValue:  r.ObservationValue.Float64(),
		APIKey:            apiKey,
		OutputMode:        string(r.OutputMode),
		Reference:         reference,
	}
}

// Number is a numeric cell. JSON numbers and numeric strings decode to their
// value; a blank cell, any other string or a non-numeric JSON value is NaN.
type Number float64

// UnmarshalJSON implements json.Unmarshaler and never fails.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number(math.NaN())
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		*n = Number(t)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			*n = Number(f)
		}
	}
	return nil
}

// Float64 returns the value, NaN when the field was absent or null.
func (n *Number) Float64() float64 {
	if n == nil {
		return math.NaN()
	}
	return float64(*n)
}

// Text is a string cell. A JSON string decodes as is, null as the empty
// string, and any other value as its JSON literal so the core rejects it by
// value.
type Text string

// UnmarshalJSON implements json.Unmarshaler and never fails.
func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(s)
		return nil
	}
	if string(data) == "null" {
		*t = ""
		return nil
	}
	*t = Text(data)
	return nil
}

// QueryRequest is the GET form used by IMPORTDATA and WEBSERVICE formulas.
type QueryRequest struct {
	CalculationRequest
	APIKey string `query:"api_key"`
	Format string `query:"format" validate:"omitempty,oneof=json csv"`
	Header bool   `query:"header"`
	Scalar bool   `query:"scalar"`
}

const fieldScalar = "scalar"

// ParseQuery reads a QueryRequest from URL parameters. Numeric parameters that
// fail to parse are kept as "not a number" for the core validator.
func ParseQuery(q url.Values) *QueryRequest {
	req := &QueryRequest{
		CalculationRequest: CalculationRequest{
			BirthDate:         Text(q.Get(domain.FieldBirthDate)),
			ObservationDate:   Text(q.Get(domain.FieldObservationDate)),
			GestationWeeks:    queryNumber(q, domain.FieldGestationWeeks),
			GestationDays:     queryNumber(q, domain.FieldGestationDays),
			Sex:               Text(q.Get(domain.FieldSex)),
			MeasurementMethod: Text(q.Get(domain.FieldMeasurementMethod)),
			ObservationValue:  queryNumber(q, domain.FieldObservationValue),
			OutputMode:        Text(q.Get(domain.FieldOutputMode)),
		},
		APIKey: q.Get(domain.FieldAPIKey),
		Format: q.Get("format"),
	}
	req.Header, _ = strconv.ParseBool(q.Get("header"))
	req.Scalar, _ = strconv.ParseBool(q.Get(fieldScalar))
	return req
}

func queryNumber(q url.Values, key string) *Number {
	if !q.Has(key) {
		return nil
	}
	n := Number(math.NaN())
	if v, err := strconv.ParseFloat(strings.TrimSpace(q.Get(key)), 64); err == nil {
		n = Number(v)
	}
	return &n
}

// Normalize applies the GET default of CSV output.
func (r *QueryRequest) Normalize() {
	s.TrimStrings(&r.Format, &r.APIKey)
	r.Format = strings.ToLower(r.Format)
	if r.Format == "" {
		r.Format = FormatCSV
	}
}

// Validate checks envelope fields only. Clinical arguments are validated by the core.
func (r *QueryRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	return validation.CheckStringLength(domain.FieldAPIKey, r.APIKey, validation.MaxAPIKeyLength)
}

// CalculationResponse is the JSON result of a single calculation.
type CalculationResponse struct {
	Columns []string     `json:"columns"`
	Rows    domain.Table `json:"rows"`
}

// BatchRequest carries independent rows that share the caller's key.
type BatchRequest struct {
	Rows []CalculationRequest `json:"rows" validate:"required,min=1,max=100"`
}

// Validate enforces the batch size limits.
func (r *BatchRequest) Validate() error {
	if err := validation.CheckSliceCount("rows", len(r.Rows), validation.MaxBatchRows); err != nil {
		return err
	}
	return validation.Validate(r)
}

// BatchResult is the outcome of one batch row. Exactly one of Row and Error is set.
type BatchResult struct {
	Index   int                     `json:"index"`
	Columns []string                `json:"columns,omitempty"`
	Row     domain.Row              `json:"row,omitempty"`
	Error   *httputil.ErrorResponse `json:"error,omitempty"`
}

// BatchResponse lists results in request order.
type BatchResponse struct {
	Results   []BatchResult `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}
