package domain

import (
	"encoding/json"

	dErrors "growthsheet/pkg/domain-errors"
)

// Payload is the canonical calculation request sent to the growth API.
// Field order is the wire key order.
type Payload struct {
	BirthDate         string  `json:"birth_date"`
	ObservationDate   string  `json:"observation_date"`
	Sex               string  `json:"sex"`
	GestationWeeks    float64 `json:"gestation_weeks"`
	GestationDays     float64 `json:"gestation_days"`
	MeasurementMethod string  `json:"measurement_method"`
	ObservationValue  float64 `json:"observation_value"`
}

// BuildPayload assembles the request payload from validated arguments.
func BuildPayload(args Arguments) (Payload, error) {
	if args.BirthDate == nil {
		return Payload{}, dErrors.Invalid(FieldBirthDate, "birth_date is null")
	}
	if args.ObservationDate == nil {
		return Payload{}, dErrors.Invalid(FieldObservationDate, "observation_date is null")
	}
	return Payload{
		BirthDate:         FormatDate(*args.BirthDate),
		ObservationDate:   FormatDate(*args.ObservationDate),
		Sex:               args.Sex,
		GestationWeeks:    args.GestationWeeks,
		GestationDays:     args.GestationDays,
		MeasurementMethod: args.MeasurementMethod,
		ObservationValue:  args.ObservationValue,
	}, nil
}

// Encode returns the JSON body. Equal payloads encode to identical bytes.
func (p Payload) Encode() ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "payload cannot be encoded")
	}
	return body, nil
}
