package testutil

import (
	"growthsheet/internal/growth/domain"
)

// Fixtures shared by growth tests. The values match a preterm boy weighed at
// 14 months, the example the calculation functions are documented with.
const (
	// FixtureAPIKey is the subscription key carried by FixtureArguments.
	FixtureAPIKey = "primary-key"

	// CalculatedResponse is an upstream body with both result groups.
	CalculatedResponse = `{
	"measurement_dates": {
		"chronological_decimal_age": 1.2101300479123887,
		"corrected_decimal_age": 1.1334702258726899
	},
	"measurement_calculated_values": {
		"chronological_sds": -0.5,
		"corrected_sds": -0.2,
		"chronological_centile": 30.9,
		"corrected_centile": 42.1
	}
}`

	// DeniedResponse is what the API returns for a bad subscription key.
	DeniedResponse = `{"detail":"Access denied due to invalid subscription key."}`

	// ExpectedPayload is the request body built from FixtureArguments.
	ExpectedPayload = `{"birth_date":"2020-04-12","observation_date":"2021-06-28","sex":"male",` +
		`"gestation_weeks":32,"gestation_days":3,"measurement_method":"weight","observation_value":9.1}`
)

// FixtureArguments returns valid arguments for the given output mode.
func FixtureArguments(mode string) domain.Arguments {
	return domain.Arguments{
		BirthDate:         domain.DateOf(2020, 4, 12),
		ObservationDate:   domain.DateOf(2021, 6, 28),
		GestationWeeks:    32,
		GestationDays:     3,
		Sex:               string(domain.SexMale),
		MeasurementMethod: string(domain.MethodWeight),
		ObservationValue:  9.1,
		APIKey:            FixtureAPIKey,
		OutputMode:        mode,
	}
}
