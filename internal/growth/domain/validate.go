package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"

	dErrors "growthsheet/pkg/domain-errors"
)

// Validate checks the arguments of one calculation against their legal
// domains and the output modes of the calling function. Checks run in a
// fixed order and the first failure is returned as a validation error
// naming the offending argument:
//
//  1. birth date present
//  2. observation date present
//  3. both gestation components numeric
//  4. sex is male or female
//  5. measurement method is height, weight, ofc or bmi
//  6. observation value numeric
//  7. api key present
//  8. output mode is one of modes
func Validate(args Arguments, modes []Mode) error {
	if args.BirthDate == nil {
		return dErrors.Invalid(FieldBirthDate, "birth_date is null")
	}
	if args.ObservationDate == nil {
		return dErrors.Invalid(FieldObservationDate, "observation_date is null")
	}
	if !isNumber(args.GestationWeeks) || !isNumber(args.GestationDays) {
		field := FieldGestationDays
		if !isNumber(args.GestationWeeks) {
			field = FieldGestationWeeks
		}
		return dErrors.Invalid(field, "gestation_weeks and gestation_days must be numbers")
	}
	if !slices.Contains(Sexes, Sex(args.Sex)) {
		return dErrors.Invalid(FieldSex, fmt.Sprintf(
			"%q is not a correct sex. Must be one of %s", args.Sex, quoteList(Sexes)))
	}
	if !slices.Contains(MeasurementMethods, MeasurementMethod(args.MeasurementMethod)) {
		return dErrors.Invalid(FieldMeasurementMethod, fmt.Sprintf(
			"%q is not a correct measurement method. Must be one of %s", args.MeasurementMethod, quoteList(MeasurementMethods)))
	}
	if !isNumber(args.ObservationValue) {
		return dErrors.Invalid(FieldObservationValue, fmt.Sprintf(
			"observation_value %v is not a number", args.ObservationValue))
	}
	if args.APIKey == "" {
		return dErrors.Invalid(FieldAPIKey, "api_key is null")
	}
	if !slices.Contains(modes, args.Mode()) {
		return dErrors.Invalid(FieldOutputMode, fmt.Sprintf(
			"%q is not a valid output mode. Must be one of %s", args.OutputMode, quoteList(modes)))
	}
	return nil
}

func isNumber(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// quoteList renders ["a", "b", "c"] as `"a", "b" or "c"`.
func quoteList[T ~string](values []T) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", string(v))
	}
	if len(quoted) < 2 {
		return strings.Join(quoted, "")
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " or " + quoted[len(quoted)-1]
}
