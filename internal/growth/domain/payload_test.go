package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "growthsheet/pkg/domain-errors"
)

func TestBuildPayload(t *testing.T) {
	t.Run("encodes the seven keys in wire order", func(t *testing.T) {
		payload, err := BuildPayload(validArguments())
		require.NoError(t, err)

		body, err := payload.Encode()
		require.NoError(t, err)

		assert.Equal(t,
			`{"birth_date":"2020-04-12","observation_date":"2021-06-28","sex":"female",`+
				`"gestation_weeks":40,"gestation_days":0,"measurement_method":"height","observation_value":78.2}`,
			string(body))

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(body, &decoded))
		assert.Len(t, decoded, 7)
	})

	t.Run("strips time of day without zone conversion", func(t *testing.T) {
		plus10 := time.FixedZone("AEST", 10*60*60)
		birth := time.Date(2020, 4, 12, 0, 30, 0, 0, plus10)
		obs := time.Date(2021, 6, 28, 23, 59, 59, 0, time.UTC)

		args := validArguments()
		args.BirthDate = &birth
		args.ObservationDate = &obs

		payload, err := BuildPayload(args)
		require.NoError(t, err)
		assert.Equal(t, "2020-04-12", payload.BirthDate)
		assert.Equal(t, "2021-06-28", payload.ObservationDate)
	})

	t.Run("same input yields identical bytes", func(t *testing.T) {
		p1, err := BuildPayload(validArguments())
		require.NoError(t, err)
		p2, err := BuildPayload(validArguments())
		require.NoError(t, err)

		b1, err := p1.Encode()
		require.NoError(t, err)
		b2, err := p2.Encode()
		require.NoError(t, err)
		assert.Equal(t, b1, b2)
	})

	t.Run("missing date is a validation error", func(t *testing.T) {
		args := validArguments()
		args.ObservationDate = nil

		_, err := BuildPayload(args)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, FieldObservationDate, dErrors.FieldOf(err))
	})
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2020-04-12", "2020-04-12"},
		{" 2020-04-12 ", "2020-04-12"},
		{"2020-04-12T23:00:00+01:00", "2020-04-12"},
		{"2020-04-12T00:00:00Z", "2020-04-12"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseDate(tt.in)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, FormatDate(*got))
		})
	}

	for _, bad := range []string{"", "12/04/2020", "not a date", "2020-13-01"} {
		assert.Nil(t, ParseDate(bad), bad)
	}
}

func TestParseReference(t *testing.T) {
	ref, err := ParseReference("")
	require.NoError(t, err)
	assert.Equal(t, ReferenceUKWHO, ref)
	assert.Equal(t, "/uk-who/calculation", ref.Path())

	ref, err = ParseReference("trisomy-21")
	require.NoError(t, err)
	assert.Equal(t, "/trisomy-21/calculation", ref.Path())

	_, err = ParseReference("who-2006")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
