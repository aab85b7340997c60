package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/urfave/cli/v3"

	"growthsheet/internal/growth/domain"
	"growthsheet/internal/growth/providers/adapters"
	"growthsheet/internal/growth/service"
	"growthsheet/internal/platform/config"
	"growthsheet/internal/platform/logger"
	dErrors "growthsheet/pkg/domain-errors"
)

// calculation selects which service function a command runs and its columns.
type calculation struct {
	run     func(*service.Service, context.Context, domain.Arguments) (domain.Table, error)
	columns func(domain.Mode) []string
}

// newApp builds the command tree. Upstream defaults come from the same
// environment variables the server reads.
func newApp() *cli.Command {
	growth := config.GrowthFromEnv()
	baseURL := growth.BaseURL
	if baseURL == "" {
		baseURL = adapters.DefaultBaseURL
	}

	return &cli.Command{
		Name:  "growthcalc",
		Usage: "SDS, centiles and decimal ages from the RCPCH growth API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "api-key",
				Value:       growth.APIKey,
				HideDefault: true,
				Usage:       "growth API subscription key ($GROWTH_API_KEY)",
			},
			&cli.StringFlag{
				Name:  "base-url",
				Value: baseURL,
				Usage: "growth API base URL ($GROWTH_API_BASE_URL)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: growth.Timeout,
				Usage: "upstream request timeout, 0 disables it ($GROWTH_API_TIMEOUT)",
			},
			&cli.StringFlag{
				Name:  "reference",
				Value: string(domain.DefaultReference),
				Usage: "growth reference: uk-who, trisomy-21, turner or cdc",
			},
			&cli.BoolFlag{
				Name:  "header",
				Usage: "print the column names before the row",
			},
			&cli.BoolFlag{
				Name:  "scalar",
				Usage: "print the bare value of a single-column mode",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log upstream responses to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "sds-centile",
				Usage: "corrected and chronological SDS and centiles",
				Flags: measurementFlags(`"both", "sds" or "centiles"`),
				Action: runCalculation(calculation{
					run: (*service.Service).SDSCentile,
					columns: func(m domain.Mode) []string {
						return domain.ColumnNames(domain.SDSCentileProjection, m)
					},
				}),
			},
			{
				Name:    "age",
				Aliases: []string{"corrected-decimal-age"},
				Usage:   "chronological and corrected decimal age",
				Flags:   measurementFlags(`"both", "chron" or "corr"`),
				Action: runCalculation(calculation{
					run: (*service.Service).CorrectedDecimalAge,
					columns: func(m domain.Mode) []string {
						return domain.ColumnNames(domain.DecimalAgeProjection, m)
					},
				}),
			},
		},
	}
}

func measurementFlags(modes string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "birth-date", Usage: "date of birth, YYYY-MM-DD"},
		&cli.StringFlag{Name: "observation-date", Usage: "date of the measurement, YYYY-MM-DD"},
		&cli.FloatFlag{Name: "gestation-weeks", Usage: "completed weeks of gestation at birth"},
		&cli.FloatFlag{Name: "gestation-days", Usage: "additional days of gestation"},
		&cli.StringFlag{Name: "sex", Usage: `"male" or "female"`},
		&cli.StringFlag{Name: "method", Usage: `"height", "weight", "ofc" or "bmi"`},
		&cli.FloatFlag{Name: "value", Usage: "observation value"},
		&cli.StringFlag{Name: "mode", Usage: "output mode: " + modes},
	}
}

func runCalculation(calc calculation) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		level := slog.LevelWarn
		if cmd.Bool("debug") {
			level = slog.LevelDebug
		}
		log := logger.NewWithWriter(os.Stderr, level)

		adapter := adapters.New(adapters.HTTPAdapterConfig{
			BaseURL: cmd.String("base-url"),
			Timeout: cmd.Duration("timeout"),
			Logger:  log,
		})
		svc := service.New(adapter, service.WithLogger(log))

		args := domain.Arguments{
			BirthDate:         domain.ParseDate(cmd.String("birth-date")),
			ObservationDate:   domain.ParseDate(cmd.String("observation-date")),
			GestationWeeks:    floatOrNaN(cmd, "gestation-weeks"),
			GestationDays:     floatOrNaN(cmd, "gestation-days"),
			Sex:               cmd.String("sex"),
			MeasurementMethod: cmd.String("method"),
			ObservationValue:  floatOrNaN(cmd, "value"),
			APIKey:            cmd.String("api-key"),
			OutputMode:        cmd.String("mode"),
			Reference:         domain.Reference(cmd.String("reference")),
		}

		scalar := cmd.Bool("scalar")
		if scalar && len(calc.columns(args.Mode())) > 1 {
			return dErrors.Invalid("scalar", "--scalar needs a single-column --mode")
		}

		table, err := calc.run(svc, ctx, args)
		if err != nil {
			return err
		}

		if scalar {
			cell, ok := table.Scalar()
			if !ok {
				return dErrors.New(dErrors.CodeInternal, "calculation did not return a single cell")
			}
			_, err := fmt.Fprintln(cmd.Root().Writer, cell.String())
			return err
		}

		w := csv.NewWriter(cmd.Root().Writer)
		if cmd.Bool("header") {
			_ = w.Write(calc.columns(args.Mode()))
		}
		for _, row := range table {
			record := make([]string, len(row))
			for i, cell := range row {
				record[i] = cell.String()
			}
			_ = w.Write(record)
		}
		w.Flush()
		return w.Error()
	}
}

// floatOrNaN leaves unset numeric flags as "not a number" so the validator
// reports them instead of a silent zero.
func floatOrNaN(cmd *cli.Command, name string) float64 {
	if !cmd.IsSet(name) {
		return math.NaN()
	}
	return cmd.Float(name)
}
