package store

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/PetoAdam/homenavi/readings-service/internal/criteria"
	apperrors "github.com/PetoAdam/homenavi/readings-service/pkg/errors"
)

type DeviceMaxTemperature struct {
	DeviceName   string    `json:"deviceName"`
	TemperatureC float64   `json:"temperatureC"`
	Time         time.Time `json:"time"`
}

// EnvironmentalReading is the slim projection served by the hour report.
type EnvironmentalReading struct {
	DeviceName          string    `json:"deviceName"`
	TemperatureC        *float64  `json:"temperatureC"`
	AtmosphericPressure *float64  `json:"atmosphericPressure"`
	Radiation           *float64  `json:"radiation"`
	Precipitation       *float64  `json:"precipitation"`
	Time                time.Time `json:"time"`
}

type DevicePrecipitation struct {
	DeviceName       string    `json:"deviceName"`
	PrecipitationMMH float64   `json:"precipitationMMH"`
	Time             time.Time `json:"time"`
}

func timeBetween(from, to time.Time) []clause.Expression {
	col := clause.Column{Name: "time"}
	return []clause.Expression{
		clause.Gte{Column: col, Value: from.UTC()},
		clause.Lte{Column: col, Value: to.UTC()},
	}
}

// MaxTemperaturePerDevice reports, per device, the highest temperature in
// [from, to] and when it was first reached inside that range. Devices with
// no temperature in range are left out.
func (r *Repo) MaxTemperaturePerDevice(ctx context.Context, from, to time.Time) ([]DeviceMaxTemperature, error) {
	if to.Before(from) {
		return nil, apperrors.InvalidValue("from must not be after to", nil)
	}
	inRange := append(timeBetween(from, to), clause.Expr{SQL: "temperature_c IS NOT NULL"})

	var maxima []struct {
		DeviceName   string
		TemperatureC float64
	}
	err := r.db.WithContext(ctx).Model(&Reading{}).
		Select("device_name, MAX(temperature_c) AS temperature_c").
		Clauses(clause.Where{Exprs: inRange}).
		Group("device_name").
		Order("device_name").
		Scan(&maxima).Error
	if err != nil {
		return nil, apperrors.StoreFailure("could not compute maximum temperatures", err)
	}

	out := make([]DeviceMaxTemperature, 0, len(maxima))
	for _, m := range maxima {
		var first Reading
		exprs := append(timeBetween(from, to),
			clause.Eq{Column: clause.Column{Name: "device_name"}, Value: m.DeviceName},
			clause.Eq{Column: clause.Column{Name: "temperature_c"}, Value: m.TemperatureC},
		)
		err := r.db.WithContext(ctx).Clauses(clause.Where{Exprs: exprs}, byTime).Limit(1).Find(&first).Error
		if err != nil {
			return nil, apperrors.StoreFailure("could not locate maximum temperature reading", err)
		}
		out = append(out, DeviceMaxTemperature{DeviceName: m.DeviceName, TemperatureC: m.TemperatureC, Time: first.Time.UTC()})
	}
	return out, nil
}

// ReadingsForHour returns readings whose hour bucket equals the hour at
// falls in, ordered by time.
func (r *Repo) ReadingsForHour(ctx context.Context, at time.Time) ([]EnvironmentalReading, error) {
	var rows []Reading
	err := r.db.WithContext(ctx).
		Clauses(clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Name: "hour_bucket"}, Value: HourOf(at)},
		}}, byTime).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.StoreFailure("could not load readings for hour", err)
	}
	out := make([]EnvironmentalReading, 0, len(rows))
	for _, rd := range rows {
		out = append(out, EnvironmentalReading{
			DeviceName:          rd.DeviceName,
			TemperatureC:        rd.TemperatureC,
			AtmosphericPressure: rd.AtmosphericPressureKPA,
			Radiation:           rd.SolarRadiationWM2,
			Precipitation:       rd.PrecipitationMMH,
			Time:                rd.Time.UTC(),
		})
	}
	return out, nil
}

// MaxPrecipitation finds the wettest reading in the trailing window of the
// given number of months for devices whose name contains devicePartial,
// ignoring case.
func (r *Repo) MaxPrecipitation(ctx context.Context, devicePartial string, months int) (*DevicePrecipitation, error) {
	if devicePartial == "" {
		return nil, apperrors.InvalidValue("deviceName is required", nil)
	}
	if months <= 0 {
		return nil, apperrors.InvalidValue("window must be at least one month", nil)
	}
	now := r.now()
	exprs := append(timeBetween(now.AddDate(0, -months, 0), now),
		criteria.ContainsFold("device_name", devicePartial),
		clause.Expr{SQL: "precipitation_mmh IS NOT NULL"},
	)
	order := clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "precipitation_mmh"}, Desc: true},
		{Column: clause.Column{Name: "time"}},
		{Column: clause.Column{Name: "id"}},
	}}

	var top []Reading
	if err := r.db.WithContext(ctx).Clauses(clause.Where{Exprs: exprs}, order).Limit(5).Find(&top).Error; err != nil {
		return nil, apperrors.StoreFailure("could not compute maximum precipitation", err)
	}
	if len(top) == 0 {
		return nil, apperrors.NotFound("no precipitation readings in window")
	}
	best := top[0]
	return &DevicePrecipitation{DeviceName: best.DeviceName, PrecipitationMMH: *best.PrecipitationMMH, Time: best.Time.UTC()}, nil
}
