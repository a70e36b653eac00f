package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PetoAdam/homenavi/readings-service/internal/patch"
	apperrors "github.com/PetoAdam/homenavi/readings-service/pkg/errors"
)

var byTime = clause.OrderBy{Columns: []clause.OrderByColumn{
	{Column: clause.Column{Name: "time"}},
	{Column: clause.Column{Name: "id"}},
}}

func prepareReading(rd *Reading) error {
	if rd.DeviceName == "" {
		return apperrors.InvalidValue("deviceName is required", nil)
	}
	if rd.Time.IsZero() {
		return apperrors.InvalidValue("time is required", nil)
	}
	if rd.ID == uuid.Nil {
		rd.ID = uuid.New()
	}
	rd.Version = 1
	rd.normalize()
	rd.Location = formatLocation(rd.Latitude, rd.Longitude)
	return nil
}

func (r *Repo) CreateReading(ctx context.Context, rd *Reading) error {
	if err := prepareReading(rd); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(rd).Error; err != nil {
		return apperrors.StoreFailure("could not insert reading", err)
	}
	return nil
}

// CreateReadings inserts the batch in one statement; a single invalid entry
// rejects the whole batch.
func (r *Repo) CreateReadings(ctx context.Context, rds []Reading) error {
	if len(rds) == 0 {
		return nil
	}
	for i := range rds {
		if err := prepareReading(&rds[i]); err != nil {
			return err
		}
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&rds, 500).Error; err != nil {
		return apperrors.StoreFailure("could not insert readings", err)
	}
	return nil
}

// ListReadings returns matching readings ordered by time, then id.
func (r *Repo) ListReadings(ctx context.Context, where ReadingCriteria) ([]Reading, error) {
	var rows []Reading
	q := where.Predicate().Apply(r.db.WithContext(ctx).Model(&Reading{})).Clauses(byTime)
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperrors.StoreFailure("could not list readings", err)
	}
	return rows, nil
}

func (r *Repo) GetReading(ctx context.Context, id uuid.UUID) (*Reading, error) {
	var rd Reading
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("reading not found")
	}
	if err != nil {
		return nil, apperrors.StoreFailure("could not load reading", err)
	}
	return &rd, nil
}

// ReplaceReading overwrites every field of the reading with id. A non-zero
// expectedVersion must match the stored one.
func (r *Repo) ReplaceReading(ctx context.Context, id uuid.UUID, next Reading, expectedVersion int64) (*Reading, error) {
	if next.DeviceName == "" {
		return nil, apperrors.InvalidValue("deviceName is required", nil)
	}
	if next.Time.IsZero() {
		return nil, apperrors.InvalidValue("time is required", nil)
	}
	existing, err := r.GetReading(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && expectedVersion != existing.Version {
		return nil, apperrors.Conflict("reading was modified concurrently")
	}
	next.normalize()

	res := r.db.WithContext(ctx).Model(&Reading{}).
		Where("id = ? AND version = ?", id, existing.Version).
		Updates(map[string]any{
			"device_name":              next.DeviceName,
			"precipitation_mmh":        next.PrecipitationMMH,
			"time":                     next.Time,
			"hour_bucket":              next.HourBucket,
			"latitude":                 next.Latitude,
			"longitude":                next.Longitude,
			"temperature_c":            next.TemperatureC,
			"atmospheric_pressure_kpa": next.AtmosphericPressureKPA,
			"max_wind_speed_ms":        next.MaxWindSpeedMS,
			"solar_radiation_wm2":      next.SolarRadiationWM2,
			"vapor_pressure_kpa":       next.VaporPressureKPA,
			"humidity_percentage":      next.HumidityPercentage,
			"wind_direction":           next.WindDirection,
			"version":                  existing.Version + 1,
		})
	if res.Error != nil {
		return nil, apperrors.StoreFailure("could not replace reading", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.Conflict("reading was modified concurrently")
	}
	return r.GetReading(ctx, id)
}

func (r *Repo) PatchReadings(ctx context.Context, property, value string, where ReadingCriteria) (patch.Result, error) {
	return r.readings.Patch(ctx, property, value, where.Predicate())
}

// PatchPrecipitation sets precipitation on a single reading.
func (r *Repo) PatchPrecipitation(ctx context.Context, id uuid.UUID, value string) (patch.Result, error) {
	res, err := r.readings.Patch(ctx, "precipitationMMH", value, ReadingCriteria{ID: &id}.Predicate())
	if err != nil {
		return res, err
	}
	if res.Affected == 0 {
		return res, apperrors.NotFound("reading not found")
	}
	return res, nil
}

func (r *Repo) DeleteReading(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&Reading{}, "id = ?", id)
	if res.Error != nil {
		return apperrors.StoreFailure("could not delete reading", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("reading not found")
	}
	return nil
}

// DeleteReadings removes every reading matching where. Empty criteria
// deletes everything.
func (r *Repo) DeleteReadings(ctx context.Context, where ReadingCriteria) (int64, error) {
	res := where.Predicate().Apply(r.db.WithContext(ctx).Model(&Reading{})).Delete(&Reading{})
	if res.Error != nil {
		return 0, apperrors.StoreFailure("could not delete readings", res.Error)
	}
	return res.RowsAffected, nil
}
