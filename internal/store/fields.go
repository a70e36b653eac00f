package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/PetoAdam/homenavi/readings-service/internal/criteria"
	"github.com/PetoAdam/homenavi/readings-service/internal/patch"
	apperrors "github.com/PetoAdam/homenavi/readings-service/pkg/errors"
	"github.com/PetoAdam/homenavi/readings-service/pkg/roles"
)

// bcryptCost is lowered by tests.
var bcryptCost = bcrypt.DefaultCost

// ReadingCriteria selects readings. Every field is optional.
type ReadingCriteria struct {
	ID                *uuid.UUID `json:"id,omitempty"`
	DeviceNamePartial *string    `json:"deviceNamePartial,omitempty"`
	TimeFrom          *time.Time `json:"timeFrom,omitempty"`
	TimeTo            *time.Time `json:"timeTo,omitempty"`

	PrecipitationMMHMin       *float64 `json:"precipitationMMHMin,omitempty"`
	PrecipitationMMHMax       *float64 `json:"precipitationMMHMax,omitempty"`
	LatitudeMin               *float64 `json:"latitudeMin,omitempty"`
	LatitudeMax               *float64 `json:"latitudeMax,omitempty"`
	LongitudeMin              *float64 `json:"longitudeMin,omitempty"`
	LongitudeMax              *float64 `json:"longitudeMax,omitempty"`
	TemperatureCMin           *float64 `json:"temperatureCMin,omitempty"`
	TemperatureCMax           *float64 `json:"temperatureCMax,omitempty"`
	AtmosphericPressureKPAMin *float64 `json:"atmosphericPressureKPAMin,omitempty"`
	AtmosphericPressureKPAMax *float64 `json:"atmosphericPressureKPAMax,omitempty"`
	MaxWindSpeedMSMin         *float64 `json:"maxWindSpeedMSMin,omitempty"`
	MaxWindSpeedMSMax         *float64 `json:"maxWindSpeedMSMax,omitempty"`
	SolarRadiationWM2Min      *float64 `json:"solarRadiationWM2Min,omitempty"`
	SolarRadiationWM2Max      *float64 `json:"solarRadiationWM2Max,omitempty"`
	VaporPressureKPAMin       *float64 `json:"vaporPressureKPAMin,omitempty"`
	VaporPressureKPAMax       *float64 `json:"vaporPressureKPAMax,omitempty"`
	HumidityPercentageMin     *float64 `json:"humidityPercentageMin,omitempty"`
	HumidityPercentageMax     *float64 `json:"humidityPercentageMax,omitempty"`
	WindDirectionMin          *float64 `json:"windDirectionMin,omitempty"`
	WindDirectionMax          *float64 `json:"windDirectionMax,omitempty"`
}

type rc = ReadingCriteria

func floatRange(column string, min, max func(rc) *float64) []criteria.Field[rc] {
	return []criteria.Field[rc]{
		{Column: column, Kind: criteria.AtLeast, Value: criteria.Float(min)},
		{Column: column, Kind: criteria.AtMost, Value: criteria.Float(max)},
	}
}

func readingFields() []criteria.Field[rc] {
	fields := []criteria.Field[rc]{
		{Column: "id", Kind: criteria.Equal, Value: criteria.UUID(func(c rc) *uuid.UUID { return c.ID })},
		{Column: "device_name", Kind: criteria.Contains, Value: criteria.String(func(c rc) *string { return c.DeviceNamePartial })},
		{Column: "time", Kind: criteria.AtLeast, Value: criteria.Time(func(c rc) *time.Time { return c.TimeFrom })},
		{Column: "time", Kind: criteria.AtMost, Value: criteria.Time(func(c rc) *time.Time { return c.TimeTo })},
	}
	fields = append(fields, floatRange("precipitation_mmh", func(c rc) *float64 { return c.PrecipitationMMHMin }, func(c rc) *float64 { return c.PrecipitationMMHMax })...)
	fields = append(fields, floatRange("latitude", func(c rc) *float64 { return c.LatitudeMin }, func(c rc) *float64 { return c.LatitudeMax })...)
	fields = append(fields, floatRange("longitude", func(c rc) *float64 { return c.LongitudeMin }, func(c rc) *float64 { return c.LongitudeMax })...)
	fields = append(fields, floatRange("temperature_c", func(c rc) *float64 { return c.TemperatureCMin }, func(c rc) *float64 { return c.TemperatureCMax })...)
	fields = append(fields, floatRange("atmospheric_pressure_kpa", func(c rc) *float64 { return c.AtmosphericPressureKPAMin }, func(c rc) *float64 { return c.AtmosphericPressureKPAMax })...)
	fields = append(fields, floatRange("max_wind_speed_ms", func(c rc) *float64 { return c.MaxWindSpeedMSMin }, func(c rc) *float64 { return c.MaxWindSpeedMSMax })...)
	fields = append(fields, floatRange("solar_radiation_wm2", func(c rc) *float64 { return c.SolarRadiationWM2Min }, func(c rc) *float64 { return c.SolarRadiationWM2Max })...)
	fields = append(fields, floatRange("vapor_pressure_kpa", func(c rc) *float64 { return c.VaporPressureKPAMin }, func(c rc) *float64 { return c.VaporPressureKPAMax })...)
	fields = append(fields, floatRange("humidity_percentage", func(c rc) *float64 { return c.HumidityPercentageMin }, func(c rc) *float64 { return c.HumidityPercentageMax })...)
	fields = append(fields, floatRange("wind_direction", func(c rc) *float64 { return c.WindDirectionMin }, func(c rc) *float64 { return c.WindDirectionMax })...)
	return fields
}

// ReadingCriteriaFields maps every ReadingCriteria attribute to its clause.
var ReadingCriteriaFields = readingFields()

func (c ReadingCriteria) Predicate() criteria.Predicate {
	return criteria.Build(ReadingCriteriaFields, c)
}

// AccountCriteria selects accounts by id and creation range.
type AccountCriteria struct {
	ID          *uuid.UUID `json:"id,omitempty"`
	CreatedFrom *time.Time `json:"createdFrom,omitempty"`
	CreatedTo   *time.Time `json:"createdTo,omitempty"`
}

var AccountCriteriaFields = []criteria.Field[AccountCriteria]{
	{Column: "id", Kind: criteria.Equal, Value: criteria.UUID(func(c AccountCriteria) *uuid.UUID { return c.ID })},
	{Column: "created_at", Kind: criteria.AtLeast, Value: criteria.Time(func(c AccountCriteria) *time.Time { return c.CreatedFrom })},
	{Column: "created_at", Kind: criteria.AtMost, Value: criteria.Time(func(c AccountCriteria) *time.Time { return c.CreatedTo })},
}

func (c AccountCriteria) Predicate() criteria.Predicate {
	return criteria.Build(AccountCriteriaFields, c)
}

var ReadingPatchTable = patch.NewTable(
	patch.Field{Name: "deviceName", Parse: patch.Text("device_name")},
	patch.Field{Name: "precipitationMMH", Parse: patch.Float("precipitation_mmh")},
	patch.Field{Name: "time", Parse: patch.Time("time", map[string]func(time.Time) time.Time{"hour_bucket": HourOf})},
	patch.Field{Name: "latitude", Parse: patch.Float("latitude")},
	patch.Field{Name: "longitude", Parse: patch.Float("longitude")},
	patch.Field{Name: "temperatureC", Parse: patch.Float("temperature_c")},
	patch.Field{Name: "atmosphericPressureKPA", Parse: patch.Float("atmospheric_pressure_kpa")},
	patch.Field{Name: "maxWindSpeedMS", Parse: patch.Float("max_wind_speed_ms")},
	patch.Field{Name: "solarRadiationWM2", Parse: patch.Float("solar_radiation_wm2")},
	patch.Field{Name: "vaporPressureKPA", Parse: patch.Float("vapor_pressure_kpa")},
	// The misspelt alias is what older clients send.
	patch.Field{Name: "humidityPercentage", Aliases: []string{"humidityPercetage"}, Parse: patch.Float("humidity_percentage")},
	patch.Field{Name: "windDirection", Parse: patch.Float("wind_direction")},
)

var AccountPatchTable = patch.NewTable(
	patch.Field{Name: "userName", Parse: parseUsername, Guard: uniqueUsername},
	patch.Field{Name: "passwordHash", Parse: parsePassword},
	patch.Field{Name: "userRole", Parse: parseRole},
)

func parseUsername(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, errors.New("user name must not be empty")
	}
	return map[string]any{"username": raw}, nil
}

// parsePassword takes the new plaintext password; only its hash is stored.
func parsePassword(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcryptCost)
	if err != nil {
		return nil, err
	}
	return map[string]any{"password_hash": string(hash)}, nil
}

func parseRole(raw string) (map[string]any, error) {
	role, err := roles.Parse(raw)
	if err != nil {
		return nil, err
	}
	return map[string]any{"role": role.String()}, nil
}

// uniqueUsername allows a rename only when it targets a single account and
// no other account holds the name.
func uniqueUsername(ctx context.Context, scoped *gorm.DB, values map[string]any) error {
	var ids []uuid.UUID
	if err := scoped.Limit(2).Pluck("id", &ids).Error; err != nil {
		return apperrors.StoreFailure("could not check accounts", err)
	}
	if len(ids) > 1 {
		return apperrors.Conflict("userName can only be changed on one account at a time")
	}

	q := scoped.Session(&gorm.Session{NewDB: true}).WithContext(ctx).Model(&Account{}).Where("username = ?", values["username"])
	if len(ids) == 1 {
		q = q.Where("id <> ?", ids[0])
	}
	var taken int64
	if err := q.Count(&taken).Error; err != nil {
		return apperrors.StoreFailure("could not check accounts", err)
	}
	if taken > 0 {
		return apperrors.Conflict(fmt.Sprintf("user name %q is already taken", values["username"]))
	}
	return nil
}
