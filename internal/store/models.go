package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Account struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"userName"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Role         string     `gorm:"type:varchar(16);not null;index" json:"userRole"`
	CreatedAt    time.Time  `gorm:"index" json:"createdAt"`
	LastSeenAt   time.Time  `gorm:"index" json:"lastSeenAt"`
	Credential   string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	ExpiresAt    *time.Time `json:"-"`
	Version      int64      `gorm:"not null;default:1" json:"version"`
}

type Reading struct {
	ID                     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceName             string    `gorm:"type:varchar(128);not null;index:idx_device_time,priority:1" json:"deviceName"`
	PrecipitationMMH       *float64  `gorm:"column:precipitation_mmh" json:"precipitationMMH"`
	Time                   time.Time `gorm:"not null;index:idx_device_time,priority:2" json:"time"`
	HourBucket             time.Time `gorm:"not null;index" json:"-"`
	Latitude               *float64  `gorm:"column:latitude" json:"latitude"`
	Longitude              *float64  `gorm:"column:longitude" json:"longitude"`
	TemperatureC           *float64  `gorm:"column:temperature_c" json:"temperatureC"`
	AtmosphericPressureKPA *float64  `gorm:"column:atmospheric_pressure_kpa" json:"atmosphericPressureKPA"`
	MaxWindSpeedMS         *float64  `gorm:"column:max_wind_speed_ms" json:"maxWindSpeedMS"`
	SolarRadiationWM2      *float64  `gorm:"column:solar_radiation_wm2" json:"solarRadiationWM2"`
	VaporPressureKPA       *float64  `gorm:"column:vapor_pressure_kpa" json:"vaporPressureKPA"`
	HumidityPercentage     *float64  `gorm:"column:humidity_percentage" json:"humidityPercentage"`
	WindDirection          *float64  `gorm:"column:wind_direction" json:"windDirection"`
	Location               string    `gorm:"-" json:"location"`
	Version                int64     `gorm:"not null;default:1" json:"version"`
}

// HourOf is the bucket a reading taken at t belongs to.
func HourOf(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// normalize keeps time in UTC and the stored hour bucket in step with it.
func (r *Reading) normalize() {
	r.Time = r.Time.UTC()
	r.HourBucket = HourOf(r.Time)
}

// AfterFind fills the derived location.
func (r *Reading) AfterFind(tx *gorm.DB) error {
	r.Location = formatLocation(r.Latitude, r.Longitude)
	return nil
}

func formatLocation(lat, lon *float64) string {
	if lat == nil || lon == nil {
		return ""
	}
	return fmt.Sprintf("%.4f,%.4f", *lat, *lon)
}
