package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	apperrors "github.com/PetoAdam/homenavi/readings-service/pkg/errors"
)

func mustCreateReading(t *testing.T, repo *Repo, device string, at time.Time, temp *float64) *Reading {
	t.Helper()
	rd := &Reading{DeviceName: device, Time: at, TemperatureC: temp}
	require.NoError(t, repo.CreateReading(context.Background(), rd))
	return rd
}

func TestCreateReadingDerivesBucketAndLocation(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 10, 45, 12, 0, time.FixedZone("CET", 3600))

	rd := &Reading{DeviceName: "Woodford_Sensor", Time: at, Latitude: ptr(-27.5), Longitude: ptr(152.123456)}
	require.NoError(t, repo.CreateReading(ctx, rd))

	got, err := repo.GetReading(ctx, rd.ID)
	require.NoError(t, err)
	require.True(t, got.Time.Equal(at))
	require.True(t, got.HourBucket.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)))
	require.Equal(t, "-27.5000,152.1235", got.Location)
	require.EqualValues(t, 1, got.Version)

	noCoords := mustCreateReading(t, repo, "S2", at, nil)
	got, err = repo.GetReading(ctx, noCoords.ID)
	require.NoError(t, err)
	require.Empty(t, got.Location)

	require.True(t, errors.Is(repo.CreateReading(ctx, &Reading{Time: at}), apperrors.ErrInvalidValue))
}

func TestCreateReadingsRejectsWholeBatch(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := repo.CreateReadings(ctx, []Reading{{DeviceName: "S1", Time: at}, {DeviceName: "", Time: at}})
	require.True(t, errors.Is(err, apperrors.ErrInvalidValue))
	all, err := repo.ListReadings(ctx, ReadingCriteria{})
	require.NoError(t, err)
	require.Empty(t, all)

	require.NoError(t, repo.CreateReadings(ctx, []Reading{{DeviceName: "S1", Time: at}, {DeviceName: "S2", Time: at}}))
	all, err = repo.ListReadings(ctx, ReadingCriteria{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestListReadingsByNameIsLiteral(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustCreateReading(t, repo, "A.1", at, nil)
	mustCreateReading(t, repo, "AB1", at.Add(time.Minute), nil)

	rows, err := repo.ListReadings(ctx, ReadingCriteria{DeviceNamePartial: ptr("A.1")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "A.1", rows[0].DeviceName)

	rows, err = repo.ListReadings(ctx, ReadingCriteria{DeviceNamePartial: ptr("a.1")})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestListReadingsNumericRange(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustCreateReading(t, repo, "S1", at, ptr(19.99))
	mustCreateReading(t, repo, "S1", at.Add(time.Hour), ptr(20.0))
	mustCreateReading(t, repo, "S1", at.Add(2*time.Hour), ptr(25.0))
	mustCreateReading(t, repo, "S1", at.Add(3*time.Hour), ptr(25.01))

	rows, err := repo.ListReadings(ctx, ReadingCriteria{TemperatureCMin: ptr(20.0), TemperatureCMax: ptr(25.0)})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, 20.0, *rows[0].TemperatureC)
	require.Equal(t, 25.0, *rows[1].TemperatureC)
}

func TestReplaceReadingCompareAndSwap(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rd := mustCreateReading(t, repo, "S1", at, ptr(10.0))

	next := Reading{DeviceName: "S1-renamed", Time: at.Add(90 * time.Minute), PrecipitationMMH: ptr(0.4)}
	got, err := repo.ReplaceReading(ctx, rd.ID, next, 1)
	require.NoError(t, err)
	require.Equal(t, "S1-renamed", got.DeviceName)
	require.Nil(t, got.TemperatureC)
	require.True(t, got.HourBucket.Equal(time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)))
	require.EqualValues(t, 2, got.Version)

	_, err = repo.ReplaceReading(ctx, rd.ID, next, 1)
	require.True(t, errors.Is(err, apperrors.ErrConflict))
	_, err = repo.ReplaceReading(ctx, uuid.New(), next, 0)
	require.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestPatchReadingsTimeMovesBucket(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	rd := mustCreateReading(t, repo, "S1", time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), nil)

	res, err := repo.PatchReadings(ctx, "time", "2024-01-01T10:30:00Z", ReadingCriteria{ID: &rd.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Affected)

	hour, err := repo.ReadingsForHour(ctx, time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, hour, 1)
}

func TestPatchReadingsBadValueChangesNothing(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustCreateReading(t, repo, "S1", at, ptr(10.0))
	mustCreateReading(t, repo, "S2", at, ptr(11.0))

	_, err := repo.PatchReadings(ctx, "temperatureC", "not-a-number", ReadingCriteria{})
	require.True(t, errors.Is(err, apperrors.ErrInvalidValue))
	_, err = repo.PatchReadings(ctx, "colour", "red", ReadingCriteria{})
	require.True(t, errors.Is(err, apperrors.ErrUnknownProperty))

	rows, err := repo.ListReadings(ctx, ReadingCriteria{})
	require.NoError(t, err)
	require.Equal(t, 10.0, *rows[0].TemperatureC)
	require.Equal(t, 11.0, *rows[1].TemperatureC)

	res, err := repo.PatchReadings(ctx, "humidityPercetage", "55", ReadingCriteria{})
	require.NoError(t, err)
	require.Equal(t, "humidityPercentage", res.Property)
	require.EqualValues(t, 2, res.Affected)
}

func TestPatchPrecipitation(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	rd := mustCreateReading(t, repo, "S1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil)

	_, err := repo.PatchPrecipitation(ctx, rd.ID, "2.5")
	require.NoError(t, err)
	got, err := repo.GetReading(ctx, rd.ID)
	require.NoError(t, err)
	require.Equal(t, 2.5, *got.PrecipitationMMH)

	_, err = repo.PatchPrecipitation(ctx, uuid.New(), "2.5")
	require.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestDeleteReadings(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	keep := mustCreateReading(t, repo, "keep", at, nil)
	drop := mustCreateReading(t, repo, "drop-1", at, nil)
	mustCreateReading(t, repo, "drop-2", at, nil)

	require.NoError(t, repo.DeleteReading(ctx, drop.ID))
	require.True(t, errors.Is(repo.DeleteReading(ctx, drop.ID), apperrors.ErrNotFound))

	n, err := repo.DeleteReadings(ctx, ReadingCriteria{DeviceNamePartial: ptr("drop")})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = repo.GetReading(ctx, keep.ID)
	require.NoError(t, err)

	n, err = repo.DeleteReadings(ctx, ReadingCriteria{})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
