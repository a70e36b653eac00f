package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/PetoAdam/homenavi/readings-service/internal/patch"
	"github.com/PetoAdam/homenavi/readings-service/internal/store"
	apperrors "github.com/PetoAdam/homenavi/readings-service/pkg/errors"
)

type readingInput struct {
	DeviceName             string   `json:"deviceName"`
	PrecipitationMMH       *float64 `json:"precipitationMMH"`
	Time                   bodyTime `json:"time"`
	Latitude               *float64 `json:"latitude"`
	Longitude              *float64 `json:"longitude"`
	TemperatureC           *float64 `json:"temperatureC"`
	AtmosphericPressureKPA *float64 `json:"atmosphericPressureKPA"`
	MaxWindSpeedMS         *float64 `json:"maxWindSpeedMS"`
	SolarRadiationWM2      *float64 `json:"solarRadiationWM2"`
	VaporPressureKPA       *float64 `json:"vaporPressureKPA"`
	HumidityPercentage     *float64 `json:"humidityPercentage"`
	WindDirection          *float64 `json:"windDirection"`
	// Version is only read by replace.
	Version int64 `json:"version,omitempty"`
}

func (in readingInput) model() store.Reading {
	return store.Reading{
		DeviceName:             strings.TrimSpace(in.DeviceName),
		PrecipitationMMH:       in.PrecipitationMMH,
		Time:                   in.Time.Time,
		Latitude:               in.Latitude,
		Longitude:              in.Longitude,
		TemperatureC:           in.TemperatureC,
		AtmosphericPressureKPA: in.AtmosphericPressureKPA,
		MaxWindSpeedMS:         in.MaxWindSpeedMS,
		SolarRadiationWM2:      in.SolarRadiationWM2,
		VaporPressureKPA:       in.VaporPressureKPA,
		HumidityPercentage:     in.HumidityPercentage,
		WindDirection:          in.WindDirection,
	}
}

// bodyTime accepts the same layouts as query parameters and patches.
type bodyTime struct {
	time.Time
}

func (t *bodyTime) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := patch.ParseTime(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

type precipitationRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	var c store.ReadingCriteria
	if v := r.URL.Query().Get("deviceNamePartial"); v != "" {
		c.DeviceNamePartial = &v
	}
	var err error
	if c.TimeFrom, err = queryTime(r, "timeFrom", false); err != nil {
		writeError(w, r, err)
		return
	}
	if c.TimeTo, err = queryTime(r, "timeTo", false); err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.repo.ListReadings(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetReading(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rd, err := s.repo.GetReading(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func (s *Server) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	var req readingInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rd := req.model()
	if err := s.repo.CreateReading(r.Context(), &rd); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rd)
}

func (s *Server) handleCreateReadings(w http.ResponseWriter, r *http.Request) {
	var req []readingInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rds := make([]store.Reading, 0, len(req))
	for _, in := range req {
		rds = append(rds, in.model())
	}
	if err := s.repo.CreateReadings(r.Context(), rds); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rds)
}

func (s *Server) handleReplaceReading(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req readingInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rd, err := s.repo.ReplaceReading(r.Context(), id, req.model(), req.Version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func (s *Server) handlePatchReadings(w http.ResponseWriter, r *http.Request) {
	var req patchRequest[store.ReadingCriteria]
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.repo.PatchReadings(r.Context(), req.PropertyName, req.PropertyValue, req.Filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.recordPatch(r, "readings", res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePatchPrecipitation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req precipitationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.repo.PatchPrecipitation(r.Context(), id, req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.recordPatch(r, "readings", res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteReading(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.repo.DeleteReading(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteReadings takes criteria in the body; an empty object deletes
// every reading.
func (s *Server) handleDeleteReadings(w http.ResponseWriter, r *http.Request) {
	var c store.ReadingCriteria
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.repo.DeleteReadings(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Deleted: n})
}

func (s *Server) handleMaxTemperature(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from", true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryTime(r, "to", true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.repo.MaxTemperaturePerDevice(r.Context(), *from, *to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHour(w http.ResponseWriter, r *http.Request) {
	at, err := queryTime(r, "at", true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.repo.ReadingsForHour(r.Context(), *at)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMaxPrecipitation(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("deviceName"))
	if name == "" {
		writeError(w, r, apperrors.InvalidValue("deviceName is required", nil))
		return
	}
	out, err := s.repo.MaxPrecipitation(r.Context(), name, s.opts.PrecipitationWindowMonths)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
