package velib

import (
	"encoding/json"
	"time"

	"github.com/randytsao24/velib/internal/apperr"
	"github.com/randytsao24/velib/internal/geo"
	"github.com/randytsao24/velib/internal/models"
)

// Fields are pointers so a missing value can be told apart from a zero
type referenceRecord struct {
	StationCode *string  `json:"stationcode"`
	Name        *string  `json:"name"`
	Capacity    *float64 `json:"capacity"`
	Geo         *struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	} `json:"coordonnees_geo"`
}

type realtimeRecord struct {
	StationCode       *string  `json:"stationcode"`
	Mechanical        *float64 `json:"mechanical"`
	Ebike             *float64 `json:"ebike"`
	NumDocksAvailable *float64 `json:"numdocksavailable"`
	IsInstalled       *string  `json:"is_installed"`
	IsRenting         *string  `json:"is_renting"`
	IsReturning       *string  `json:"is_returning"`
	DueDate           string   `json:"duedate"`
}

// parseReference decodes one reference record. Records missing a required
// field or failing validation are rejected.
func parseReference(raw json.RawMessage) (models.StationReference, error) {
	var rec referenceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.StationReference{}, apperr.Wrap(apperr.KindJSON, err, "decoding reference record")
	}
	if rec.StationCode == nil || rec.Name == nil || rec.Capacity == nil ||
		rec.Geo == nil || rec.Geo.Lat == nil || rec.Geo.Lon == nil {
		return models.StationReference{}, apperr.New(apperr.KindJSON, "reference record missing required field")
	}

	coords := models.Coordinates{Latitude: *rec.Geo.Lat, Longitude: *rec.Geo.Lon}
	ref := models.StationReference{
		Code:        *rec.StationCode,
		Name:        *rec.Name,
		Coordinates: coords,
		Capacity:    int(*rec.Capacity),
		Geohash:     geo.Encode(coords),
	}
	if !geo.IsValid(coords) {
		return models.StationReference{}, apperr.InvalidCoordinates("coordonnees_geo", coords.Latitude, coords.Longitude)
	}
	if err := ref.Validate(); err != nil {
		return models.StationReference{}, err
	}
	return ref, nil
}

// parseRealtime decodes one real-time record. Missing bike counts read as
// zero; a missing dock count or status flag rejects the record. A missing or
// malformed duedate is taken as now.
func parseRealtime(raw json.RawMessage, now time.Time) (models.RealTimeStatus, error) {
	var rec realtimeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.RealTimeStatus{}, apperr.Wrap(apperr.KindJSON, err, "decoding real-time record")
	}
	if rec.StationCode == nil || *rec.StationCode == "" || rec.NumDocksAvailable == nil ||
		rec.IsInstalled == nil || rec.IsRenting == nil || rec.IsReturning == nil {
		return models.RealTimeStatus{}, apperr.New(apperr.KindJSON, "real-time record missing required field")
	}

	service := models.ServiceCapabilities{
		RentingEnabled:   *rec.IsRenting == "OUI",
		ReturningEnabled: *rec.IsReturning == "OUI",
		Installed:        *rec.IsInstalled == "OUI",
	}

	updated := now
	if rec.DueDate != "" {
		if t, err := time.Parse(time.RFC3339, rec.DueDate); err == nil {
			updated = t.UTC()
		}
	}

	status := models.RealTimeStatus{
		Code: *rec.StationCode,
		Bikes: models.BikeAvailability{
			Mechanical: intOrZero(rec.Mechanical),
			Electric:   intOrZero(rec.Ebike),
		},
		AvailableDocks: int(*rec.NumDocksAvailable),
		Service:        service,
		Status:         service.Status(),
		LastUpdate:     updated,
	}
	if status.Bikes.Mechanical < 0 || status.Bikes.Electric < 0 || status.AvailableDocks < 0 {
		return models.RealTimeStatus{}, apperr.Validation("bikes", status.Bikes, "station %s: negative availability", status.Code)
	}
	status.Refresh(now)
	return status, nil
}

func intOrZero(v *float64) int {
	if v == nil {
		return 0
	}
	return int(*v)
}
