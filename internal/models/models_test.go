package models

import (
	"testing"
	"time"

	"github.com/randytsao24/velib/internal/apperr"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		installed, renting, returning bool
		want                          StationStatus
	}{
		{true, true, true, StatusOperational},
		{true, true, false, StatusInstalled},
		{true, false, true, StatusInstalled},
		{true, false, false, StatusMaintenance},
		{false, true, true, StatusOutOfService},
	}
	for _, tt := range tests {
		if got := DeriveStatus(tt.installed, tt.renting, tt.returning); got != tt.want {
			t.Errorf("DeriveStatus(%v, %v, %v) = %q, want %q", tt.installed, tt.renting, tt.returning, got, tt.want)
		}
	}
}

func TestFreshnessFromAge(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want Freshness
	}{
		{0, FreshnessFresh},
		{4*time.Minute + 59*time.Second, FreshnessFresh},
		{5 * time.Minute, FreshnessRecent},
		{14 * time.Minute, FreshnessRecent},
		{15 * time.Minute, FreshnessStale},
		{59 * time.Minute, FreshnessStale},
		{time.Hour, FreshnessVeryStale},
	}
	for _, tt := range tests {
		if got := FreshnessFromAge(tt.age); got != tt.want {
			t.Errorf("FreshnessFromAge(%v) = %q, want %q", tt.age, got, tt.want)
		}
	}
}

func TestBikeAvailability(t *testing.T) {
	b := BikeAvailability{Mechanical: 3, Electric: 0}
	if b.Total() != 3 || !b.HasAny() || !b.HasMechanical() || b.HasElectric() {
		t.Errorf("unexpected predicates for %+v", b)
	}
	if b.Count(BikeTypeElectric) != 0 || b.Count(BikeTypeAny) != 3 || b.Count("") != 3 {
		t.Errorf("unexpected counts for %+v", b)
	}
}

func station(capacity, mech, elec, docks int) Station {
	return Station{
		Reference: StationReference{Code: "1001", Name: "Test", Capacity: capacity},
		RealTime: &RealTimeStatus{
			Code:           "1001",
			Bikes:          BikeAvailability{Mechanical: mech, Electric: elec},
			AvailableDocks: docks,
			Status:         StatusOperational,
		},
	}
}

func TestStationValidate(t *testing.T) {
	tests := []struct {
		name    string
		station Station
		kind    apperr.Kind
	}{
		{"valid", station(20, 5, 5, 10), ""},
		{"full", station(20, 10, 10, 0), ""},
		{"over capacity", station(20, 10, 5, 10), apperr.KindCapacityViolation},
		{"zero capacity", station(0, 0, 0, 0), apperr.KindValidation},
		{"absurd capacity", station(500, 0, 0, 0), apperr.KindValidation},
		{"reference only", Station{Reference: StationReference{Code: "1", Capacity: 10}}, ""},
		{"missing code", Station{Reference: StationReference{Capacity: 10}}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.station.Validate()
			if apperr.KindOf(err) != tt.kind {
				t.Errorf("Validate() kind = %q, want %q (err=%v)", apperr.KindOf(err), tt.kind, err)
			}
		})
	}
}

func TestStationPredicates(t *testing.T) {
	noLive := Station{Reference: StationReference{Code: "1", Capacity: 10}}
	if !noLive.IsOperational() {
		t.Error("station without live data counts as operational")
	}
	if noLive.HasBikes(BikeTypeAny, 1) || noLive.HasDocks(1) {
		t.Error("availability filters require live data")
	}

	s := station(20, 2, 1, 4)
	if !s.HasBikes(BikeTypeElectric, 0) || s.HasBikes(BikeTypeElectric, 2) {
		t.Error("electric bike filter mismatch")
	}
	if !s.HasDocks(4) || s.HasDocks(5) {
		t.Error("dock filter mismatch")
	}

	s.RealTime.Status = StatusMaintenance
	if s.IsOperational() {
		t.Error("maintenance station should not be operational")
	}
}

func TestParseBikeTypeFilter(t *testing.T) {
	for in, want := range map[string]BikeTypeFilter{
		"": BikeTypeAny, "any": BikeTypeAny, "mechanical": BikeTypeMechanical, "electric": BikeTypeElectric, "ebike": BikeTypeElectric,
	} {
		got, err := ParseBikeTypeFilter(in)
		if err != nil || got != want {
			t.Errorf("ParseBikeTypeFilter(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseBikeTypeFilter("tandem"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
