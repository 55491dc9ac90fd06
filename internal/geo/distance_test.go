package geo

import (
	"math"
	"testing"

	"github.com/randytsao24/velib/internal/apperr"
	"github.com/randytsao24/velib/internal/models"
)

var (
	louvre    = models.Coordinates{Latitude: 48.8606, Longitude: 2.3376}
	notreDame = models.Coordinates{Latitude: 48.8530, Longitude: 2.3499}
	london    = models.Coordinates{Latitude: 51.5074, Longitude: -0.1278}
)

func TestDistance(t *testing.T) {
	d := Distance(ParisCenter, louvre)
	if d < 1000 || d > 1500 {
		t.Errorf("Distance(center, louvre) = %.1fm, want within [1000, 1500]", d)
	}

	if got := Distance(louvre, louvre); got != 0 {
		t.Errorf("Distance(a, a) = %f, want 0", got)
	}

	if ab, ba := Distance(louvre, notreDame), Distance(notreDame, louvre); math.Abs(ab-ba) > 1e-9 {
		t.Errorf("Distance not symmetric: %f vs %f", ab, ba)
	}

	// Paris to London is roughly 344km
	if d := Distance(ParisCenter, london); d < 340000 || d > 348000 {
		t.Errorf("Distance(paris, london) = %.0fm", d)
	}
}

func TestBoundsContains(t *testing.T) {
	b := Bounds{North: 48.87, South: 48.85, East: 2.36, West: 2.33}
	tests := []struct {
		name string
		p    models.Coordinates
		want bool
	}{
		{"inside", louvre, true},
		{"north edge", models.Coordinates{Latitude: 48.87, Longitude: 2.34}, true},
		{"west edge", models.Coordinates{Latitude: 48.86, Longitude: 2.33}, true},
		{"north of box", models.Coordinates{Latitude: 48.871, Longitude: 2.34}, false},
		{"east of box", models.Coordinates{Latitude: 48.86, Longitude: 2.37}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Contains(tt.p); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestBoundsValidate(t *testing.T) {
	if err := (Bounds{North: 48.8, South: 48.9, East: 2.4, West: 2.3}).Validate(); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("inverted latitude should fail, got %v", err)
	}
	if err := (Bounds{North: 48.9, South: 48.8, East: 2.4, West: 2.3}).Validate(); err != nil {
		t.Errorf("valid bounds: %v", err)
	}
}

func TestValidatePoint(t *testing.T) {
	tests := []struct {
		name string
		p    models.Coordinates
		kind apperr.Kind
	}{
		{"louvre", louvre, ""},
		{"center", ParisCenter, ""},
		{"london", london, apperr.KindInvalidCoordinates},
		{"nan", models.Coordinates{Latitude: math.NaN(), Longitude: 2.35}, apperr.KindInvalidCoordinates},
		{"out of range", models.Coordinates{Latitude: 95, Longitude: 2.35}, apperr.KindInvalidCoordinates},
		{"north-west corner", models.Coordinates{Latitude: 49.0, Longitude: 2.0}, apperr.KindOutsideServiceArea},
		{"cergy", models.Coordinates{Latitude: 49.036, Longitude: 2.063}, apperr.KindInvalidCoordinates},
		{"saint-germain-en-laye", models.Coordinates{Latitude: 48.8989, Longitude: 2.0938}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePoint("coordinates", tt.p)
			if apperr.KindOf(err) != tt.kind {
				t.Errorf("ValidatePoint(%v) kind = %q, want %q", tt.p, apperr.KindOf(err), tt.kind)
			}
		})
	}
}

func TestValidatePointGridInsideMetro(t *testing.T) {
	// Every point of the rectangle that is also within the radius must validate
	for lat := MetroBounds.South; lat <= MetroBounds.North; lat += 0.01 {
		for lon := MetroBounds.West; lon <= MetroBounds.East; lon += 0.01 {
			p := models.Coordinates{Latitude: lat, Longitude: lon}
			if !IsWithinServiceArea(p) {
				continue
			}
			if err := ValidatePoint("coordinates", p); err != nil {
				t.Fatalf("ValidatePoint(%v) = %v", p, err)
			}
		}
	}
}

func TestCoveringCells(t *testing.T) {
	cells := CoveringCells(louvre, 500)
	if len(cells) != 9 {
		t.Fatalf("CoveringCells returned %d cells, want 9", len(cells))
	}

	// Points up to the radius away in each direction must be covered
	offsets := []models.Coordinates{
		{Latitude: 0.0044, Longitude: 0},
		{Latitude: -0.0044, Longitude: 0},
		{Latitude: 0, Longitude: 0.0067},
		{Latitude: 0, Longitude: -0.0067},
	}
	for _, o := range offsets {
		p := models.Coordinates{Latitude: louvre.Latitude + o.Latitude, Longitude: louvre.Longitude + o.Longitude}
		if d := Distance(louvre, p); d > 500 {
			t.Fatalf("offset %v is %.0fm away, test setup wrong", o, d)
		}
		if !InCells(Encode(p), cells) {
			t.Errorf("point %v (%s) not covered by %v", p, Encode(p), cells)
		}
	}

	if InCells(Encode(london), cells) {
		t.Error("London should not be covered by a Louvre search")
	}
}

func TestEncodePrecision(t *testing.T) {
	if h := Encode(louvre); len(h) != StationPrecision {
		t.Errorf("Encode() = %q, want %d chars", h, StationPrecision)
	}
}
