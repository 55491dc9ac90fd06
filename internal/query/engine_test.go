package query

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/randytsao24/velib/internal/apperr"
	"github.com/randytsao24/velib/internal/geo"
	"github.com/randytsao24/velib/internal/models"
	"github.com/randytsao24/velib/internal/velib"
)

// mockSource is a StationSource backed by a fixed slice
type mockSource struct {
	stations []models.Station
	err      error
	calls    int
}

func (m *mockSource) GetAllStations(ctx context.Context, includeRealtime bool) (velib.Snapshot, error) {
	m.calls++
	if m.err != nil {
		return velib.Snapshot{}, m.err
	}
	out := make([]models.Station, 0, len(m.stations))
	for _, s := range m.stations {
		if !includeRealtime {
			s.RealTime = nil
		}
		out = append(out, s)
	}
	return velib.Snapshot{Stations: out, RealtimeIncluded: includeRealtime}, nil
}

func (m *mockSource) GetStationByCode(ctx context.Context, code string, includeRealtime bool) (*models.Station, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for _, s := range m.stations {
		if s.Code() == code {
			return &s, nil
		}
	}
	return nil, nil
}

var louvre = models.Coordinates{Latitude: 48.8606, Longitude: 2.3376}

const metersPerDegree = 6371000 * math.Pi / 180

// offset moves p north and east by the given number of meters
func offset(p models.Coordinates, north, east float64) models.Coordinates {
	return models.Coordinates{
		Latitude:  p.Latitude + north/metersPerDegree,
		Longitude: p.Longitude + east/(metersPerDegree*math.Cos(p.Latitude*math.Pi/180)),
	}
}

func makeStation(code, name string, at models.Coordinates, capacity, mech, elec, docks int) models.Station {
	return models.Station{
		Reference: models.StationReference{
			Code:        code,
			Name:        name,
			Coordinates: at,
			Capacity:    capacity,
			Geohash:     geo.Encode(at),
		},
		RealTime: &models.RealTimeStatus{
			Code:           code,
			Bikes:          models.BikeAvailability{Mechanical: mech, Electric: elec},
			AvailableDocks: docks,
			Status:         models.StatusOperational,
			Freshness:      models.FreshnessFresh,
		},
	}
}

func TestFindNearbyStationsScenario(t *testing.T) {
	src := &mockSource{stations: []models.Station{
		makeStation("A", "Thirty-five", offset(louvre, 35, 0), 20, 5, 5, 10),
		makeStation("B", "Six hundred", offset(louvre, 0, 600), 20, 5, 5, 10),
		makeStation("C", "Forty", offset(louvre, -40, 0), 20, 5, 5, 10),
	}}
	e := NewEngine(src)

	res, err := e.FindNearbyStations(context.Background(), NearbyRequest{
		Latitude: 48.8606, Longitude: 2.3376, RadiusMeters: 500, Limit: 5,
	})
	if err != nil {
		t.Fatalf("FindNearbyStations() error: %v", err)
	}

	if res.Metadata.TotalFound != 2 || len(res.Stations) != 2 {
		t.Fatalf("total_found=%d stations=%d, want 2", res.Metadata.TotalFound, len(res.Stations))
	}
	if res.Stations[0].Code() != "A" || res.Stations[1].Code() != "C" {
		t.Errorf("order = [%s, %s], want [A, C]", res.Stations[0].Code(), res.Stations[1].Code())
	}
	if d := res.Stations[0].DistanceMeters; math.Abs(d-35) > 0.5 {
		t.Errorf("distance = %.2f, want ~35", d)
	}
	if res.Metadata.RadiusMeters != 500 || res.Metadata.QueryPoint != louvre {
		t.Errorf("unexpected metadata %+v", res.Metadata)
	}
}

func TestFindNearbyStationsValidation(t *testing.T) {
	tests := []struct {
		name string
		req  NearbyRequest
		kind apperr.Kind
	}{
		{"radius too large", NearbyRequest{Latitude: 48.86, Longitude: 2.34, RadiusMeters: 5001}, apperr.KindRadiusTooLarge},
		{"limit too large", NearbyRequest{Latitude: 48.86, Longitude: 2.34, Limit: 101}, apperr.KindLimitExceeded},
		{"negative radius", NearbyRequest{Latitude: 48.86, Longitude: 2.34, RadiusMeters: -1}, apperr.KindValidation},
		{"london", NearbyRequest{Latitude: 51.5074, Longitude: -0.1278}, apperr.KindInvalidCoordinates},
		{"bad bike type", NearbyRequest{Latitude: 48.86, Longitude: 2.34, Filter: &AvailabilityFilter{BikeType: "tandem"}}, apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &mockSource{}
			_, err := NewEngine(src).FindNearbyStations(context.Background(), tt.req)
			if !apperr.Is(err, tt.kind) {
				t.Fatalf("kind = %q, want %q", apperr.KindOf(err), tt.kind)
			}
			if src.calls != 0 {
				t.Errorf("validation failure reached the data source %d times", src.calls)
			}
		})
	}
}

func TestFindNearbyStationsRadiusError(t *testing.T) {
	_, err := NewEngine(&mockSource{}).FindNearbyStations(context.Background(), NearbyRequest{
		Latitude: 48.86, Longitude: 2.34, RadiusMeters: 6000,
	})
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if ae.Field != "radius_meters" || ae.Value != 6000 || ae.Limit != MaxSearchRadius {
		t.Errorf("context = field %q value %v limit %v", ae.Field, ae.Value, ae.Limit)
	}
}

func TestFindNearbyStationsFilters(t *testing.T) {
	closed := makeStation("D", "Closed", offset(louvre, 10, 0), 20, 5, 5, 10)
	closed.RealTime.Status = models.StatusMaintenance
	noLive := makeStation("E", "No live data", offset(louvre, 20, 0), 20, 0, 0, 0)
	noLive.RealTime = nil

	src := &mockSource{stations: []models.Station{
		closed,
		noLive,
		makeStation("F", "Mechanical only", offset(louvre, 30, 0), 20, 5, 0, 10),
		makeStation("G", "Electric", offset(louvre, 40, 0), 20, 0, 3, 0),
	}}
	e := NewEngine(src)

	tests := []struct {
		name   string
		filter *AvailabilityFilter
		want   []string
	}{
		{"no filter", nil, []string{"E", "F", "G"}},
		{"electric", &AvailabilityFilter{BikeType: models.BikeTypeElectric}, []string{"G"}},
		{"min bikes", &AvailabilityFilter{MinBikes: 4}, []string{"F"}},
		{"min docks", &AvailabilityFilter{MinDocks: 1}, []string{"F"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.FindNearbyStations(context.Background(), NearbyRequest{
				Latitude: louvre.Latitude, Longitude: louvre.Longitude, Filter: tt.filter,
			})
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, s := range res.Stations {
				got = append(got, s.Code())
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestFindNearbyStationsTieBreak(t *testing.T) {
	at := offset(louvre, 100, 0)
	src := &mockSource{stations: []models.Station{
		makeStation("Z", "Twin Z", at, 20, 5, 5, 10),
		makeStation("M", "Twin M", at, 20, 5, 5, 10),
	}}
	res, err := NewEngine(src).FindNearbyStations(context.Background(), NearbyRequest{
		Latitude: louvre.Latitude, Longitude: louvre.Longitude, Limit: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Stations) != 1 || res.Stations[0].Code() != "M" {
		t.Errorf("tie should break on code, got %v", res.Stations)
	}
	if res.Metadata.TotalFound != 2 {
		t.Errorf("TotalFound = %d, want 2", res.Metadata.TotalFound)
	}
}

func TestFindNearbyStationsSourceError(t *testing.T) {
	src := &mockSource{err: apperr.New(apperr.KindCacheMiss, "nothing cached")}
	_, err := NewEngine(src).FindNearbyStations(context.Background(), NearbyRequest{Latitude: 48.86, Longitude: 2.34})
	if !apperr.Is(err, apperr.KindCacheMiss) {
		t.Errorf("kind = %q", apperr.KindOf(err))
	}
}

func TestGetStationByCode(t *testing.T) {
	src := &mockSource{stations: []models.Station{
		makeStation("16107", "Benjamin Godard", louvre, 35, 1, 1, 1),
	}}
	e := NewEngine(src)

	res, err := e.GetStationByCode(context.Background(), CodeRequest{StationCode: " 16107 ", IncludeRealtime: true})
	if err != nil || !res.Found || res.Station.Reference.Name != "Benjamin Godard" {
		t.Fatalf("GetStationByCode() = %+v, %v", res, err)
	}

	res, err = e.GetStationByCode(context.Background(), CodeRequest{StationCode: "00000"})
	if err != nil || res.Found || res.Station != nil {
		t.Errorf("unknown code = %+v, %v; want found=false", res, err)
	}

	if _, err := e.GetStationByCode(context.Background(), CodeRequest{}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("empty code kind = %q", apperr.KindOf(err))
	}
}

func TestSearchStationsByName(t *testing.T) {
	src := &mockSource{stations: []models.Station{
		makeStation("3", "Place du Louvre", louvre, 20, 1, 1, 1),
		makeStation("1", "Louvre - Rivoli", louvre, 20, 1, 1, 1),
		makeStation("2", "Rivoli - Sébastopol", louvre, 20, 1, 1, 1),
		makeStation("4", "LOUVRE - Pont Neuf", louvre, 20, 1, 1, 1),
	}}
	e := NewEngine(src)

	tests := []struct {
		name  string
		query string
		fuzzy bool
		limit int
		want  []string
	}{
		{"fuzzy ranks prefix first", "louvre", true, 0, []string{"4", "1", "3"}},
		{"prefix only", "Louvre", false, 0, []string{"4", "1"}},
		{"limit", "louvre", true, 1, []string{"4"}},
		{"accented", "sébasto", true, 0, []string{"2"}},
		{"no match", "bastille", true, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.SearchStationsByName(context.Background(), NameRequest{Query: tt.query, Fuzzy: tt.fuzzy, Limit: tt.limit})
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Stations) != len(tt.want) {
				t.Fatalf("got %d stations, want %v", len(res.Stations), tt.want)
			}
			for i, code := range tt.want {
				if res.Stations[i].Code() != code {
					t.Errorf("station[%d] = %s, want %s", i, res.Stations[i].Code(), code)
				}
			}
			if res.Metadata.FuzzyEnabled != tt.fuzzy {
				t.Error("metadata should echo fuzzy flag")
			}
		})
	}
}

func TestSearchStationsByNameValidation(t *testing.T) {
	src := &mockSource{}
	e := NewEngine(src)

	if _, err := e.SearchStationsByName(context.Background(), NameRequest{Query: " a "}); !apperr.Is(err, apperr.KindQueryTooShort) {
		t.Errorf("kind = %q, want query_too_short", apperr.KindOf(err))
	}
	if _, err := e.SearchStationsByName(context.Background(), NameRequest{Query: "louvre", Limit: 51}); !apperr.Is(err, apperr.KindLimitExceeded) {
		t.Errorf("kind = %q, want result_limit_exceeded", apperr.KindOf(err))
	}
	if src.calls != 0 {
		t.Error("validation failures should not reach the source")
	}
}

func TestGetAreaStatistics(t *testing.T) {
	src := &mockSource{stations: []models.Station{
		makeStation("1", "One", offset(louvre, 10, 0), 20, 5, 0, 15),
		makeStation("2", "Two", offset(louvre, 20, 0), 20, 6, 4, 10),
		makeStation("3", "Three", offset(louvre, 30, 0), 20, 15, 0, 5),
		makeStation("4", "Far away", offset(louvre, 5000, 0), 40, 40, 0, 0),
	}}
	bounds := geo.Bounds{North: 48.87, South: 48.85, East: 2.35, West: 2.33}

	res, err := NewEngine(src).GetAreaStatistics(context.Background(), AreaRequest{Bounds: bounds, IncludeRealtime: true})
	if err != nil {
		t.Fatal(err)
	}
	s := res.Stats
	if s.TotalStations != 3 || s.OperationalStations != 3 {
		t.Errorf("stations = %d operational = %d", s.TotalStations, s.OperationalStations)
	}
	if s.TotalCapacity != 60 {
		t.Errorf("TotalCapacity = %d, want 60", s.TotalCapacity)
	}
	if s.AvailableBikes.Total != 30 || s.AvailableBikes.Electric != 4 || s.AvailableDocks != 30 {
		t.Errorf("bikes = %+v docks = %d", s.AvailableBikes, s.AvailableDocks)
	}
	if s.OccupancyRate != 0.5 {
		t.Errorf("OccupancyRate = %v, want 0.5", s.OccupancyRate)
	}
}

func TestGetAreaStatisticsEmptyArea(t *testing.T) {
	src := &mockSource{stations: []models.Station{makeStation("1", "One", louvre, 20, 5, 0, 15)}}
	bounds := geo.Bounds{North: 48.80, South: 48.79, East: 2.30, West: 2.29}

	res, err := NewEngine(src).GetAreaStatistics(context.Background(), AreaRequest{Bounds: bounds})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.TotalStations != 0 || res.Stats.OccupancyRate != 0 {
		t.Errorf("empty area stats = %+v", res.Stats)
	}

	_, err = NewEngine(src).GetAreaStatistics(context.Background(), AreaRequest{Bounds: geo.Bounds{North: 1, South: 2}})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("inverted bounds kind = %q", apperr.KindOf(err))
	}
}
