package polyline

import (
	"errors"
	"math"
	"sync"
	"testing"

	gopolyline "github.com/twpayne/go-polyline"
)

func TestDecode_ValidPolyline(t *testing.T) {
	tests := []struct {
		name     string
		encoded  string
		expected []Coordinate
	}{
		{
			name:    "single point",
			encoded: "_p~iF~ps|U",
			expected: []Coordinate{
				{Lat: 38.5, Lon: -120.2},
			},
		},
		{
			name:    "two points",
			encoded: "_p~iF~ps|U_ulLnnqC",
			expected: []Coordinate{
				{Lat: 38.5, Lon: -120.2},
				{Lat: 40.7, Lon: -120.95},
			},
		},
		{
			name:    "three points - Google example",
			encoded: "_p~iF~ps|U_ulLnnqC_mqNvxq`@",
			expected: []Coordinate{
				{Lat: 38.5, Lon: -120.2},
				{Lat: 40.7, Lon: -120.95},
				{Lat: 43.252, Lon: -126.453},
			},
		},
		{
			name:     "origin",
			encoded:  "??",
			expected: []Coordinate{{Lat: 0, Lon: 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Decode(tt.encoded)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d coordinates, got %d", len(tt.expected), len(result))
			}

			for i, coord := range result {
				if !coordsEqual(coord, tt.expected[i], 1e-9) {
					t.Errorf("coordinate %d: expected %+v, got %+v", i, tt.expected[i], coord)
				}
			}
		})
	}
}

func TestDecode_EmptyString(t *testing.T) {
	result, err := Decode("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{name: "latitude without longitude", encoded: "?"},
		{name: "trailing odd value", encoded: "_p~iF~ps|U_ulL"},
		{name: "ends mid-chain", encoded: "_p~iF~ps|U_"},
		{name: "character below range", encoded: "_p~iF ps|U"},
		{name: "character above range", encoded: "_p~iF\x7fps|U"},
		{name: "non-ascii", encoded: "_p~iFé"},
		{name: "chain overflows", encoded: "~~~~~~~~~~~~~??"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Decode(tt.encoded)
			if err == nil {
				t.Fatalf("expected error, got %v", result)
			}
			if result != nil {
				t.Errorf("expected no coordinates on error, got %v", result)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}

			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if decodeErr.Offset < 0 || decodeErr.Offset > len(tt.encoded) {
				t.Errorf("offset %d outside input of length %d", decodeErr.Offset, len(tt.encoded))
			}
		})
	}
}

func TestDecodePrecision(t *testing.T) {
	coords := []Coordinate{
		{Lat: -23.550520, Lon: -46.633308},
		{Lat: -23.561684, Lon: -46.655981},
	}

	t.Run("precision 6 round trip", func(t *testing.T) {
		encoded := EncodePrecision(coords, 6)
		decoded, err := DecodePrecision(encoded, 6)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, coord := range decoded {
			if !coordsEqual(coord, coords[i], 1e-6) {
				t.Errorf("coordinate %d: expected %+v, got %+v", i, coords[i], coord)
			}
		}
	})

	t.Run("wrong precision scales by ten", func(t *testing.T) {
		encoded := EncodePrecision(coords, 6)
		decoded, err := DecodePrecision(encoded, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !coordsEqual(decoded[0], Coordinate{Lat: -235.50520, Lon: -466.33308}, 1e-5) {
			t.Errorf("expected values scaled by 10, got %+v", decoded[0])
		}
	})

	t.Run("precision zero", func(t *testing.T) {
		decoded, err := DecodePrecision("A?", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(decoded) != 1 || decoded[0] != (Coordinate{Lat: 1, Lon: 0}) {
			t.Errorf("expected [(1, 0)], got %v", decoded)
		}
	})

	t.Run("negative precision", func(t *testing.T) {
		_, err := DecodePrecision("??", -1)
		if !errors.Is(err, ErrInvalidPrecision) {
			t.Errorf("expected ErrInvalidPrecision, got %v", err)
		}
	})

	t.Run("precision past float64 range", func(t *testing.T) {
		_, err := DecodePrecision("A?", 309)
		if !errors.Is(err, ErrInvalidPrecision) {
			t.Errorf("expected ErrInvalidPrecision, got %v", err)
		}
		for _, err := range Points("A?", 309) {
			if !errors.Is(err, ErrInvalidPrecision) {
				t.Errorf("expected ErrInvalidPrecision from Points, got %v", err)
			}
		}
	})

	t.Run("largest precision", func(t *testing.T) {
		decoded, err := DecodePrecision("A?", 308)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(decoded) != 1 || decoded[0].Lat <= 0 || decoded[0].Lat > 1e-300 {
			t.Errorf("expected one point near (1e-308, 0), got %v", decoded)
		}
	})
}

func TestDecode_LongestValueChain(t *testing.T) {
	// Twelve chunks carry 60 payload bits, all set: the value is -(2^59).
	decoded, err := DecodePrecision("~~~~~~~~~~~^?", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Lat != -float64(1<<59) || decoded[0].Lon != 0 {
		t.Errorf("expected [(-2^59, 0)], got %v", decoded)
	}

	// A thirteenth chunk would shift payload past bit 63.
	_, err = DecodePrecision("~~~~~~~~~~~~^?", 0)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if decodeErr.Offset != 12 {
		t.Errorf("expected offset 12, got %d", decodeErr.Offset)
	}
}

func TestDecode_Concurrent(t *testing.T) {
	const encoded = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"
	want, err := Decode(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, err := Decode(encoded)
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				for k := range want {
					if got[k] != want[k] {
						t.Errorf("point %d: expected %+v, got %+v", k, want[k], got[k])
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestDecode_MatchesReferenceEncoder(t *testing.T) {
	points := [][]float64{
		{-23.55052, -46.63331},
		{-23.55104, -46.63412},
		{-23.55298, -46.63555},
		{-23.56168, -46.65598},
		{-23.58742, -46.68201},
	}

	encoded := gopolyline.EncodeCoords(points)

	decoded, err := Decode(string(encoded))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded) != len(points) {
		t.Fatalf("expected %d coordinates, got %d", len(points), len(decoded))
	}
	for i, p := range points {
		if !coordsEqual(decoded[i], Coordinate{Lat: p[0], Lon: p[1]}, 1e-9) {
			t.Errorf("coordinate %d: expected %v, got %+v", i, p, decoded[i])
		}
	}

	// And the other way round.
	ours := Encode(decoded)
	if ours != string(encoded) {
		t.Errorf("encoders disagree: %q vs %q", ours, encoded)
	}
	back, _, err := gopolyline.DecodeCoords([]byte(ours))
	if err != nil {
		t.Fatalf("reference decoder rejected output: %v", err)
	}
	if len(back) != len(points) {
		t.Errorf("reference decoder returned %d points, want %d", len(back), len(points))
	}
}

func TestPoints_Lazy(t *testing.T) {
	encoded := "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

	t.Run("stops early", func(t *testing.T) {
		var got []Coordinate
		for coord, err := range Points(encoded, DefaultPrecision) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got = append(got, coord)
			if len(got) == 2 {
				break
			}
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 coordinates, got %d", len(got))
		}
		if !coordsEqual(got[1], Coordinate{Lat: 40.7, Lon: -120.95}, 1e-9) {
			t.Errorf("unexpected second coordinate %+v", got[1])
		}
	})

	t.Run("yields points before the defect", func(t *testing.T) {
		var (
			good    int
			lastErr error
		)
		for _, err := range Points(encoded+"_", DefaultPrecision) {
			if err != nil {
				lastErr = err
				break
			}
			good++
		}
		if good != 3 {
			t.Errorf("expected 3 points before error, got %d", good)
		}
		if !errors.Is(lastErr, ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", lastErr)
		}
	})

	t.Run("empty input yields nothing", func(t *testing.T) {
		for range Points("", DefaultPrecision) {
			t.Fatal("expected no iterations")
		}
	})
}

func TestEncode_ValidCoordinates(t *testing.T) {
	tests := []struct {
		name   string
		coords []Coordinate
	}{
		{
			name: "single point",
			coords: []Coordinate{
				{Lat: 38.5, Lon: -120.2},
			},
		},
		{
			name: "three points",
			coords: []Coordinate{
				{Lat: 38.5, Lon: -120.2},
				{Lat: 40.7, Lon: -120.95},
				{Lat: 43.252, Lon: -126.453},
			},
		},
		{
			name: "Se to Paulista",
			coords: []Coordinate{
				{Lat: -23.55052, Lon: -46.63331},
				{Lat: -23.56168, Lon: -46.65598},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.coords)
			if encoded == "" {
				t.Fatal("expected non-empty encoded string")
			}

			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(decoded) != len(tt.coords) {
				t.Fatalf("round-trip: expected %d coordinates, got %d", len(tt.coords), len(decoded))
			}

			for i, coord := range decoded {
				if !coordsEqual(coord, tt.coords[i], 0.00001) {
					t.Errorf("round-trip coordinate %d: expected %+v, got %+v", i, tt.coords[i], coord)
				}
			}
		})
	}
}

func TestEncode_GoogleExample(t *testing.T) {
	coords := []Coordinate{
		{Lat: 38.5, Lon: -120.2},
		{Lat: 40.7, Lon: -120.95},
		{Lat: 43.252, Lon: -126.453},
	}
	if got := Encode(coords); got != "_p~iF~ps|U_ulLnnqC_mqNvxq`@" {
		t.Errorf("unexpected encoding %q", got)
	}
}

func TestEncode_EmptyCoordinates(t *testing.T) {
	if result := Encode(nil); result != "" {
		t.Errorf("expected empty string for nil coordinates, got %q", result)
	}
	if result := Encode([]Coordinate{}); result != "" {
		t.Errorf("expected empty string for empty coordinates, got %q", result)
	}
}

func TestLength_ValidRoute(t *testing.T) {
	tests := []struct {
		name           string
		coords         []Coordinate
		expectedMeters float64
		tolerance      float64
	}{
		{
			name:           "empty",
			coords:         nil,
			expectedMeters: 0,
			tolerance:      0,
		},
		{
			name:           "single point",
			coords:         []Coordinate{{Lat: -23.5, Lon: -46.6}},
			expectedMeters: 0,
			tolerance:      0,
		},
		{
			name: "Se to Paulista - roughly 2.6km",
			coords: []Coordinate{
				{Lat: -23.55052, Lon: -46.63331},
				{Lat: -23.56168, Lon: -46.65598},
			},
			expectedMeters: 2600,
			tolerance:      200,
		},
		{
			name: "1 degree latitude at equator - roughly 111km",
			coords: []Coordinate{
				{Lat: 0.0, Lon: 0.0},
				{Lat: 1.0, Lon: 0.0},
			},
			expectedMeters: 111000,
			tolerance:      1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Length(tt.coords)
			diff := math.Abs(result - tt.expectedMeters)
			if diff > tt.tolerance {
				t.Errorf("expected ~%.0fm (±%.0f), got %.0fm", tt.expectedMeters, tt.tolerance, result)
			}
		})
	}
}

// coordsEqual checks if two coordinates are equal within a tolerance.
func coordsEqual(a, b Coordinate, tolerance float64) bool {
	return math.Abs(a.Lat-b.Lat) <= tolerance && math.Abs(a.Lon-b.Lon) <= tolerance
}

func BenchmarkDecode(b *testing.B) {
	encoded := "_p~iF~ps|U_ulLnnqC_mqNvxq`@"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(encoded)
	}
}

func BenchmarkEncode(b *testing.B) {
	coords := []Coordinate{
		{Lat: 38.5, Lon: -120.2},
		{Lat: 40.7, Lon: -120.95},
		{Lat: 43.252, Lon: -126.453},
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Encode(coords)
	}
}
