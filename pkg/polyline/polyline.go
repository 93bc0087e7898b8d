// Package polyline provides encoding and decoding utilities for the encoded polyline
// algorithm format used by Google Maps, GraphHopper and OpenRouteService.
// The format is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"fmt"
	"iter"
	"math"
)

// DefaultPrecision is the number of decimal places used by Google and GraphHopper
// unless the producer says otherwise.
const DefaultPrecision = 5

const (
	charOffset   = 63
	chunkBits    = 5
	chunkMask    = 0x1f
	continueFlag = 0x20
	maxChunk     = 126 - charOffset

	// maxShift bounds a single value chain; anything longer cannot fit in 64 bits.
	maxShift = 64 - chunkBits

	// maxPrecision is the largest precision whose 10^precision is a finite float64.
	maxPrecision = 308
)

// Predefined decoding errors.
var (
	// ErrMalformed indicates the input is not a well-formed encoded polyline.
	ErrMalformed = errors.New("malformed polyline")

	// ErrInvalidPrecision indicates a precision outside 0..308 was requested.
	ErrInvalidPrecision = errors.New("invalid polyline precision")
)

// DecodeError describes where and why decoding failed.
type DecodeError struct {
	// Offset is the byte offset in the encoded string where decoding stopped.
	Offset int
	// Reason is a short description of the defect.
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("polyline: %s at offset %d", e.Reason, e.Offset)
}

// Unwrap lets callers match any decode failure with errors.Is(err, ErrMalformed).
func (e *DecodeError) Unwrap() error {
	return ErrMalformed
}

// Coordinate represents a geographic point with latitude and longitude in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Decode decodes a polyline-encoded string at DefaultPrecision.
// An empty string yields a nil slice and no error.
func Decode(encoded string) ([]Coordinate, error) {
	return DecodePrecision(encoded, DefaultPrecision)
}

// DecodePrecision decodes a polyline-encoded string whose coordinates were scaled by
// 10^precision. Malformed input returns a *DecodeError and no coordinates.
func DecodePrecision(encoded string, precision int) ([]Coordinate, error) {
	if err := checkPrecision(precision); err != nil {
		return nil, err
	}
	if encoded == "" {
		return nil, nil
	}

	// Every point needs at least two characters.
	coords := make([]Coordinate, 0, len(encoded)/2)
	for coord, err := range Points(encoded, precision) {
		if err != nil {
			return nil, err
		}
		coords = append(coords, coord)
	}
	return coords, nil
}

// Points returns a lazy sequence over the points of an encoded polyline.
// Each point is produced on demand; when the input turns out to be malformed the
// sequence yields a zero Coordinate with the error and stops.
func Points(encoded string, precision int) iter.Seq2[Coordinate, error] {
	return func(yield func(Coordinate, error) bool) {
		if err := checkPrecision(precision); err != nil {
			yield(Coordinate{}, err)
			return
		}

		factor := math.Pow10(precision)
		index := 0
		lat := 0
		lon := 0

		for index < len(encoded) {
			latDelta, next, err := decodeValue(encoded, index)
			if err != nil {
				yield(Coordinate{}, err)
				return
			}
			index = next
			lat += latDelta

			if index >= len(encoded) {
				yield(Coordinate{}, &DecodeError{Offset: index, Reason: "missing longitude"})
				return
			}

			lonDelta, next, err := decodeValue(encoded, index)
			if err != nil {
				yield(Coordinate{}, err)
				return
			}
			index = next
			lon += lonDelta

			coord := Coordinate{
				Lat: float64(lat) / factor,
				Lon: float64(lon) / factor,
			}
			if !yield(coord, nil) {
				return
			}
		}
	}
}

func checkPrecision(precision int) error {
	if precision < 0 || precision > maxPrecision {
		return fmt.Errorf("%w: %d", ErrInvalidPrecision, precision)
	}
	return nil
}

// decodeValue decodes a single zig-zag value starting at index.
// Returns the decoded delta and the index just past its last character.
func decodeValue(encoded string, index int) (int, int, error) {
	shift := 0
	result := 0

	for {
		if index >= len(encoded) {
			return 0, index, &DecodeError{Offset: index, Reason: "unterminated value"}
		}
		if shift > maxShift {
			return 0, index, &DecodeError{Offset: index, Reason: "value overflows 64 bits"}
		}

		b := int(encoded[index]) - charOffset
		if b < 0 || b > maxChunk {
			return 0, index, &DecodeError{Offset: index, Reason: fmt.Sprintf("invalid character %q", encoded[index])}
		}
		index++

		result |= (b & chunkMask) << shift
		shift += chunkBits
		if b < continueFlag {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode encodes coordinates into a polyline string at DefaultPrecision.
func Encode(coords []Coordinate) string {
	return EncodePrecision(coords, DefaultPrecision)
}

// EncodePrecision encodes coordinates into a polyline string, scaling by 10^precision.
func EncodePrecision(coords []Coordinate, precision int) string {
	if len(coords) == 0 {
		return ""
	}

	factor := math.Pow10(precision)
	encoded := make([]byte, 0, len(coords)*4)
	prevLat := 0
	prevLon := 0

	for _, coord := range coords {
		lat := int(math.Round(coord.Lat * factor))
		lon := int(math.Round(coord.Lon * factor))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lon-prevLon)

		prevLat = lat
		prevLon = lon
	}

	return string(encoded)
}

// encodeValue appends a single zig-zag encoded value.
func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= continueFlag {
		buf = append(buf, byte((value&chunkMask)|continueFlag)+charOffset)
		value >>= chunkBits
	}
	return append(buf, byte(value)+charOffset)
}

const earthRadiusMeters = 6371000

// Length calculates the total length of a path in meters using the haversine formula.
func Length(coords []Coordinate) float64 {
	if len(coords) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(coords); i++ {
		total += haversineDistance(coords[i-1], coords[i])
	}
	return total
}

func haversineDistance(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
