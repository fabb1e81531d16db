package geometry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ohub/outage-aggregator/internal/models"
)

// ErrMalformedGeometry reports geometry that cannot be decoded. The
// record carrying it is skipped; sibling records proceed.
var ErrMalformedGeometry = errors.New("malformed geometry")

const polylineScale = 1e5

// DecodePolyline decodes a Google encoded polyline string into
// (lat, lon) pairs. The encoding packs signed deltas as zigzag
// varints in 5-bit groups with continuation bit 0x20, scaled by 1e5.
// An unterminated final group or an out-of-range byte yields
// ErrMalformedGeometry. Empty input decodes to an empty sequence.
func DecodePolyline(s string) ([]models.LatLng, error) {
	points := []models.LatLng{}
	var lat, lon int64

	i := 0
	for i < len(s) {
		dLat, n, err := decodeVarint(s[i:])
		if err != nil {
			return nil, err
		}
		i += n

		dLon, n, err := decodeVarint(s[i:])
		if err != nil {
			return nil, err
		}
		i += n

		lat += dLat
		lon += dLon
		points = append(points, models.LatLng{
			Lat: float64(lat) / polylineScale,
			Lon: float64(lon) / polylineScale,
		})
	}

	return points, nil
}

// decodeVarint reads one zigzag-encoded value and returns it with the
// number of bytes consumed. i never exceeds len(s), which guarantees
// termination even on adversarial input.
func decodeVarint(s string) (int64, int, error) {
	var result int64
	var shift uint

	for i := 0; i < len(s); i++ {
		c := int64(s[i]) - 63
		if c < 0 || c > 63 {
			return 0, 0, fmt.Errorf("%w: byte %q out of range", ErrMalformedGeometry, s[i])
		}
		result |= (c & 0x1f) << shift
		if c&0x20 == 0 {
			// Zigzag decode.
			if result&1 != 0 {
				return ^(result >> 1), i + 1, nil
			}
			return result >> 1, i + 1, nil
		}
		shift += 5
	}

	return 0, 0, fmt.Errorf("%w: unterminated varint group", ErrMalformedGeometry)
}

// EncodePolyline is the inverse of DecodePolyline. Production only
// decodes; the encoder exists for round-trip tests and debug tooling.
func EncodePolyline(points []models.LatLng) string {
	var b strings.Builder
	var prevLat, prevLon int64

	for _, p := range points {
		lat := int64(roundHalfAway(p.Lat * polylineScale))
		lon := int64(roundHalfAway(p.Lon * polylineScale))
		encodeVarint(&b, lat-prevLat)
		encodeVarint(&b, lon-prevLon)
		prevLat, prevLon = lat, lon
	}

	return b.String()
}

func encodeVarint(b *strings.Builder, v int64) {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		b.WriteByte(byte((u&0x1f)|0x20) + 63)
		u >>= 5
	}
	b.WriteByte(byte(u) + 63)
}

func roundHalfAway(f float64) float64 {
	if f < 0 {
		return float64(int64(f - 0.5))
	}
	return float64(int64(f + 0.5))
}
