package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

// recordHeaderSize is the fixed per-record header: t_us(8) + type(2) +
// len(2).
const recordHeaderSize = 12

// Fields is a named-value view of one record's payload, the shape both
// the writer accepts and the reader produces. Values are stored widened
// to float64 regardless of their on-disk width; boolean and enum fields
// round-trip as their integer values (0/1 for booleans).
type Fields map[string]float64

// packPayload renders values into the fixed binary layout described by
// l, in field order. Missing fields encode as zero.
func packPayload(l Layout, values Fields) []byte {
	buf := make([]byte, l.Size())
	off := 0
	for _, f := range l.Fields {
		switch f.Kind {
		case KindF32:
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(values[f.Name])))
			off += 4
		case KindU8:
			buf[off] = byte(uint64(values[f.Name]))
			off++
		case KindU16:
			binary.LittleEndian.PutUint16(buf[off:], uint16(values[f.Name]))
			off += 2
		case KindU32:
			binary.LittleEndian.PutUint32(buf[off:], uint32(values[f.Name]))
			off += 4
		case KindPad:
			off += f.Count // left zero
		}
	}
	return buf
}

// unpackPayload parses a payload of exactly l.Size() bytes into Fields,
// per field, in layout order. Pad bytes are skipped and produce no
// field.
func unpackPayload(l Layout, payload []byte) (Fields, error) {
	if len(payload) != l.Size() {
		return nil, fmt.Errorf("payload size %d does not match layout size %d for %s", len(payload), l.Size(), l.Name)
	}
	out := make(Fields, len(l.Fields))
	off := 0
	for _, f := range l.Fields {
		switch f.Kind {
		case KindF32:
			bits := binary.LittleEndian.Uint32(payload[off:])
			out[f.Name] = float64(math.Float32frombits(bits))
			off += 4
		case KindU8:
			out[f.Name] = float64(payload[off])
			off++
		case KindU16:
			out[f.Name] = float64(binary.LittleEndian.Uint16(payload[off:]))
			off += 2
		case KindU32:
			out[f.Name] = float64(binary.LittleEndian.Uint32(payload[off:]))
			off += 4
		case KindPad:
			off += f.Count
		}
	}
	return out, nil
}

// layoutFor looks up a registered layout or returns an InvalidArgument
// error naming the component, for callers encoding a record the
// registry does not know.
func layoutFor(component string, typeID uint16) (Layout, error) {
	l, ok := Registry[typeID]
	if !ok {
		return Layout{}, usverr.New(usverr.InvalidArgument, component,
			fmt.Sprintf("unknown record type %d", typeID))
	}
	return l, nil
}
