// Package codec implements the self-describing binary TLV timeseries
// format: a fixed file header, per-record TLV framing, a compile-time
// record-layout registry, and the companion line-delimited JSON event
// stream and meta.json sibling.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

// magic is the fixed 6-byte file signature every timeseries log starts
// with.
var magic = [6]byte{'U', 'S', 'V', 'L', 'O', 'G'}

const (
	headerSize       = 32
	littleEndianMark = uint8(1)
)

// FileHeader is the fixed 32-byte header at the start of every
// timeseries file: magic, a combined firmware/model schema id, an
// endianness marker (always 1, little-endian), the t0 epoch in
// microseconds, and reserved padding.
type FileHeader struct {
	FwModelSchema uint32
	Endianness    uint8
	T0Us          uint64
}

// WriteTo encodes the header to w in the fixed 32-byte little-endian
// layout: magic(6) + schema(4) + endianness(1) + t0_us(8) + reserved(13)
// = 32.
func (h FileHeader) WriteTo(w io.Writer) error {
	const component = "codec.FileHeader.WriteTo"
	var buf [headerSize]byte
	copy(buf[0:6], magic[:])
	binary.LittleEndian.PutUint32(buf[6:10], h.FwModelSchema)
	buf[10] = littleEndianMark
	binary.LittleEndian.PutUint64(buf[11:19], h.T0Us)
	// buf[19:32] stays zero (reserved).
	if _, err := w.Write(buf[:]); err != nil {
		return usverr.Wrap(err, usverr.InvalidArgument, component, "write failed")
	}
	return nil
}

// ReadFileHeader decodes and validates the fixed 32-byte header from r.
// A bad magic or unsupported endianness marker is a CorruptHeader error;
// a short read is a TruncatedHeader error.
func ReadFileHeader(r io.Reader) (FileHeader, error) {
	const component = "codec.ReadFileHeader"
	var buf [headerSize]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return FileHeader{}, usverr.Wrap(err, usverr.TruncatedHeader, component, "empty file")
		}
		return FileHeader{}, usverr.Wrap(err, usverr.TruncatedHeader, component, "short header read")
	}

	if string(buf[0:6]) != string(magic[:]) {
		return FileHeader{}, usverr.New(usverr.CorruptHeader, component,
			fmt.Sprintf("bad magic %q", buf[0:6]))
	}
	endian := buf[10]
	if endian != littleEndianMark {
		return FileHeader{}, usverr.New(usverr.CorruptHeader, component,
			fmt.Sprintf("unsupported endianness marker %d", endian))
	}

	h := FileHeader{
		FwModelSchema: binary.LittleEndian.Uint32(buf[6:10]),
		Endianness:    endian,
		T0Us:          binary.LittleEndian.Uint64(buf[11:19]),
	}
	return h, nil
}

// CheckCompatible reports an IncompatibleDataset error if got's schema id
// does not match the id the reader was compiled against.
func CheckCompatible(got, want FileHeader) error {
	if got.FwModelSchema != want.FwModelSchema {
		return usverr.New(usverr.IncompatibleDataset, "codec.CheckCompatible",
			fmt.Sprintf("fw_model_schema %d does not match expected %d", got.FwModelSchema, want.FwModelSchema))
	}
	return nil
}
