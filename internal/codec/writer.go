package codec

import (
	"encoding/binary"
	"io"

	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

// Writer serializes a timeseries to w: a fixed file header followed by a
// stream of length-framed records, each written in strict t_us order by
// the caller (the writer does not itself enforce ordering).
type Writer struct {
	w           io.Writer
	wroteHeader bool
}

// NewWriter constructs a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the 32-byte file header. It must be called exactly
// once, before any WriteRecord call.
func (wr *Writer) WriteHeader(h FileHeader) error {
	const component = "codec.Writer.WriteHeader"
	if wr.wroteHeader {
		return usverr.New(usverr.InvalidArgument, component, "header already written")
	}
	if err := h.WriteTo(wr.w); err != nil {
		return err
	}
	wr.wroteHeader = true
	return nil
}

// WriteRecord writes one TLV record: a 12-byte header (t_us, type, len)
// followed by the fixed-layout payload built from fields.
func (wr *Writer) WriteRecord(tUs uint64, typeID uint16, fields Fields) error {
	const component = "codec.Writer.WriteRecord"
	if !wr.wroteHeader {
		return usverr.New(usverr.InvalidArgument, component, "header not yet written")
	}
	layout, err := layoutFor(component, typeID)
	if err != nil {
		return err
	}
	payload := packPayload(layout, fields)

	var hdr [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], tUs)
	binary.LittleEndian.PutUint16(hdr[8:10], typeID)
	binary.LittleEndian.PutUint16(hdr[10:12], uint16(len(payload)))

	if _, err := wr.w.Write(hdr[:]); err != nil {
		return usverr.Wrap(err, usverr.InvalidArgument, component, "record header write failed")
	}
	if _, err := wr.w.Write(payload); err != nil {
		return usverr.Wrap(err, usverr.InvalidArgument, component, "record payload write failed")
	}
	return nil
}
