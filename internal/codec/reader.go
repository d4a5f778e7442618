package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

// Columns is the per-record-type columnar output of a decode: the
// timestamp array plus one value array per field, all aligned by index.
type Columns struct {
	TUs    []uint64
	Fields map[string][]float64
}

func newColumns(l Layout) *Columns {
	fields := make(map[string][]float64)
	for _, f := range l.Fields {
		if f.Kind == KindPad {
			continue
		}
		fields[f.Name] = nil
	}
	return &Columns{Fields: fields}
}

func (c *Columns) append(tUs uint64, values Fields) {
	c.TUs = append(c.TUs, tUs)
	for name := range c.Fields {
		c.Fields[name] = append(c.Fields[name], values[name])
	}
}

// UnknownRecord describes a record whose type id was not found in the
// registry: the decoder skips its payload without failing and records
// it here.
type UnknownRecord struct {
	TUs  uint64
	Type uint16
	Len  uint16
}

// DecodeResult is the full output of decoding one timeseries file.
type DecodeResult struct {
	Header  FileHeader
	Records map[string]*Columns // keyed by record name, e.g. "NAV_SOLUTION"
	Counts  map[string]int
	Unknown []UnknownRecord
}

// ReaderOptions configures strictness of a Decode call.
type ReaderOptions struct {
	// Strict, when true, treats a known record type whose declared len
	// does not match the registry's fixed size as a fatal
	// PayloadLengthMismatch error. When false, a declared len at least
	// the fixed size is accepted and any trailing bytes are ignored; a
	// shorter len is still a fatal PayloadLengthMismatch error.
	Strict bool
	// WantSchema, if non-zero, is checked against the file header's
	// fw_model_schema via CheckCompatible before any record is read.
	WantSchema uint32
	// WantModelID, if set, is checked against a meta.json's fw_model_id
	// via ValidateMeta. The file header itself carries no model id (only
	// fw_model_schema), so this field has no effect on Decode directly;
	// it exists so one ReaderOptions value can drive both the header
	// schema check and the sibling meta.json's model-id check.
	WantModelID string
}

// DefaultOptions returns the lenient, schema-unchecked defaults: unknown
// records and known records with trailing bytes are both tolerated, and no
// fw_model_schema is enforced. Callers that need strict decoding or
// schema gating should set the fields explicitly instead.
func DefaultOptions() ReaderOptions {
	return ReaderOptions{Strict: false, WantSchema: 0}
}

// Decode reads a full timeseries file from r: the file header, then
// records until EOF. Unknown record types are always skipped without
// failing; known records with a mismatched length are governed by
// opts.Strict.
func Decode(r io.Reader, opts ReaderOptions) (*DecodeResult, error) {
	const component = "codec.Decode"

	header, err := ReadFileHeader(r)
	if err != nil {
		return nil, err
	}
	if opts.WantSchema != 0 {
		if err := CheckCompatible(header, FileHeader{FwModelSchema: opts.WantSchema}); err != nil {
			return nil, err
		}
	}

	result := &DecodeResult{
		Header:  header,
		Records: make(map[string]*Columns),
		Counts:  make(map[string]int),
	}

	var rhdr [recordHeaderSize]byte
	for {
		n, err := io.ReadFull(r, rhdr[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, usverr.Wrap(err, usverr.TruncatedHeader, component,
				fmt.Sprintf("short record header (%d of %d bytes)", n, recordHeaderSize))
		}

		tUs := binary.LittleEndian.Uint64(rhdr[0:8])
		typeID := binary.LittleEndian.Uint16(rhdr[8:10])
		declLen := binary.LittleEndian.Uint16(rhdr[10:12])

		payload := make([]byte, declLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, usverr.Wrap(err, usverr.TruncatedPayload, component,
				fmt.Sprintf("short payload for type %d at t_us=%d", typeID, tUs))
		}

		layout, known := Registry[typeID]
		if !known {
			result.Unknown = append(result.Unknown, UnknownRecord{TUs: tUs, Type: typeID, Len: declLen})
			continue
		}

		if opts.Strict {
			if int(declLen) != layout.Size() {
				return nil, usverr.New(usverr.PayloadLengthMismatch, component,
					fmt.Sprintf("%s: declared len %d, expected exactly %d", layout.Name, declLen, layout.Size()))
			}
		} else if int(declLen) < layout.Size() {
			return nil, usverr.New(usverr.PayloadLengthMismatch, component,
				fmt.Sprintf("%s: declared len %d, expected at least %d", layout.Name, declLen, layout.Size()))
		}

		values, err := unpackPayload(layout, payload[:layout.Size()])
		if err != nil {
			return nil, usverr.Wrap(err, usverr.PayloadLengthMismatch, component, layout.Name)
		}

		cols, ok := result.Records[layout.Name]
		if !ok {
			cols = newColumns(layout)
			result.Records[layout.Name] = cols
		}
		cols.append(tUs, values)
		result.Counts[layout.Name]++
	}

	return result, nil
}
