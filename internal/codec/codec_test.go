package codec

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

func writeHeader(t *testing.T, buf *bytes.Buffer, schema uint32, t0 uint64) *Writer {
	t.Helper()
	w := NewWriter(buf)
	if err := w.WriteHeader(FileHeader{FwModelSchema: schema, T0Us: t0}); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	return w
}

// TestCodecRoundTrip_NavSolutionThenMixerFeedback reproduces the codec
// round-trip scenario: one NAV_SOLUTION followed by one MIXER_FEEDBACK,
// decoded columns equal the originals up to f32 rounding.
func TestCodecRoundTrip_NavSolutionThenMixerFeedback(t *testing.T) {
	var buf bytes.Buffer
	w := writeHeader(t, &buf, 1, 0)

	nav := Fields{"x": 1.5, "y": -2.25, "psi": 0.4, "v": 1.3, "r": -0.2, "bg": 0.05}
	if err := w.WriteRecord(1000, TypeNavSolution, nav); err != nil {
		t.Fatalf("WriteRecord(NAV_SOLUTION) failed: %v", err)
	}
	mixer := Fields{
		"u_s_ach": 0.5, "u_d_ach": -0.1,
		"sat_L": 1, "sat_R": 0, "sat_any": 1,
		"u_L_ach": 0.9, "u_R_ach": 0.2,
	}
	if err := w.WriteRecord(2000, TypeMixerFeedback, mixer); err != nil {
		t.Fatalf("WriteRecord(MIXER_FEEDBACK) failed: %v", err)
	}

	res, err := Decode(&buf, ReaderOptions{Strict: true})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	navCols, ok := res.Records["NAV_SOLUTION"]
	if !ok {
		t.Fatal("NAV_SOLUTION missing from decoded records")
	}
	if len(navCols.TUs) != 1 || navCols.TUs[0] != 1000 {
		t.Errorf("NAV_SOLUTION t_us = %v, want [1000]", navCols.TUs)
	}
	for name, want := range nav {
		got := navCols.Fields[name][0]
		if float32(got) != float32(want) {
			t.Errorf("NAV_SOLUTION.%s = %v, want %v", name, got, want)
		}
	}

	mixerCols, ok := res.Records["MIXER_FEEDBACK"]
	if !ok {
		t.Fatal("MIXER_FEEDBACK missing from decoded records")
	}
	if len(mixerCols.TUs) != 1 || mixerCols.TUs[0] != 2000 {
		t.Errorf("MIXER_FEEDBACK t_us = %v, want [2000]", mixerCols.TUs)
	}
	for name, want := range mixer {
		got := mixerCols.Fields[name][0]
		if float32(got) != float32(want) {
			t.Errorf("MIXER_FEEDBACK.%s = %v, want %v", name, got, want)
		}
	}

	if res.Counts["NAV_SOLUTION"] != 1 || res.Counts["MIXER_FEEDBACK"] != 1 {
		t.Errorf("Counts = %v, want both 1", res.Counts)
	}
	if len(res.Unknown) != 0 {
		t.Errorf("Unknown = %v, want empty", res.Unknown)
	}
}

// TestCodecSkipSafety_UnknownRecordType reproduces the unknown-record
// skip scenario: a file header, then a single unrecognized-type record
// (t_us=10, type=999, len=4, payload="ABCD"), then EOF.
func TestCodecSkipSafety_UnknownRecordType(t *testing.T) {
	var buf bytes.Buffer
	if err := (FileHeader{FwModelSchema: 1}).WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	var rhdr [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(rhdr[0:8], 10)
	binary.LittleEndian.PutUint16(rhdr[8:10], 999)
	binary.LittleEndian.PutUint16(rhdr[10:12], 4)
	buf.Write(rhdr[:])
	buf.WriteString("ABCD")

	res, err := Decode(&buf, ReaderOptions{Strict: true})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(res.Records) != 0 {
		t.Errorf("Records = %v, want empty", res.Records)
	}
	if len(res.Unknown) != 1 {
		t.Fatalf("len(Unknown) = %d, want 1", len(res.Unknown))
	}
	got := res.Unknown[0]
	want := UnknownRecord{TUs: 10, Type: 999, Len: 4}
	if got != want {
		t.Errorf("Unknown[0] = %+v, want %+v", got, want)
	}
}

// TestSkipSafety_DoesNotAlterKnownRecordColumns verifies that an unknown
// record sandwiched between two known records leaves the known records'
// decoded columns untouched.
func TestSkipSafety_DoesNotAlterKnownRecordColumns(t *testing.T) {
	var buf bytes.Buffer
	w := writeHeader(t, &buf, 1, 0)
	nav1 := Fields{"x": 1, "y": 2, "psi": 0, "v": 1, "r": 0, "bg": 0}
	nav2 := Fields{"x": 3, "y": 4, "psi": 0.1, "v": 1.1, "r": 0.01, "bg": 0}

	if err := w.WriteRecord(1, TypeNavSolution, nav1); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	var rhdr [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(rhdr[0:8], 2)
	binary.LittleEndian.PutUint16(rhdr[8:10], 777)
	binary.LittleEndian.PutUint16(rhdr[10:12], 2)
	buf.Write(rhdr[:])
	buf.WriteString("XY")

	if err := w.WriteRecord(3, TypeNavSolution, nav2); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	res, err := Decode(&buf, ReaderOptions{Strict: true})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	cols := res.Records["NAV_SOLUTION"]
	if len(cols.TUs) != 2 || cols.TUs[0] != 1 || cols.TUs[1] != 3 {
		t.Errorf("NAV_SOLUTION t_us = %v, want [1 3]", cols.TUs)
	}
	if len(res.Unknown) != 1 || res.Unknown[0].Type != 777 {
		t.Errorf("Unknown = %v, want one record of type 777", res.Unknown)
	}
}

func TestDecode_CorruptMagicFails(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(make([]byte, headerSize))
	if _, err := Decode(&buf, ReaderOptions{}); !usverr.Is(err, usverr.CorruptHeader) {
		t.Errorf("err = %v, want CorruptHeader", err)
	}
}

func TestDecode_TruncatedPayloadAtEOF(t *testing.T) {
	var buf bytes.Buffer
	w := writeHeader(t, &buf, 1, 0)
	if err := w.WriteRecord(1, TypeNavSolution, Fields{"x": 1}); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-4] // chop the last 4 payload bytes

	if _, err := Decode(bytes.NewReader(truncated), ReaderOptions{}); !usverr.Is(err, usverr.TruncatedPayload) {
		t.Errorf("err = %v, want TruncatedPayload", err)
	}
}

func TestDecode_SchemaMismatchIsIncompatible(t *testing.T) {
	var buf bytes.Buffer
	if err := (FileHeader{FwModelSchema: 2}).WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if _, err := Decode(&buf, ReaderOptions{WantSchema: 1}); !usverr.Is(err, usverr.IncompatibleDataset) {
		t.Errorf("err = %v, want IncompatibleDataset", err)
	}
}

func TestDecode_StrictRejectsShortKnownPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := (FileHeader{FwModelSchema: 1}).WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	var rhdr [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(rhdr[0:8], 5)
	binary.LittleEndian.PutUint16(rhdr[8:10], TypeNavSolution)
	binary.LittleEndian.PutUint16(rhdr[10:12], 4) // NAV_SOLUTION wants 24
	buf.Write(rhdr[:])
	buf.Write(make([]byte, 4))

	if _, err := Decode(&buf, ReaderOptions{Strict: true}); !usverr.Is(err, usverr.PayloadLengthMismatch) {
		t.Errorf("err = %v, want PayloadLengthMismatch", err)
	}
}

func TestDecode_LenientIgnoresTrailingBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := (FileHeader{FwModelSchema: 1}).WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	layout := Registry[TypeESCOutput]
	payload := packPayload(layout, Fields{"u_L": 0.5, "u_R": -0.5})
	payload = append(payload, 0, 0, 0, 0) // 4 bytes of unexpected trailing data

	var rhdr [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(rhdr[0:8], 7)
	binary.LittleEndian.PutUint16(rhdr[8:10], TypeESCOutput)
	binary.LittleEndian.PutUint16(rhdr[10:12], uint16(len(payload)))
	buf.Write(rhdr[:])
	buf.Write(payload)

	res, err := Decode(&buf, ReaderOptions{Strict: false})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	cols := res.Records["ESC_OUTPUT"]
	if cols == nil || cols.Fields["u_L"][0] != float64(float32(0.5)) {
		t.Errorf("ESC_OUTPUT not decoded correctly: %+v", res.Records)
	}
}

func TestEvents_RoundTripSkipsBlankLines(t *testing.T) {
	var buf bytes.Buffer
	ew := NewEventWriter(&buf)
	if err := ew.Write(Event{TUs: 1, Type: "mission_start"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := ew.Write(Event{TUs: 2, Type: "waypoint_reached", Message: "wp0"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	withBlank := buf.String() + "\n   \n"
	events, err := ReadEvents(strings.NewReader(withBlank))
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Type != "mission_start" || events[1].Message != "wp0" {
		t.Errorf("events = %+v", events)
	}
}

func TestEvents_MalformedJSONIsFatal(t *testing.T) {
	_, err := ReadEvents(strings.NewReader(`{"t_us": 1, "type": "ok"}` + "\n" + `not json` + "\n"))
	if err == nil {
		t.Fatal("expected error for malformed JSON line")
	}
}

// TestCodecRoundTrip_ActuatorReq exercises ACTUATOR_REQ (record id 3)
// directly: the registry must still round-trip it bit-for-bit even
// though no producer in this repository emits it (see DESIGN.md).
func TestCodecRoundTrip_ActuatorReq(t *testing.T) {
	var buf bytes.Buffer
	w := writeHeader(t, &buf, 1, 0)

	req := Fields{"u_s_req": 0.42, "u_d_req": -0.13, "src": 2}
	if err := w.WriteRecord(500, TypeActuatorReq, req); err != nil {
		t.Fatalf("WriteRecord(ACTUATOR_REQ) failed: %v", err)
	}

	res, err := Decode(&buf, DefaultOptions())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	cols, ok := res.Records["ACTUATOR_REQ"]
	if !ok {
		t.Fatal("ACTUATOR_REQ missing from decoded records")
	}
	if len(cols.TUs) != 1 || cols.TUs[0] != 500 {
		t.Errorf("ACTUATOR_REQ t_us = %v, want [500]", cols.TUs)
	}
	for name, want := range req {
		got := cols.Fields[name][0]
		if float32(got) != float32(want) {
			t.Errorf("ACTUATOR_REQ.%s = %v, want %v", name, got, want)
		}
	}
}

func TestMeta_RoundTrip(t *testing.T) {
	m := Meta{
		CreatedUTC:    "2026-07-29T00:00:00Z",
		SessionName:   "sea-trial-04",
		FwModelID:     "proc_model_2d_surgev_yawrate_bias",
		FwModelSchema: 1,
		Scenario:      Scenario{Name: "zigzag", DtS: 0.05, DurationS: 30, NSteps: 600},
		ProcessParams: ProcessParams{TauV: 2.0, TauR: 0.8, KV: 0.8, KR: 1.2},
		Time:          TimeRange{T0Us: 0, TEndUs: 30_000_000, DtUs: 50_000},
		Files: Files{
			Timeseries: TimeseriesFileMeta{
				Format:        "tlv_v1",
				RecordCatalog: BuildRecordCatalog(),
				RecordCounts:  map[string]int{"NAV_SOLUTION": 600},
			},
			Events: EventsFileMeta{EventCount: 3},
		},
	}

	var buf bytes.Buffer
	if err := WriteMeta(&buf, m); err != nil {
		t.Fatalf("WriteMeta failed: %v", err)
	}
	got, err := ReadMeta(&buf)
	if err != nil {
		t.Fatalf("ReadMeta failed: %v", err)
	}
	if got.SessionName != m.SessionName || got.FwModelSchema != m.FwModelSchema {
		t.Errorf("got = %+v, want %+v", got, m)
	}
	if len(got.Files.Timeseries.RecordCatalog) != 13 {
		t.Errorf("record catalog len = %d, want 13", len(got.Files.Timeseries.RecordCatalog))
	}
}

func TestCheckModelCompatible(t *testing.T) {
	cases := []struct {
		name    string
		got     string
		want    string
		wantErr bool
	}{
		{"exact match", ModelID, ModelID, false},
		{"absent got accepted", "", ModelID, false},
		{"wildcard got accepted", "*", ModelID, false},
		{"absent want accepts anything", ModelID, "", false},
		{"wildcard want accepts anything", ModelID, "*", false},
		{"mismatch rejected", "proc_model_other", ModelID, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := CheckModelCompatible(c.got, c.want)
			if c.wantErr {
				if err == nil || !usverr.Is(err, usverr.IncompatibleDataset) {
					t.Fatalf("CheckModelCompatible(%q, %q) = %v, want IncompatibleDataset", c.got, c.want, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CheckModelCompatible(%q, %q) = %v, want nil", c.got, c.want, err)
			}
		})
	}
}

func TestValidateMeta(t *testing.T) {
	base := Meta{FwModelID: ModelID, FwModelSchema: 1}

	if err := ValidateMeta(base, ReaderOptions{WantSchema: 1, WantModelID: ModelID}); err != nil {
		t.Errorf("matching schema and model id: got %v, want nil", err)
	}

	schemaMismatch := base
	schemaMismatch.FwModelSchema = 2
	err := ValidateMeta(schemaMismatch, ReaderOptions{WantSchema: 1, WantModelID: ModelID})
	if err == nil || !usverr.Is(err, usverr.IncompatibleDataset) {
		t.Errorf("schema mismatch: got %v, want IncompatibleDataset", err)
	}

	modelMismatch := base
	modelMismatch.FwModelID = "proc_model_other"
	err = ValidateMeta(modelMismatch, ReaderOptions{WantSchema: 1, WantModelID: ModelID})
	if err == nil || !usverr.Is(err, usverr.IncompatibleDataset) {
		t.Errorf("model id mismatch: got %v, want IncompatibleDataset", err)
	}

	if err := ValidateMeta(base, ReaderOptions{}); err != nil {
		t.Errorf("unset WantSchema/WantModelID: got %v, want nil (no gating requested)", err)
	}
}
