package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

// ModelID is the process model identifier this core's records are
// currently compiled against, written to every meta.json's fw_model_id.
const ModelID = "proc_model_2d_surgev_yawrate_bias"

// Scenario describes the run that produced a timeseries, for the
// meta.json sibling.
type Scenario struct {
	Name      string  `json:"name"`
	DtS       float64 `json:"dt_s"`
	DurationS float64 `json:"duration_s"`
	NSteps    int     `json:"n_steps"`
}

// ProcessParams mirrors model.Params for the meta.json sibling.
type ProcessParams struct {
	TauV float64 `json:"tau_v"`
	TauR float64 `json:"tau_r"`
	KV   float64 `json:"k_v"`
	KR   float64 `json:"k_r"`
}

// TimeRange records the time span covered by a timeseries.
type TimeRange struct {
	T0Us   uint64 `json:"t0_us"`
	TEndUs uint64 `json:"t_end_us"`
	DtUs   uint64 `json:"dt_us"`
}

// TimeseriesFileMeta describes the binary file's own self-reported
// shape: its format tag, header, and record accounting.
type TimeseriesFileMeta struct {
	Format        string         `json:"format"`
	Header        FileHeader     `json:"header"`
	RecordCatalog []string       `json:"record_catalog"`
	RecordCounts  map[string]int `json:"record_counts"`
}

// EventsFileMeta describes the companion event stream.
type EventsFileMeta struct {
	EventCount int `json:"event_count"`
}

// Files groups the two sibling artefacts' self-descriptions.
type Files struct {
	Timeseries TimeseriesFileMeta `json:"timeseries.bin"`
	Events     EventsFileMeta     `json:"events.jsonl"`
}

// Meta is the full meta.json sibling written alongside a timeseries run:
// provenance, scenario, process parameters, time range, and per-file
// accounting.
type Meta struct {
	CreatedUTC    string        `json:"created_utc"`
	SessionName   string        `json:"session_name"`
	GitSHA        string        `json:"git_sha"`
	GitDirty      bool          `json:"git_dirty"`
	FwModelID     string        `json:"fw_model_id"`
	FwModelSchema uint32        `json:"fw_model_schema"`
	Scenario      Scenario      `json:"scenario"`
	ProcessParams ProcessParams `json:"process_params"`
	Time          TimeRange     `json:"time"`
	Files         Files         `json:"files"`
}

// WriteMeta writes m to w as indented UTF-8 JSON.
func WriteMeta(w io.Writer, m Meta) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return usverr.Wrap(err, usverr.InvalidArgument, "codec.WriteMeta", "encode failed")
	}
	return nil
}

// ReadMeta parses a meta.json sibling from r.
func ReadMeta(r io.Reader) (Meta, error) {
	var m Meta
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Meta{}, usverr.Wrap(err, usverr.InvalidArgument, "codec.ReadMeta", "decode failed")
	}
	return m, nil
}

// CheckModelCompatible reports an IncompatibleDataset error if got and
// want name different model ids. Per spec §4.5, an absent ("") or
// wildcard ("*") value on either side is accepted as compatible with
// anything; only two concrete, differing ids are rejected.
func CheckModelCompatible(got, want string) error {
	if got == "" || got == "*" || want == "" || want == "*" {
		return nil
	}
	if got != want {
		return usverr.New(usverr.IncompatibleDataset, "codec.CheckModelCompatible",
			fmt.Sprintf("fw_model_id %q does not match expected %q", got, want))
	}
	return nil
}

// ValidateMeta checks m's fw_model_schema and fw_model_id against opts,
// the meta.json counterpart to CheckCompatible's header-only check.
// Either mismatch is reported as IncompatibleDataset.
func ValidateMeta(m Meta, opts ReaderOptions) error {
	if opts.WantSchema != 0 && m.FwModelSchema != opts.WantSchema {
		return usverr.New(usverr.IncompatibleDataset, "codec.ValidateMeta",
			fmt.Sprintf("fw_model_schema %d does not match expected %d", m.FwModelSchema, opts.WantSchema))
	}
	return CheckModelCompatible(m.FwModelID, opts.WantModelID)
}

// BuildRecordCatalog lists every known record name from the registry, in
// type-id order, for the meta.json record_catalog field.
func BuildRecordCatalog() []string {
	out := make([]string, 0, len(Registry))
	for id := TypeNavSolution; id <= TypeSensorGyro; id++ {
		if l, ok := Registry[id]; ok {
			out = append(out, l.Name)
		}
	}
	return out
}
