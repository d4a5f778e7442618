package codec

// Kind enumerates the primitive on-disk field types used by record
// layouts. Pad fields carry no value; they exist to keep natural
// alignment on embedded consumers and are zero on write, ignored on
// read.
type Kind uint8

const (
	KindF32 Kind = iota
	KindU8
	KindU16
	KindU32
	KindPad
)

func (k Kind) elemSize() int {
	switch k {
	case KindF32, KindU32:
		return 4
	case KindU16:
		return 2
	case KindU8, KindPad:
		return 1
	default:
		return 0
	}
}

// Field describes one named element of a record payload, or (for Kind ==
// KindPad) a run of Count reserved bytes.
type Field struct {
	Name  string
	Kind  Kind
	Count int // number of pad bytes, for KindPad; unused (zero) otherwise
}

// Layout is the fixed binary layout for one record type: a compile-time
// constant describing field order, kind, and total payload size. This is
// the single source of truth the encoder and decoder both walk.
type Layout struct {
	ID     uint16
	Name   string
	Fields []Field
}

// Size returns the fixed payload size in bytes for this layout.
func (l Layout) Size() int {
	n := 0
	for _, f := range l.Fields {
		if f.Kind == KindPad {
			n += f.Count
		} else {
			n += f.Kind.elemSize()
		}
	}
	return n
}

// Record type ids, per the canonical registry.
const (
	TypeNavSolution     uint16 = 1
	TypeGuidanceRef     uint16 = 2
	TypeActuatorReq     uint16 = 3
	TypeActuatorCmd     uint16 = 4
	TypeESCOutput       uint16 = 5
	TypeMissionState    uint16 = 6
	TypeMixerFeedback   uint16 = 7
	TypeSpeedSchedDebug uint16 = 8
	TypeSpeedCtrlDebug  uint16 = 9
	TypeYawCtrlDebug    uint16 = 10
	TypeEKFDiag         uint16 = 11
	TypeSensorGNSS      uint16 = 12
	TypeSensorGyro      uint16 = 13
)

func f32(name string) Field { return Field{Name: name, Kind: KindF32} }
func u8(name string) Field  { return Field{Name: name, Kind: KindU8} }
func u16(name string) Field { return Field{Name: name, Kind: KindU16} }
func u32(name string) Field { return Field{Name: name, Kind: KindU32} }
func pad(n int) Field       { return Field{Kind: KindPad, Count: n} }

// Registry is the canonical, compile-time record-layout table: type id
// to (name, field names, fixed binary layout), as specified in the
// timeseries codec design.
var Registry = map[uint16]Layout{
	TypeNavSolution: {
		ID: TypeNavSolution, Name: "NAV_SOLUTION",
		Fields: []Field{f32("x"), f32("y"), f32("psi"), f32("v"), f32("r"), f32("bg")},
	},
	TypeGuidanceRef: {
		ID: TypeGuidanceRef, Name: "GUIDANCE_REF",
		Fields: []Field{f32("psi_d"), f32("v_d"), f32("e_y"), f32("e_psi")},
	},
	TypeActuatorReq: {
		ID: TypeActuatorReq, Name: "ACTUATOR_REQ",
		Fields: []Field{f32("u_s_req"), f32("u_d_req"), u8("src"), pad(3)},
	},
	TypeActuatorCmd: {
		ID: TypeActuatorCmd, Name: "ACTUATOR_CMD",
		Fields: []Field{f32("u_s_cmd"), f32("u_d_cmd")},
	},
	TypeESCOutput: {
		ID: TypeESCOutput, Name: "ESC_OUTPUT",
		Fields: []Field{f32("u_L"), f32("u_R")},
	},
	TypeMissionState: {
		ID: TypeMissionState, Name: "MISSION_STATE",
		Fields: []Field{
			u16("idx"), u8("active"), u8("done"), pad(4),
			f32("x0"), f32("y0"), f32("x1"), f32("y1"), f32("v_seg"), f32("d_wp"),
		},
	},
	TypeMixerFeedback: {
		ID: TypeMixerFeedback, Name: "MIXER_FEEDBACK",
		Fields: []Field{
			f32("u_s_ach"), f32("u_d_ach"),
			u8("sat_L"), u8("sat_R"), u8("sat_any"), pad(5),
			f32("u_L_ach"), f32("u_R_ach"),
		},
	},
	TypeSpeedSchedDebug: {
		ID: TypeSpeedSchedDebug, Name: "SPEED_SCHED_DEBUG",
		Fields: []Field{
			f32("v_seg"), f32("v_cap"), f32("v_d"), f32("e_psi"), f32("d_wp"), f32("dv"),
			u8("cap_wp"), u8("cap_psi"), pad(2),
		},
	},
	TypeSpeedCtrlDebug: {
		ID: TypeSpeedCtrlDebug, Name: "SPEED_CTRL_DEBUG",
		Fields: []Field{
			f32("v_d"), f32("v_hat"), f32("e_v"), f32("u_s_raw"), f32("u_s_req"), f32("i_v"),
			u8("sat_u_s"), pad(3),
		},
	},
	TypeYawCtrlDebug: {
		ID: TypeYawCtrlDebug, Name: "YAW_CTRL_DEBUG",
		Fields: []Field{
			f32("psi_d"), f32("psi"), f32("e_psi"), f32("r_d"), f32("r"), f32("e_r"), f32("u_d_req"),
			u8("sat_u_d"), pad(3),
		},
	},
	TypeEKFDiag: {
		ID: TypeEKFDiag, Name: "EKF_DIAG",
		Fields: []Field{
			f32("P_xx"), f32("P_yy"), f32("P_psi"), f32("P_v"), f32("P_r"), f32("P_bg"),
			u32("status_flags"),
		},
	},
	TypeSensorGNSS: {
		ID: TypeSensorGNSS, Name: "SENSOR_GNSS",
		Fields: []Field{f32("x"), f32("y"), f32("cog"), f32("sog"), u8("valid"), pad(3)},
	},
	TypeSensorGyro: {
		ID: TypeSensorGyro, Name: "SENSOR_GYRO",
		Fields: []Field{f32("z_gyro"), f32("b_g_est"), u8("valid"), pad(3)},
	},
}

// NameByType returns the record name for a known type id, and whether it
// was found.
func NameByType(t uint16) (string, bool) {
	l, ok := Registry[t]
	if !ok {
		return "", false
	}
	return l.Name, true
}
