// Package bridge reads fixed-format sensor frames off a serial link and
// feeds them into an EKF estimator via the closed set of measurement
// models (GNSS XY, gyro yaw-rate-plus-bias, magnetometer heading).
package bridge

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"go.bug.st/serial"
	"gonum.org/v1/gonum/mat"

	"github.com/danielflataker/usv-autopilot/internal/ekf"
	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

// Frame magic bytes identifying which sensor a frame carries.
const (
	magicGNSS uint8 = 0xA1
	magicGyro uint8 = 0xA2
	magicMag  uint8 = 0xA3
)

// Per-sensor measurement noise sigmas, matching the synthetic sensor
// model used by cmd/usvtwin's scripted demo so live and simulated runs
// feed the EKF comparable R matrices.
const (
	sigmaGNSS = 0.5
	sigmaGyro = 0.01
	sigmaMag  = 0.02
)

// Frame is one decoded sensor reading: which measurement model it feeds,
// its raw measurement vector, and that measurement's noise covariance.
type Frame struct {
	Model ekf.MeasurementModel
	Z     []float64
	R     *mat.SymDense
}

// Link wraps an open serial port and decodes the fixed three frame
// shapes this bridge understands: GNSS (x, y), gyro (z_gyro), and
// magnetometer (psi), each a 1-byte magic plus big-endian-free f32
// fields plus a 1-byte XOR checksum.
type Link struct {
	port serial.Port
}

// Open opens portName at baudRate for 8-N-1 framing, matching the wire
// format ground stations and firmware on this project already use.
func Open(portName string, baudRate int) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, usverr.Wrap(err, usverr.InvalidArgument, "bridge.Open",
			fmt.Sprintf("failed to open serial port %s", portName))
	}
	return &Link{port: port}, nil
}

// Close releases the underlying serial port.
func (l *Link) Close() error {
	return l.port.Close()
}

// ReadFrame blocks (up to timeout) for the next sensor frame and
// decodes it into the measurement model it feeds.
func (l *Link) ReadFrame(timeout time.Duration) (Frame, error) {
	const component = "bridge.Link.ReadFrame"
	l.port.SetReadTimeout(timeout)

	magic := make([]byte, 1)
	if _, err := io.ReadFull(l.port, magic); err != nil {
		return Frame{}, usverr.Wrap(err, usverr.TruncatedHeader, component, "magic byte read failed")
	}

	var nFloats int
	switch magic[0] {
	case magicGNSS:
		nFloats = 2
	case magicGyro:
		nFloats = 1
	case magicMag:
		nFloats = 1
	default:
		return Frame{}, usverr.New(usverr.CorruptHeader, component,
			fmt.Sprintf("unrecognized frame magic 0x%02x", magic[0]))
	}

	body := make([]byte, nFloats*4+1) // floats + checksum byte
	if _, err := io.ReadFull(l.port, body); err != nil {
		return Frame{}, usverr.Wrap(err, usverr.TruncatedPayload, component, "frame body read failed")
	}

	want := checksum(magic[0], body[:len(body)-1])
	got := body[len(body)-1]
	if got != want {
		return Frame{}, usverr.New(usverr.PayloadLengthMismatch, component,
			fmt.Sprintf("checksum mismatch: got 0x%02x, want 0x%02x", got, want))
	}

	z := make([]float64, nFloats)
	for i := 0; i < nFloats; i++ {
		bits := binary.LittleEndian.Uint32(body[i*4 : i*4+4])
		z[i] = float64(math.Float32frombits(bits))
	}

	var model ekf.MeasurementModel
	var r *mat.SymDense
	switch magic[0] {
	case magicGNSS:
		model = ekf.GNSSXY{}
		r = mat.NewSymDense(2, nil)
		r.SetSym(0, 0, sigmaGNSS*sigmaGNSS)
		r.SetSym(1, 1, sigmaGNSS*sigmaGNSS)
	case magicGyro:
		model = ekf.GyroR{}
		r = mat.NewSymDense(1, nil)
		r.SetSym(0, 0, sigmaGyro*sigmaGyro)
	case magicMag:
		model = ekf.MagPsi{}
		r = mat.NewSymDense(1, nil)
		r.SetSym(0, 0, sigmaMag*sigmaMag)
	}

	return Frame{Model: model, Z: z, R: r}, nil
}

func checksum(magic uint8, data []byte) uint8 {
	c := magic
	for _, b := range data {
		c ^= b
	}
	return c
}
