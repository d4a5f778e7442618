// Command usvtwin runs the digital-twin numerical core end to end: it
// drives the process model forward under a scripted maneuver, filters
// synthetic sensor readings through the EKF, and writes the result as a
// versioned timeseries.bin plus its events.jsonl and meta.json siblings.
// With --serial it reads live sensor frames off a serial link instead of
// simulating them. With --serve, once the run completes, it keeps
// serving the run over the read-only inspection server and a live
// WebSocket endpoint until interrupted.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/danielflataker/usv-autopilot/internal/api"
	"github.com/danielflataker/usv-autopilot/internal/bridge"
	"github.com/danielflataker/usv-autopilot/internal/codec"
	"github.com/danielflataker/usv-autopilot/internal/ekf"
	"github.com/danielflataker/usv-autopilot/internal/eventbus"
	"github.com/danielflataker/usv-autopilot/internal/live"
	"github.com/danielflataker/usv-autopilot/internal/metrics"
	"github.com/danielflataker/usv-autopilot/internal/model"
	"github.com/danielflataker/usv-autopilot/internal/sim"
	"github.com/danielflataker/usv-autopilot/internal/state"
	"github.com/danielflataker/usv-autopilot/internal/usverr"
	"github.com/danielflataker/usv-autopilot/pkg/usvlog"
)

var (
	outDir    = flag.String("out", "./run", "output directory for timeseries.bin, events.jsonl, meta.json")
	durationS = flag.Float64("duration", 30.0, "simulated run length in seconds")
	dtFlag    = flag.Float64("dt", 0.05, "step size in seconds")
	seedFlag  = flag.Uint64("seed", 42, "seed for the process-noise and measurement-noise generator")
	logLevel  = flag.String("log-level", "info", "debug, info, warn, or error")
	serve     = flag.Bool("serve", false, "start the inspection server and live feed after the run")
	httpAddr  = flag.String("http-addr", ":8090", "address for the inspection server")
	natsURL   = flag.String("nats-url", "", "if set, mirror events.jsonl onto this NATS server")
	jwtSecret = flag.String("jwt-secret", "usvtwin-dev-secret", "HMAC secret for the inspection server's bearer tokens")

	serialPort      = flag.String("serial", "", "if set, read live sensor frames from this serial port instead of running the scripted simulation")
	serialBaud      = flag.Int("serial-baud", 115200, "baud rate for --serial")
	serialTimeoutMs = flag.Int("serial-timeout-ms", 500, "read timeout in milliseconds for each serial frame")
)

// defaultProcessParams returns the surge/yaw time constants and gains
// used for the demo run, representative of a small survey USV.
func defaultProcessParams() model.Params {
	theta, err := model.NewParams(2.0, 0.8, 0.8, 1.2)
	if err != nil {
		panic(err) // constants above are known-valid
	}
	return theta
}

func main() {
	flag.Parse()

	log := usvlog.New(*logLevel, "stdout")
	log.Info("usvtwin starting")

	if err := run(log); err != nil {
		log.WithError(err).Fatal("usvtwin run failed")
	}
	log.Info("usvtwin exited cleanly")
}

func run(log *logrus.Logger) error {
	const component = "cmd.usvtwin.run"

	theta := defaultProcessParams()
	dtS := *dtFlag
	nSteps := int(*durationS / dtS)
	if nSteps <= 0 {
		return usverr.New(usverr.InvalidArgument, component, "duration/dt must yield at least one step")
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	sessionName := uuid.New().String()
	m := metrics.Get()

	gen := sim.NewGaussianGenerator(*seedFlag)
	est := newEstimator(theta)

	var tsBuf bytes.Buffer
	w := codec.NewWriter(&tsBuf)
	t0Us := uint64(0)
	if err := w.WriteHeader(codec.FileHeader{FwModelSchema: 1, T0Us: t0Us}); err != nil {
		return fmt.Errorf("write timeseries header: %w", err)
	}

	var evBuf bytes.Buffer
	ew := codec.NewEventWriter(&evBuf)
	var bus *eventbus.Bus
	if *natsURL != "" {
		var err error
		cfg := eventbus.DefaultConfig()
		cfg.URL = *natsURL
		cfg.ClientID = "usvtwin-" + sessionName
		bus, err = eventbus.Connect(cfg)
		if err != nil {
			log.WithError(err).Warn("failed to connect to NATS, continuing without event mirroring")
			bus = nil
		} else {
			defer bus.Close()
		}
	}

	emit := func(tUs uint64, evType, message string) {
		e := codec.Event{TUs: tUs, Type: evType, Message: message}
		if err := ew.Write(e); err != nil {
			log.WithError(err).Warn("failed to write event")
			return
		}
		if bus != nil {
			if err := bus.Publish(e); err != nil {
				log.WithError(err).Warn("failed to mirror event to NATS")
			}
		}
	}

	emit(t0Us, "run_start", "usvtwin simulation started")

	var streamer *live.Streamer
	var srv *http.Server
	var liveCtx context.Context
	var liveCancel context.CancelFunc
	if *serve {
		streamer = live.New(log)
		liveCtx, liveCancel = context.WithCancel(context.Background())
		go streamer.Run(liveCtx)
	}

	counts := make(map[string]int)
	recordCounter := func(name string) { counts[name]++ }

	scenarioName := "scripted_maneuver"
	nStepsActual := nSteps
	durationSActual := *durationS
	var tEndUs uint64

	if *serialPort != "" {
		scenarioName = "serial_bridge"
		endUs, nFrames, serr := runSerialBridge(log, m, est, w, emit, streamer, recordCounter)
		if serr != nil {
			return fmt.Errorf("serial bridge run failed: %w", serr)
		}
		tEndUs = endUs
		nStepsActual = nFrames
		durationSActual = float64(tEndUs-t0Us) / 1e6
		emit(tEndUs, "run_complete", fmt.Sprintf("processed %d serial frames", nFrames))
	} else {
		cfg := sim.Config{T0: 0, Dt: dtS, Theta: theta}
		x0 := state.New(0, 0, 0, 0, 0, 0)

		uFunc := maneuverSchedule(*durationS)
		wFunc := processNoise(gen)

		onStep := func(k int, tk float64, xk state.Vector, uk state.Input, xNext state.Vector) {
			tUs := uint64((tk + dtS) * 1e6)
			m.SimStepsRun.Inc()

			if err := est.Predict(uk, dtS); err != nil {
				log.WithError(err).Error("ekf predict failed")
				emit(tUs, "ekf_predict_error", err.Error())
				return
			}
			m.EKFPredictTotal.Inc()

			if k%10 == 0 {
				z, r := syntheticGNSS(xNext, gen)
				applyUpdate(est, m, log, emit, w, recordCounter, tUs, "gnss_xy", ekf.GNSSXY{}, z, r)
				writeSensorGNSS(w, recordCounter, tUs, z)
			}
			{
				z, r := syntheticGyro(xNext, gen)
				applyUpdate(est, m, log, emit, w, recordCounter, tUs, "gyro_r", ekf.GyroR{}, z, r)
				writeSensorGyro(w, recordCounter, tUs, z)
			}
			if k%5 == 0 {
				z, r := syntheticMag(xNext, gen)
				applyUpdate(est, m, log, emit, w, recordCounter, tUs, "mag_psi", ekf.MagPsi{}, z, r)
			}

			writeNavSolutionAndDiag(w, recordCounter, tUs, est, m)

			if streamer != nil {
				streamer.Broadcast(sampleFrom(tUs, est))
			}
		}

		res, err := sim.RunCallback(x0, nSteps, cfg, uFunc, wFunc, onStep)
		if err != nil {
			return fmt.Errorf("simulation run failed: %w", err)
		}

		tEndUs = uint64(res.T[len(res.T)-1] * 1e6)
		emit(tEndUs, "run_complete", fmt.Sprintf("completed %d steps", nSteps))
	}

	tsPath := filepath.Join(*outDir, "timeseries.bin")
	if err := os.WriteFile(tsPath, tsBuf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tsPath, err)
	}
	evPath := filepath.Join(*outDir, "events.jsonl")
	if err := os.WriteFile(evPath, evBuf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", evPath, err)
	}

	metaPath := filepath.Join(*outDir, "meta.json")
	metaFile, err := os.Create(metaPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", metaPath, err)
	}
	defer metaFile.Close()

	meta := codec.Meta{
		CreatedUTC:    time.Now().UTC().Format(time.RFC3339),
		SessionName:   sessionName,
		GitSHA:        "unknown",
		GitDirty:      false,
		FwModelID:     codec.ModelID,
		FwModelSchema: 1,
		Scenario: codec.Scenario{
			Name:      scenarioName,
			DtS:       dtS,
			DurationS: durationSActual,
			NSteps:    nStepsActual,
		},
		ProcessParams: codec.ProcessParams{TauV: theta.TauV, TauR: theta.TauR, KV: theta.KV, KR: theta.KR},
		Time:          codec.TimeRange{T0Us: t0Us, TEndUs: tEndUs, DtUs: uint64(dtS * 1e6)},
		Files: codec.Files{
			Timeseries: codec.TimeseriesFileMeta{
				Format:        "tlv_v1",
				Header:        codec.FileHeader{FwModelSchema: 1, T0Us: t0Us},
				RecordCatalog: codec.BuildRecordCatalog(),
				RecordCounts:  counts,
			},
			Events: codec.EventsFileMeta{EventCount: countLines(evBuf.Bytes())},
		},
	}
	if err := codec.WriteMeta(metaFile, meta); err != nil {
		return fmt.Errorf("write meta.json: %w", err)
	}
	if mf, err := os.Open(metaPath); err == nil {
		readBack, rerr := codec.ReadMeta(mf)
		mf.Close()
		if rerr == nil {
			wantOpts := codec.ReaderOptions{WantSchema: 1, WantModelID: codec.ModelID}
			if verr := codec.ValidateMeta(readBack, wantOpts); verr != nil {
				log.WithError(verr).Warn("meta.json failed model/schema compatibility check")
			}
		}
	}

	log.WithFields(logrus.Fields{"steps": nStepsActual, "out": *outDir}).Info("run complete")

	if !*serve {
		if liveCancel != nil {
			liveCancel()
		}
		return nil
	}

	store := api.NewStore()
	decoded, err := codec.Decode(bytes.NewReader(tsBuf.Bytes()), codec.ReaderOptions{Strict: false, WantSchema: 1})
	if err != nil {
		log.WithError(err).Warn("failed to decode run for inspection server; serving empty store")
	} else {
		store.Set(decoded)
	}

	router := api.NewRouter(store, []byte(*jwtSecret))
	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.HandleFunc("/live", streamer.HandleWebSocket)
	srv = &http.Server{Addr: *httpAddr, Handler: mux}

	go func() {
		log.WithField("addr", *httpAddr).Info("inspection server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("inspection server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	liveCancel()

	return nil
}

func newEstimator(theta model.Params) *ekf.Estimator {
	x0 := state.New(0, 0, 0, 0, 0, 0)
	return ekf.NewFromConfig(x0, theta, ekf.DefaultConfig())
}

// runSerialBridge opens the --serial link and feeds every decoded frame
// through est.Update via its declared measurement model, recording
// NAV_SOLUTION/EKF_DIAG after each one, until the link reports a read
// error (disconnection or a caller-visible timeout). It returns the
// timestamp of the last record written and the number of frames
// processed.
func runSerialBridge(
	log *logrus.Logger,
	m *metrics.Metrics,
	est *ekf.Estimator,
	w *codec.Writer,
	emit func(tUs uint64, evType, message string),
	streamer *live.Streamer,
	countRecord func(string),
) (tEndUs uint64, nFrames int, err error) {
	link, err := bridge.Open(*serialPort, *serialBaud)
	if err != nil {
		return 0, 0, err
	}
	defer link.Close()

	log.WithFields(logrus.Fields{"port": *serialPort, "baud": *serialBaud}).Info("serial bridge opened")

	timeout := time.Duration(*serialTimeoutMs) * time.Millisecond
	prevWall := time.Now()
	var lastTUs uint64

	for {
		f, ferr := link.ReadFrame(timeout)
		if ferr != nil {
			log.WithError(ferr).Info("serial link read ended, stopping bridge run")
			break
		}

		now := time.Now()
		dt := now.Sub(prevWall).Seconds()
		if dt <= 0 {
			dt = timeout.Seconds()
		}
		prevWall = now

		tUs := uint64(now.UnixMicro())
		if tUs <= lastTUs {
			tUs = lastTUs + 1
		}
		lastTUs = tUs

		if err := est.Predict(state.NewInput(0, 0), dt); err != nil {
			log.WithError(err).Error("ekf predict failed")
			emit(tUs, "ekf_predict_error", err.Error())
			continue
		}
		m.EKFPredictTotal.Inc()

		applyUpdate(est, m, log, emit, w, countRecord, tUs, measurementName(f.Model), f.Model, f.Z, f.R)
		writeNavSolutionAndDiag(w, countRecord, tUs, est, m)
		nFrames++

		if streamer != nil {
			streamer.Broadcast(sampleFrom(tUs, est))
		}
	}

	return lastTUs, nFrames, nil
}

// measurementName labels a MeasurementModel for metrics and logging, the
// live-bridge counterpart to the string literals the scripted-maneuver
// path already uses for the same three models.
func measurementName(mm ekf.MeasurementModel) string {
	switch mm.(type) {
	case ekf.GNSSXY:
		return "gnss_xy"
	case ekf.GyroR:
		return "gyro_r"
	case ekf.MagPsi:
		return "mag_psi"
	default:
		return "unknown"
	}
}

// maneuverSchedule drives a constant surge effort with a commanded turn
// at the midpoint of the run, exercising both process-model channels.
func maneuverSchedule(durationS float64) sim.UFunc {
	half := durationS / 2
	return func(k int, tk float64, xk state.Vector) (state.Input, error) {
		if tk < half {
			return state.NewInput(0.6, 0.0), nil
		}
		return state.NewInput(0.6, 0.4), nil
	}
}

// processNoise injects small additive noise on surge speed and yaw rate
// only, leaving position, heading, and gyro bias noise-free between
// steps (bias follows its own random walk through the EKF's Q, not the
// truth model).
func processNoise(gen sim.Generator) sim.WFunc {
	return func(k int, tk float64, xk state.Vector, uk state.Input) (*state.Vector, error) {
		dv := gen.Normal(0, 0.01, 1)[0]
		dr := gen.Normal(0, 0.005, 1)[0]
		w := state.New(0, 0, 0, dv, dr, 0)
		return &w, nil
	}
}

func syntheticGNSS(x state.Vector, gen sim.Generator) ([]float64, *mat.SymDense) {
	sigma := 0.5
	nx := gen.Normal(0, sigma, 1)[0]
	ny := gen.Normal(0, sigma, 1)[0]
	z := []float64{x[state.X] + nx, x[state.Y] + ny}
	r := mat.NewSymDense(2, nil)
	r.SetSym(0, 0, sigma*sigma)
	r.SetSym(1, 1, sigma*sigma)
	return z, r
}

func syntheticGyro(x state.Vector, gen sim.Generator) ([]float64, *mat.SymDense) {
	sigma := 0.01
	n := gen.Normal(0, sigma, 1)[0]
	z := []float64{x[state.R] + x[state.BG] + n}
	r := mat.NewSymDense(1, nil)
	r.SetSym(0, 0, sigma*sigma)
	return z, r
}

func syntheticMag(x state.Vector, gen sim.Generator) ([]float64, *mat.SymDense) {
	sigma := 0.02
	n := gen.Normal(0, sigma, 1)[0]
	z := []float64{state.WrapPi(x[state.PSI] + n)}
	r := mat.NewSymDense(1, nil)
	r.SetSym(0, 0, sigma*sigma)
	return z, r
}

func applyUpdate(
	est *ekf.Estimator,
	m *metrics.Metrics,
	log *logrus.Logger,
	emit func(tUs uint64, evType, message string),
	w *codec.Writer,
	countRecord func(string),
	tUs uint64,
	modelName string,
	mm ekf.MeasurementModel,
	z []float64,
	r *mat.SymDense,
) {
	result, err := est.Update(z, r, mm)
	if err != nil {
		kind := string(usverr.NumericError)
		if ue, ok := err.(*usverr.Error); ok {
			kind = string(ue.Kind)
		}
		m.EKFUpdateErrors.WithLabelValues(modelName, kind).Inc()
		usvlog.WithComponent(log, "ekf.Update").WithError(err).WithField("model", modelName).Warn("ekf update failed")
		emit(tUs, "ekf_update_error", err.Error())
		return
	}
	m.EKFUpdateTotal.WithLabelValues(modelName).Inc()
	sumSq := 0.0
	for _, v := range result.Innovation {
		sumSq += v * v
	}
	m.EKFInnovationNorm.WithLabelValues(modelName).Observe(math.Sqrt(sumSq))
}

func writeSensorGNSS(w *codec.Writer, countRecord func(string), tUs uint64, z []float64) {
	fields := codec.Fields{"x": z[0], "y": z[1], "cog": 0, "sog": 0, "valid": 1}
	if err := w.WriteRecord(tUs, codec.TypeSensorGNSS, fields); err == nil {
		countRecord("SENSOR_GNSS")
	}
}

func writeSensorGyro(w *codec.Writer, countRecord func(string), tUs uint64, z []float64) {
	fields := codec.Fields{"z_gyro": z[0], "b_g_est": 0, "valid": 1}
	if err := w.WriteRecord(tUs, codec.TypeSensorGyro, fields); err == nil {
		countRecord("SENSOR_GYRO")
	}
}

func writeNavSolutionAndDiag(w *codec.Writer, countRecord func(string), tUs uint64, est *ekf.Estimator, m *metrics.Metrics) {
	x := est.State()
	nav := codec.Fields{
		"x": x[state.X], "y": x[state.Y], "psi": x[state.PSI],
		"v": x[state.V], "r": x[state.R], "bg": x[state.BG],
	}
	if err := w.WriteRecord(tUs, codec.TypeNavSolution, nav); err == nil {
		countRecord("NAV_SOLUTION")
	}

	p := est.Covariance()
	trace := p.At(state.X, state.X) + p.At(state.Y, state.Y) + p.At(state.PSI, state.PSI) +
		p.At(state.V, state.V) + p.At(state.R, state.R) + p.At(state.BG, state.BG)
	m.EKFCovarianceTrace.Set(trace)

	diag := codec.Fields{
		"P_xx": p.At(state.X, state.X), "P_yy": p.At(state.Y, state.Y), "P_psi": p.At(state.PSI, state.PSI),
		"P_v": p.At(state.V, state.V), "P_r": p.At(state.R, state.R), "P_bg": p.At(state.BG, state.BG),
		"status_flags": 0,
	}
	if err := w.WriteRecord(tUs, codec.TypeEKFDiag, diag); err == nil {
		countRecord("EKF_DIAG")
	}
}

func sampleFrom(tUs uint64, est *ekf.Estimator) live.Sample {
	x := est.State()
	p := est.Covariance()
	return live.Sample{
		TUs: tUs, X: x[state.X], Y: x[state.Y], Psi: x[state.PSI], V: x[state.V], R: x[state.R], BG: x[state.BG],
		PXX: p.At(state.X, state.X), PYY: p.At(state.Y, state.Y), PPsi: p.At(state.PSI, state.PSI),
	}
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
