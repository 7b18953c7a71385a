// Package eventio reads and writes KLM events as JSON lines: one event per
// line with its hits and the externally fitted trajectories.
package eventio

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/recomatch"
	"github.com/banshee-data/klmtrack/internal/klm/tracking"
)

// maxLineSize bounds a single event line.
const maxLineSize = 16 * 1024 * 1024

// HitRecord is the serialised form of a klm.Hit2D.
type HitRecord struct {
	Subdetector string  `json:"subdetector"`
	Section     int     `json:"section"`
	Sector      int     `json:"sector"`
	Layer       int     `json:"layer"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	TimeNs      float64 `json:"time_ns"`
	OutOfTime   bool    `json:"out_of_time,omitempty"`

	PhiStripMin int `json:"phi_strip_min,omitempty"`
	PhiStripMax int `json:"phi_strip_max,omitempty"`
	ZStripMin   int `json:"z_strip_min,omitempty"`
	ZStripMax   int `json:"z_strip_max,omitempty"`
	XStripMin   int `json:"x_strip_min,omitempty"`
	XStripMax   int `json:"x_strip_max,omitempty"`
	YStripMin   int `json:"y_strip_min,omitempty"`
	YStripMax   int `json:"y_strip_max,omitempty"`
}

// StateRecord is a trajectory state.
type StateRecord struct {
	Position [3]float64 `json:"pos"`
	Momentum [3]float64 `json:"mom"`
}

// TrajectoryRecord is an external straight-line trajectory.
type TrajectoryRecord struct {
	ID        int         `json:"id"`
	Fitted    bool        `json:"fitted"`
	First     StateRecord `json:"first"`
	Last      StateRecord `json:"last"`
	InnerHits int         `json:"inner_hits"`
}

// EventRecord is one line of an events file.
type EventRecord struct {
	Run          int                `json:"run"`
	Event        int                `json:"event"`
	Hits         []HitRecord        `json:"hits"`
	Trajectories []TrajectoryRecord `json:"trajectories,omitempty"`
}

func vec(a [3]float64) r3.Vector { return r3.Vector{X: a[0], Y: a[1], Z: a[2]} }

func arr(v r3.Vector) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// NewStateRecord converts a trajectory state.
func NewStateRecord(s recomatch.State) StateRecord {
	return StateRecord{Position: arr(s.Position), Momentum: arr(s.Momentum)}
}

// State returns the record as a trajectory state.
func (s StateRecord) State() recomatch.State {
	return recomatch.State{Position: vec(s.Position), Momentum: vec(s.Momentum)}
}

// NewHitRecord converts a hit.
func NewHitRecord(h *klm.Hit2D) HitRecord {
	return HitRecord{
		Subdetector: h.Subdetector.String(),
		Section:     int(h.Section),
		Sector:      int(h.Sector),
		Layer:       int(h.Layer),
		X:           h.Position.X,
		Y:           h.Position.Y,
		Z:           h.Position.Z,
		TimeNs:      h.Time,
		OutOfTime:   h.OutOfTime,
		PhiStripMin: h.PhiStripMin,
		PhiStripMax: h.PhiStripMax,
		ZStripMin:   h.ZStripMin,
		ZStripMax:   h.ZStripMax,
		XStripMin:   h.XStripMin,
		XStripMax:   h.XStripMax,
		YStripMin:   h.YStripMin,
		YStripMax:   h.YStripMax,
	}
}

// Hit validates the record and returns the hit.
func (r HitRecord) Hit() (*klm.Hit2D, error) {
	sub, err := klm.ParseSubdetector(r.Subdetector)
	if err != nil {
		return nil, err
	}
	h, err := klm.NewHit2D(sub, klm.Section(r.Section), klm.Sector(r.Sector), klm.Layer(r.Layer),
		r3.Vector{X: r.X, Y: r.Y, Z: r.Z})
	if err != nil {
		return nil, err
	}
	h.Time = r.TimeNs
	h.OutOfTime = r.OutOfTime
	h.PhiStripMin, h.PhiStripMax = r.PhiStripMin, r.PhiStripMax
	h.ZStripMin, h.ZStripMax = r.ZStripMin, r.ZStripMax
	h.XStripMin, h.XStripMax = r.XStripMin, r.XStripMax
	h.YStripMin, h.YStripMax = r.YStripMin, r.YStripMax
	return h, nil
}

// ToEvent converts the record into a tracking event. Hits keep file order.
func (r EventRecord) ToEvent() (*tracking.Event, error) {
	store := klm.NewHitStore()
	for i, hr := range r.Hits {
		h, err := hr.Hit()
		if err != nil {
			return nil, fmt.Errorf("hit %d: %w", i, err)
		}
		store.Add(h)
	}
	trajs := make([]recomatch.Trajectory, 0, len(r.Trajectories))
	for _, tr := range r.Trajectories {
		lt := recomatch.NewLineTrajectory(tr.ID, tr.First.State(), tr.Last.State(), tr.InnerHits)
		lt.Fitted = tr.Fitted
		trajs = append(trajs, lt)
	}
	return &tracking.Event{Run: r.Run, Number: r.Event, Hits: store, Trajectories: trajs}, nil
}

// Reader decodes events line by line.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{sc: sc}
}

// Next returns the next event record, skipping blank lines. It returns
// io.EOF at the end of input.
func (r *Reader) Next() (EventRecord, error) {
	for r.sc.Scan() {
		r.line++
		b := r.sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec EventRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return EventRecord{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return rec, nil
	}
	if err := r.sc.Err(); err != nil {
		return EventRecord{}, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return EventRecord{}, io.EOF
}

// Each reads every event of r and calls fn with it, stopping at the first
// error.
func Each(r io.Reader, fn func(*tracking.Event) error) error {
	rd := NewReader(r)
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		ev, err := rec.ToEvent()
		if err != nil {
			return fmt.Errorf("event %d/%d: %w", rec.Run, rec.Event, err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// EachFile opens path and calls Each on it.
func EachFile(path string, fn func(*tracking.Event) error) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()
	return Each(f, fn)
}

// Writer encodes events one per line.
type Writer struct {
	bw  *bufio.Writer
	enc *json.Encoder
}

// NewWriter returns a Writer on w. Flush must be called when done.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{bw: bw, enc: json.NewEncoder(bw)}
}

// Write appends one event.
func (w *Writer) Write(rec EventRecord) error {
	return w.enc.Encode(rec)
}

// Flush writes buffered events to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}
