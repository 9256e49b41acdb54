package device

import (
	"fmt"
	"strings"
)

// Status enumerates the job states the printer reports.
type Status int

const (
	StatusIdle Status = iota
	StatusPrinting
	StatusPaused
	StatusCanceled
)

// String returns the canonical wire spelling of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusPrinting:
		return "Printing"
	case StatusPaused:
		return "Paused"
	case StatusCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Job identifies the file behind the active print.
type Job struct {
	Name             string
	Path             string
	LocationCategory string
}

// Snapshot is one immutable observation of remote printer state. The
// Is* booleans are derived from Status exactly once, at parse time.
type Snapshot struct {
	Status         Status
	Progress       float64 // clamped to [0, 1]
	LayerIndex     *int
	LayerCount     *int
	ElapsedSeconds float64
	ZPosition      float64
	UsedMaterialML float64
	Job            *Job

	IsPrinting bool
	IsPaused   bool
	IsCanceled bool
	IsIdle     bool
}

// Clone returns a deep copy, so callers can hand snapshots out without
// sharing the nullable fields.
func (s Snapshot) Clone() Snapshot {
	dup := s
	if s.LayerIndex != nil {
		v := *s.LayerIndex
		dup.LayerIndex = &v
	}
	if s.LayerCount != nil {
		v := *s.LayerCount
		dup.LayerCount = &v
	}
	if s.Job != nil {
		job := *s.Job
		dup.Job = &job
	}
	return dup
}

// ParseError reports a payload that cannot be turned into a Snapshot.
// Callers drop the update and keep the previous snapshot.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse status payload: field %q: %s", e.Field, e.Reason)
}

// ParseSnapshot converts a raw payload into a Snapshot. The status field is
// mandatory; everything else falls back to nil or zero. No side effects.
func ParseSnapshot(raw RawStatus) (Snapshot, error) {
	status, err := parseStatus(raw.Status)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Status:     status,
		IsPrinting: status == StatusPrinting,
		IsPaused:   status == StatusPaused,
		IsCanceled: status == StatusCanceled,
		IsIdle:     status == StatusIdle,
	}

	if raw.Progress != nil {
		snap.Progress = clamp01(*raw.Progress)
	}
	if raw.Layer != nil {
		layer := *raw.Layer
		snap.LayerIndex = &layer
	}
	if raw.ElapsedSeconds != nil {
		snap.ElapsedSeconds = *raw.ElapsedSeconds
	}
	if raw.PhysicalState != nil {
		snap.ZPosition = raw.PhysicalState.Z
	}
	if pd := raw.PrintData; pd != nil {
		if pd.LayerCount != nil {
			count := *pd.LayerCount
			snap.LayerCount = &count
		}
		if pd.UsedMaterial != nil {
			snap.UsedMaterialML = *pd.UsedMaterial
		}
		if fd := pd.FileData; fd != nil && fd.Path != "" {
			snap.Job = &Job{
				Name:             fd.Name,
				Path:             fd.Path,
				LocationCategory: fd.LocationCategory,
			}
		}
	}
	return snap, nil
}

func parseStatus(value string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "idle":
		return StatusIdle, nil
	case "printing":
		return StatusPrinting, nil
	case "paused":
		return StatusPaused, nil
	case "canceled", "cancelled":
		return StatusCanceled, nil
	case "":
		return 0, &ParseError{Field: "status", Reason: "missing"}
	default:
		return 0, &ParseError{Field: "status", Reason: fmt.Sprintf("unknown value %q", value)}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
