package sample

import (
	"log"
	"time"
)

// Phase of a trial.
type Phase int

const (
	Idle Phase = iota
	Running
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// TrialState tracks the current trial.
// A sentinel moves it to Running and it stays there for the rest of the session;
// further sentinels only restart the clock and the baseline.
type TrialState struct {
	Phase     Phase
	StartTime time.Time
	Baseline  float64 // °C
}

// Params holds the physics constants used by the Processor.
type Params struct {
	Mass            float64 // g of water
	SpecificHeat    float64 // J/(g·°C)
	BaselineWindow  float64 // s after a reset during which the baseline follows the filter
	Sentinel        float64 // raw value that starts a trial
	ElapsedSign     float64 // divisor sign; -1 reports cooling as positive power
	InitialBaseline float64 // °C used until the first baseline capture
}

// Result is the outcome of processing one frame.
type Result struct {
	Sample
	Raw   float64 // decoded reading
	Reset bool    // frame was the trial-start sentinel
}

// Processor turns frames into samples.
// It keeps the filter accumulator and the trial state; it is not safe for
// concurrent use and is meant to be driven by a single tick goroutine.
type Processor struct {
	params   Params
	state    TrialState
	filtered float64
}

// NewProcessor creates a Processor in the Idle phase.
func NewProcessor(params Params) *Processor {
	if params.ElapsedSign == 0 {
		params.ElapsedSign = -1
	}
	return &Processor{
		params: params,
		state: TrialState{
			Phase:    Idle,
			Baseline: params.InitialBaseline,
		},
	}
}

// Process decodes a frame received at now and advances the pipeline.
func (p *Processor) Process(frame []byte, now time.Time) (Result, error) {
	raw, err := Decode(frame)
	if err != nil {
		return Result{}, err
	}
	return p.Apply(raw, now), nil
}

// Apply advances the pipeline with an already decoded reading.
func (p *Processor) Apply(raw float64, now time.Time) Result {
	if raw == p.params.Sentinel {
		p.state.Phase = Running
		p.state.StartTime = now
		p.filtered = 0
		return Result{Raw: raw, Reset: true}
	}

	p.filtered = Round2((p.filtered + raw) / 2)
	res := Result{
		Raw: raw,
		Sample: Sample{
			FilteredTemp: p.filtered,
		},
	}

	if p.state.Phase != Running {
		return res
	}

	res.Elapsed = Round2(now.Sub(p.state.StartTime).Seconds())
	if res.Elapsed <= p.params.BaselineWindow {
		p.state.Baseline = p.filtered
	}

	if res.Elapsed == 0 {
		log.Printf("Zero elapsed time at %v, reporting zero power", now)
		return res
	}

	res.Value = CoolingPower(p.filtered, p.state.Baseline, p.params.Mass, p.params.SpecificHeat, res.Elapsed, p.params.ElapsedSign)
	return res
}

// State returns the current trial state.
func (p *Processor) State() TrialState {
	return p.state
}

// Filtered returns the current filter accumulator.
func (p *Processor) Filtered() float64 {
	return p.filtered
}

// CoolingPower computes round((temp-baseline)*mass*c / (elapsed*sign), 2).
// elapsed must not be zero.
func CoolingPower(temp, baseline, mass, specificHeat, elapsed, sign float64) float64 {
	return Round2((temp - baseline) * mass * specificHeat / (elapsed * sign))
}
