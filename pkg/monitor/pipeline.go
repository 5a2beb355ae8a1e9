package monitor

import (
	"log/slog"
	"time"

	"github.com/roadguard/go-roadguard/internal/log"
	"github.com/roadguard/go-roadguard/pkg/detection"
	"github.com/roadguard/go-roadguard/pkg/extract"
	"github.com/roadguard/go-roadguard/pkg/latch"
	"gocv.io/x/gocv"
)

// Extractor produces the per-frame signal.
type Extractor interface {
	Extract(frame gocv.Mat) extract.Signal
}

// ConditionReport is one condition's transition on one frame.
type ConditionReport struct {
	Name     string        `json:"name"`
	Kind     latch.Kind    `json:"kind"`
	Duration time.Duration `json:"-"`
	Seconds  float64       `json:"seconds"`
	Active   bool          `json:"active"`
}

// Occurrence is a finished run of an active condition that crossed its
// threshold.
type Occurrence struct {
	Condition string
	StartedAt time.Time
	// Duration as of the last active sample
	Duration time.Duration
	Emit     bool
}

// Report is the outcome of one frame.
type Report struct {
	Seq        uint64               `json:"seq"`
	At         time.Time            `json:"at"`
	Face       *detection.Detection `json:"face,omitempty"`
	EAR        *float64             `json:"ear,omitempty"`
	Conditions []ConditionReport    `json:"conditions"`

	// Exceeded lists conditions that crossed their threshold for the
	// first time in the current occurrence on this frame.
	Exceeded []string `json:"-"`
	// Finished lists occurrences that ended on this frame.
	Finished []Occurrence `json:"-"`
}

// Condition returns the report for the named condition.
func (r *Report) Condition(name string) (ConditionReport, bool) {
	for _, c := range r.Conditions {
		if c.Name == name {
			return c, true
		}
	}
	return ConditionReport{}, false
}

// Alerting returns the conditions currently past their threshold.
func (r *Report) Alerting() []string {
	var out []string
	for _, c := range r.Conditions {
		if c.Kind == latch.ThresholdExceeded {
			out = append(out, c.Name)
		}
	}
	return out
}

type occurrence struct {
	startedAt time.Time
	last      time.Duration
	exceeded  bool
}

// Pipeline runs extraction and one latch per condition. It is owned by a
// single goroutine.
type Pipeline struct {
	extractor Extractor
	conds     []Condition
	latches   []*latch.Latch
	occ       []occurrence
	seq       uint64
	logger    *slog.Logger
}

// NewPipeline creates a pipeline. No conditions means DefaultConditions.
func NewPipeline(ex Extractor, conds []Condition) *Pipeline {
	if len(conds) == 0 {
		conds = DefaultConditions()
	}

	p := &Pipeline{
		extractor: ex,
		conds:     conds,
		latches:   make([]*latch.Latch, len(conds)),
		occ:       make([]occurrence, len(conds)),
		logger:    log.Component("pipeline"),
	}
	for i, c := range conds {
		p.latches[i] = latch.New(latch.Config{Name: c.Name, Threshold: c.Threshold, Inclusive: c.Inclusive})
	}
	return p
}

// Conditions returns the configured conditions.
func (p *Pipeline) Conditions() []Condition {
	return p.conds
}

// Emits reports whether the named condition produces events.
func (p *Pipeline) Emits(name string) bool {
	for _, c := range p.conds {
		if c.Name == name {
			return c.Emit
		}
	}
	return false
}

// Process extracts signals from frame and advances every latch.
func (p *Pipeline) Process(frame gocv.Mat, at time.Time) Report {
	return p.Step(p.extractor.Extract(frame), at)
}

// Step advances every latch with an already extracted signal.
func (p *Pipeline) Step(sig extract.Signal, at time.Time) Report {
	p.seq++
	r := Report{
		Seq:        p.seq,
		At:         at,
		Face:       sig.Face,
		Conditions: make([]ConditionReport, len(p.conds)),
	}
	if v, ok := sig.EAR(); ok {
		r.EAR = &v
	}

	for i, c := range p.conds {
		active := c.Active(sig)
		tr := p.latches[i].Update(at, active)
		r.Conditions[i] = ConditionReport{
			Name:     c.Name,
			Kind:     tr.Kind,
			Duration: tr.Duration,
			Seconds:  tr.Duration.Seconds(),
			Active:   active,
		}

		o := &p.occ[i]
		switch tr.Kind {
		case latch.Started:
			*o = occurrence{startedAt: at}
			p.logger.Info("condition started", "condition", c.Name)

		case latch.Sustained:
			o.last = tr.Duration
			p.logger.Debug("condition sustained", "condition", c.Name, "seconds", tr.Duration.Seconds())

		case latch.ThresholdExceeded:
			o.last = tr.Duration
			if !o.exceeded {
				o.exceeded = true
				r.Exceeded = append(r.Exceeded, c.Name)
				p.logger.Warn("condition threshold exceeded", "condition", c.Name, "seconds", tr.Duration.Seconds())
			}

		case latch.Ended:
			p.logger.Info("condition ended", "condition", c.Name, "seconds", tr.Duration.Seconds(), "exceeded", o.exceeded)
			if o.exceeded {
				r.Finished = append(r.Finished, Occurrence{
					Condition: c.Name,
					StartedAt: o.startedAt,
					Duration:  tr.Duration,
					Emit:      c.Emit,
				})
			}
			*o = occurrence{}
		}
	}
	return r
}

// Flush ends every active occurrence and returns those that crossed
// their threshold. Used at shutdown.
func (p *Pipeline) Flush() []Occurrence {
	var out []Occurrence
	for i, c := range p.conds {
		if !p.latches[i].State().Active {
			continue
		}
		if o := p.occ[i]; o.exceeded {
			out = append(out, Occurrence{
				Condition: c.Name,
				StartedAt: o.startedAt,
				Duration:  o.last,
				Emit:      c.Emit,
			})
		}
		p.latches[i].Reset()
		p.occ[i] = occurrence{}
	}
	return out
}

// States returns a snapshot of every latch.
func (p *Pipeline) States() map[string]latch.State {
	out := make(map[string]latch.State, len(p.conds))
	for i, c := range p.conds {
		out[c.Name] = p.latches[i].State()
	}
	return out
}
