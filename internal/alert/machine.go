// Package alert decides when confirmed motion becomes a clip-worthy event.
// The state machine is driven by frame capture timestamps, not wall clock,
// so its behavior is deterministic for a given stream.
package alert

import (
	"log/slog"

	"github.com/vigilcam/vigil-agent/internal/config"
)

// State is the alerting phase of the current motion session.
type State int

const (
	StateIdle State = iota
	StateConfirming
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfirming:
		return "confirming"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Session tracks one motion episode. There is at most one live session; it
// is created when motion is first confirmed and destroyed on the return to
// Idle.
type Session struct {
	ConfirmStart float64 // when confirmed motion began (onset)
	TriggerTime  float64 // when the trigger fired, zero until then
	LastAlert    float64 // when the last alert was emitted
}

// Trigger is emitted once per alert. Time anchors the clip window so the
// pre-roll reaches back to the calm just before Onset.
type Trigger struct {
	Time  float64
	Onset float64
}

// Machine consumes per-frame confirmed-motion verdicts and elapsed stream
// time and produces debounced triggers:
//
//	Idle -> Confirming -> (trigger) -> Cooldown -> Idle
//
// Motion that ceases before the detection window elapses is a false alarm
// and reverts to Idle without triggering. During Cooldown all motion is
// ignored until the configured gap since the last alert has passed.
type Machine struct {
	detectionSecs float64
	cooldownSecs  float64
	logger        *slog.Logger

	state     State
	session   Session
	lastAlert float64
	lastTS    float64
	seen      bool
}

// New creates a state machine from the validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *Machine {
	return &Machine{
		detectionSecs: cfg.DetectionSeconds,
		cooldownSecs:  cfg.SecsBetweenAlerts,
		logger:        logger,
		state:         StateIdle,
	}
}

// State returns the current alerting phase.
func (m *Machine) State() State {
	return m.state
}

// Session returns a copy of the live session. Meaningful only outside Idle.
func (m *Machine) Session() Session {
	return m.session
}

// Update folds in one frame's verdict. A non-monotonic timestamp is a
// frame-source fault: the frame is logged and discarded without any state
// transition. The returned bool is true when a trigger fired on this frame.
func (m *Machine) Update(ts float64, confirmed bool) (Trigger, bool) {
	if m.seen && ts < m.lastTS {
		m.logger.Warn("dropping frame with non-monotonic timestamp",
			"timestamp", ts, "last_timestamp", m.lastTS)
		return Trigger{}, false
	}
	m.lastTS = ts
	m.seen = true

	if m.state == StateCooldown {
		if ts-m.lastAlert < m.cooldownSecs {
			return Trigger{}, false
		}
		m.state = StateIdle
		m.session = Session{}
	}

	switch m.state {
	case StateIdle:
		if confirmed {
			m.state = StateConfirming
			m.session = Session{ConfirmStart: ts}
		}

	case StateConfirming:
		if !confirmed {
			// False alarm: motion ceased before the detection window.
			m.state = StateIdle
			m.session = Session{}
			return Trigger{}, false
		}
		if ts-m.session.ConfirmStart >= m.detectionSecs {
			trigger := Trigger{
				Time:  m.session.ConfirmStart + m.detectionSecs,
				Onset: m.session.ConfirmStart,
			}
			m.session.TriggerTime = trigger.Time
			m.session.LastAlert = ts
			m.lastAlert = ts
			m.state = StateCooldown
			return trigger, true
		}
	}

	return Trigger{}, false
}
