package alert

import (
	"log/slog"
	"testing"

	"github.com/vigilcam/vigil-agent/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		DetectionSeconds:  2,
		SecsBetweenAlerts: 9,
		VideoLengthSecs:   6,
	}
}

func TestMachine_TriggersAfterDetectionWindow(t *testing.T) {
	m := New(testConfig(), slog.Default())

	// Motion begins at t=10 and persists at 2 fps.
	var trigger Trigger
	var fired bool
	for ts := 10.0; ts <= 13.0; ts += 0.5 {
		trigger, fired = m.Update(ts, true)
		if fired {
			break
		}
	}

	if !fired {
		t.Fatal("machine never triggered")
	}
	if trigger.Time != 12 {
		t.Errorf("trigger.Time = %g, want 12", trigger.Time)
	}
	if trigger.Onset != 10 {
		t.Errorf("trigger.Onset = %g, want 10", trigger.Onset)
	}
	if m.State() != StateCooldown {
		t.Errorf("state after trigger = %v, want cooldown", m.State())
	}
}

func TestMachine_FalseAlarmRevertsToIdle(t *testing.T) {
	m := New(testConfig(), slog.Default())

	m.Update(10.0, true)
	if m.State() != StateConfirming {
		t.Fatalf("state = %v, want confirming", m.State())
	}

	// Motion ceases before the 2s detection window elapses.
	if _, fired := m.Update(11.0, false); fired {
		t.Error("false alarm must not trigger")
	}
	if m.State() != StateIdle {
		t.Errorf("state = %v, want idle", m.State())
	}
	if m.Session() != (Session{}) {
		t.Errorf("session not destroyed: %+v", m.Session())
	}
}

func TestMachine_CooldownSuppressesRetrigger(t *testing.T) {
	m := New(testConfig(), slog.Default())

	for ts := 10.0; ts <= 12.0; ts += 0.5 {
		m.Update(ts, true)
	}
	if m.State() != StateCooldown {
		t.Fatalf("state = %v, want cooldown", m.State())
	}

	// Continuous motion throughout the 9s cooldown never re-triggers.
	for ts := 12.5; ts < 21.0; ts += 0.5 {
		if _, fired := m.Update(ts, true); fired {
			t.Fatalf("re-triggered at t=%g within cooldown", ts)
		}
	}

	// Once the cooldown has elapsed, sustained motion triggers again.
	var fired bool
	var trigger Trigger
	for ts := 21.0; ts <= 24.0; ts += 0.5 {
		trigger, fired = m.Update(ts, true)
		if fired {
			break
		}
	}
	if !fired {
		t.Fatal("machine never re-triggered after cooldown")
	}
	if trigger.Onset != 21 {
		t.Errorf("second trigger onset = %g, want 21", trigger.Onset)
	}
}

func TestMachine_CooldownExpiresWithoutMotion(t *testing.T) {
	m := New(testConfig(), slog.Default())

	for ts := 10.0; ts <= 12.0; ts += 0.5 {
		m.Update(ts, true)
	}

	m.Update(22.0, false)
	if m.State() != StateIdle {
		t.Errorf("state = %v, want idle after cooldown without motion", m.State())
	}
}

func TestMachine_NonMonotonicTimestampDropped(t *testing.T) {
	m := New(testConfig(), slog.Default())

	m.Update(10.0, true)
	state := m.State()

	// A frame that travels back in time is discarded without a transition.
	if _, fired := m.Update(9.0, false); fired {
		t.Error("corrupt frame must not trigger")
	}
	if m.State() != state {
		t.Errorf("state changed on corrupt frame: %v -> %v", state, m.State())
	}

	// The stream resumes where it left off.
	m.Update(11.9, true)
	if _, fired := m.Update(12.0, true); !fired {
		t.Error("machine should trigger once the detection window elapses")
	}
}
