package autosave

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeRemote struct {
	mu    sync.Mutex
	err   error
	snaps []Snapshot
}

func (r *fakeRemote) Upsert(_ context.Context, _, _ string, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.snaps = append(r.snaps, snap.Clone())
	return nil
}

func (r *fakeRemote) calls() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

type fakeFallback struct {
	mu     sync.Mutex
	err    error
	writes []Snapshot
	clears int
}

func (f *fakeFallback) Write(_, _ string, snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, snap.Clone())
	return nil
}

func (f *fakeFallback) Clear(_, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeFallback) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeFallback) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

var testConf = Config{
	DebounceDelay:    30 * time.Millisecond,
	ThrottleInterval: 150 * time.Millisecond,
	StatusResetDelay: 50 * time.Millisecond,
}

func newTestOrchestrator(remote *fakeRemote, fallback *fakeFallback, online bool) *Orchestrator {
	return NewOrchestrator("usr1", "app1", remote, fallback, NewMonitor(online), nopLogger{}, testConf)
}

func Test_Orchestrator_debounceCoalescesEdits(t *testing.T) {
	remote := &fakeRemote{}
	o := newTestOrchestrator(remote, &fakeFallback{}, true)
	defer o.Close()

	// edits arriving faster than the debounce delay: one save, final content
	o.Trigger(Snapshot{"full_name": "A"})
	time.Sleep(5 * time.Millisecond)
	o.Trigger(Snapshot{"full_name": "Ab"})
	time.Sleep(5 * time.Millisecond)
	o.Trigger(Snapshot{"full_name": "Abc"})

	time.Sleep(4 * testConf.DebounceDelay)

	calls := remote.calls()
	if len(calls) != 1 {
		t.Fatalf("saves = %d; want 1", len(calls))
	}
	assert.Equal(t, Snapshot{"full_name": "Abc"}, calls[0])
	assert.Equal(t, StatusSaved, o.State().Status)
}

func Test_Orchestrator_noSaveWithoutChange(t *testing.T) {
	remote := &fakeRemote{}
	o := newTestOrchestrator(remote, &fakeFallback{}, true)
	defer o.Close()

	snap := Snapshot{"full_name": "Jane", "city": "Goma"}
	o.lastSaved = snap.Clone() // baseline from a prior save

	o.Trigger(snap.Clone())
	time.Sleep(3 * testConf.DebounceDelay)

	if n := len(remote.calls()); n != 0 {
		t.Errorf("saves = %d; want 0", n)
	}
	assert.Equal(t, StatusIdle, o.State().Status)
}

func Test_Orchestrator_throttleGatesSuccessiveSaves(t *testing.T) {
	remote := &fakeRemote{}
	o := newTestOrchestrator(remote, &fakeFallback{}, true)
	defer o.Close()

	o.Trigger(Snapshot{"bio": "v1"})
	time.Sleep(3 * testConf.DebounceDelay)
	if n := len(remote.calls()); n != 1 {
		t.Fatalf("saves = %d; want 1", n)
	}

	// second attempt lands inside the throttle window: no-op
	o.Trigger(Snapshot{"bio": "v2"})
	time.Sleep(3 * testConf.DebounceDelay)
	if n := len(remote.calls()); n != 1 {
		t.Fatalf("throttled attempt went through; saves = %d, want 1", n)
	}

	// once both windows clear, the next edit saves
	time.Sleep(testConf.ThrottleInterval)
	o.Trigger(Snapshot{"bio": "v3"})
	time.Sleep(3 * testConf.DebounceDelay)
	calls := remote.calls()
	if len(calls) != 2 {
		t.Fatalf("saves = %d; want 2", len(calls))
	}
	assert.Equal(t, Snapshot{"bio": "v3"}, calls[1])
}

func Test_Orchestrator_offlineUsesFallback(t *testing.T) {
	remote := &fakeRemote{}
	fallback := &fakeFallback{}
	o := newTestOrchestrator(remote, fallback, false /* offline */)
	defer o.Close()

	o.Trigger(Snapshot{"city": "Bukavu"})
	time.Sleep(3 * testConf.DebounceDelay)

	if n := len(remote.calls()); n != 0 {
		t.Errorf("remote invoked while offline; calls = %d", n)
	}
	if n := fallback.writeCount(); n != 1 {
		t.Errorf("fallback writes = %d; want 1", n)
	}
	assert.Equal(t, StatusOffline, o.State().Status)

	// offline status has no auto-reset: it persists past the display interval
	time.Sleep(3 * testConf.StatusResetDelay)
	assert.Equal(t, StatusOffline, o.State().Status)
}

func Test_Orchestrator_remoteFailureFallsBack(t *testing.T) {
	remote := &fakeRemote{err: errors.New("upsert: connection refused")}
	fallback := &fakeFallback{}
	o := newTestOrchestrator(remote, fallback, true)
	defer o.Close()

	o.Trigger(Snapshot{"city": "Kinshasa"})
	time.Sleep(3 * testConf.DebounceDelay)

	if n := fallback.writeCount(); n != 1 {
		t.Errorf("fallback writes = %d; want 1", n)
	}
	assert.Equal(t, StatusError, o.State().Status)
	assert.Equal(t, "Failed to save", o.State().Message)

	// error status auto-resets to idle
	time.Sleep(3 * testConf.StatusResetDelay)
	assert.Equal(t, StatusIdle, o.State().Status)
}

func Test_Orchestrator_successClearsFallback(t *testing.T) {
	remote := &fakeRemote{}
	fallback := &fakeFallback{}
	o := newTestOrchestrator(remote, fallback, true)
	defer o.Close()

	o.Trigger(Snapshot{"subjects": "math, physics"})
	time.Sleep(3 * testConf.DebounceDelay)

	st := o.State()
	assert.Equal(t, StatusSaved, st.Status)
	if st.Timestamp == nil || st.Timestamp.IsZero() {
		t.Error("saved status missing timestamp")
	}
	if n := fallback.clearCount(); n != 1 {
		t.Errorf("fallback clears = %d; want 1", n)
	}

	// baseline updated: the same snapshot does not save again
	time.Sleep(testConf.ThrottleInterval)
	o.Trigger(Snapshot{"subjects": "math, physics"})
	time.Sleep(3 * testConf.DebounceDelay)
	if n := len(remote.calls()); n != 1 {
		t.Errorf("saves = %d; want 1", n)
	}
}

func Test_Orchestrator_closeCancelsPendingSave(t *testing.T) {
	remote := &fakeRemote{}
	o := newTestOrchestrator(remote, &fakeFallback{}, true)

	o.Trigger(Snapshot{"bio": "half-typed"})
	o.Close()
	time.Sleep(3 * testConf.DebounceDelay)

	if n := len(remote.calls()); n != 0 {
		t.Errorf("save ran after Close; calls = %d", n)
	}
}

func Test_Orchestrator_disabledPipeline(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		appID  string
		conf   Config
	}{
		{name: "disabled", userID: "usr1", appID: "app1", conf: Config{Disabled: true, DebounceDelay: testConf.DebounceDelay}},
		{name: "missing userID", appID: "app1", conf: testConf},
		{name: "missing applicationID", userID: "usr1", conf: testConf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &fakeRemote{}
			o := NewOrchestrator(tt.userID, tt.appID, remote, &fakeFallback{}, NewMonitor(true), nopLogger{}, tt.conf)
			defer o.Close()

			o.Trigger(Snapshot{"bio": "x"})
			time.Sleep(3 * testConf.DebounceDelay)

			if n := len(remote.calls()); n != 0 {
				t.Errorf("saves = %d; want 0", n)
			}
			assert.Equal(t, StatusIdle, o.State().Status)
		})
	}
}

func Test_Orchestrator_fallbackFailureIsSwallowed(t *testing.T) {
	remote := &fakeRemote{err: errors.New("boom")}
	fallback := &fakeFallback{err: errors.New("quota exceeded")}
	o := newTestOrchestrator(remote, fallback, true)
	defer o.Close()

	o.Trigger(Snapshot{"bio": "x"})
	time.Sleep(3 * testConf.DebounceDelay)

	// local-fallback failure must not crash the pipeline nor change the status
	assert.Equal(t, StatusError, o.State().Status)
}

// Test_Orchestrator_timingScenario walks the documented interaction of
// debounce and throttle windows: edits A then B produce one save with B;
// an edit C debounce-fired inside the throttle window is a no-op; C is only
// persisted by a later edit once both windows have cleared.
func Test_Orchestrator_timingScenario(t *testing.T) {
	remote := &fakeRemote{}
	o := newTestOrchestrator(remote, &fakeFallback{}, true)
	defer o.Close()

	d := testConf.DebounceDelay

	o.Trigger(Snapshot{"bio": "A"})
	time.Sleep(d / 3)
	o.Trigger(Snapshot{"bio": "B"}) // supersedes A within the quiet period
	time.Sleep(3 * d)

	calls := remote.calls()
	if len(calls) != 1 {
		t.Fatalf("saves = %d; want 1", len(calls))
	}
	assert.Equal(t, Snapshot{"bio": "B"}, calls[0])

	// C fires while still inside the throttle window: rejected
	o.Trigger(Snapshot{"bio": "C"})
	time.Sleep(3 * d)
	if n := len(remote.calls()); n != 1 {
		t.Fatalf("throttled save went through; saves = %d", n)
	}

	// next debounce fire after both windows clear persists C
	time.Sleep(testConf.ThrottleInterval)
	o.Trigger(Snapshot{"bio": "C"})
	time.Sleep(3 * d)
	calls = remote.calls()
	if len(calls) != 2 {
		t.Fatalf("saves = %d; want 2", len(calls))
	}
	assert.Equal(t, Snapshot{"bio": "C"}, calls[1])
}
