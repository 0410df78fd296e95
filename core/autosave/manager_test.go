package autosave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestManager(conf Config) *Manager {
	return NewManager(&fakeRemote{}, &fakeFallback{}, NewMonitor(true), nopLogger{}, conf)
}

func Test_Manager_sessionPerUserAndApplication(t *testing.T) {
	m := newTestManager(testConf)
	defer m.Close()

	o1 := m.Session("usr1", "app1")
	o2 := m.Session("usr1", "app1")
	o3 := m.Session("usr2", "app2")

	if o1 != o2 {
		t.Error("same (user, application) must share one orchestrator")
	}
	if o1 == o3 {
		t.Error("distinct sessions must not share an orchestrator")
	}
	assert.Equal(t, 2, m.ActiveSessions())

	m.EndSession("usr1", "app1")
	assert.Equal(t, 1, m.ActiveSessions())
}

func Test_Manager_reapsIdleSessions(t *testing.T) {
	conf := testConf
	conf.SessionTTL = 40 * time.Millisecond
	m := newTestManager(conf)
	defer m.Close()

	o := m.Session("usr1", "app1")
	assert.Equal(t, 1, m.ActiveSessions())

	// a walked-away editor gets reaped once the TTL passes
	deadline := time.Now().Add(2 * time.Second)
	for m.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sessions = %d; idle session never reaped", m.ActiveSessions())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// the evicted orchestrator is closed: triggers are dropped
	remote := o.remote.(*fakeRemote)
	o.Trigger(Snapshot{"bio": "late edit"})
	time.Sleep(3 * testConf.DebounceDelay)
	if n := len(remote.calls()); n != 0 {
		t.Errorf("saves = %d; want 0 after eviction", n)
	}
}

func Test_Manager_activityKeepsSessionAlive(t *testing.T) {
	conf := testConf
	conf.SessionTTL = 60 * time.Millisecond
	m := newTestManager(conf)
	defer m.Close()

	m.Session("usr1", "app1")
	for i := 0; i < 8; i++ {
		time.Sleep(20 * time.Millisecond)
		m.Session("usr1", "app1") // each touch refreshes the idle clock
	}
	assert.Equal(t, 1, m.ActiveSessions())
}

func Test_Manager_closeIsIdempotent(t *testing.T) {
	m := newTestManager(testConf)
	m.Session("usr1", "app1")

	m.Close()
	m.Close()
	assert.Equal(t, 0, m.ActiveSessions())
}
