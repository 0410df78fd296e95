package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/walimu/core"
)

const (
	defaultDebounceDelay    = 900 * time.Millisecond
	defaultThrottleInterval = 2 * time.Second
	defaultStatusResetDelay = 3 * time.Second
	defaultSessionTTL       = 30 * time.Minute

	saveTimeout = 10 * time.Second
)

type (
	// RemoteClient is the backend's upsert API: insert-or-update keyed by
	// application ID, conflict resolved on the primary key. Autosave writes
	// are always drafts.
	RemoteClient interface {
		Upsert(ctx context.Context, userID, applicationID string, snap Snapshot) error
	}

	// FallbackStore persists the latest snapshot on this node when the remote
	// write cannot be attempted or fails. Best-effort: implementations return
	// errors but the orchestrator only ever logs them.
	FallbackStore interface {
		Write(userID, applicationID string, snap Snapshot) error
		Clear(userID, applicationID string) error
	}

	Config struct {
		DebounceDelay    time.Duration // default 900ms
		ThrottleInterval time.Duration // default 2s
		StatusResetDelay time.Duration // default 3s
		SessionTTL       time.Duration // default 30m; idle sessions older than this are reaped
		Disabled         bool
	}
)

func (c *Config) setDefaults() {
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = defaultDebounceDelay
	}
	if c.ThrottleInterval <= 0 {
		c.ThrottleInterval = defaultThrottleInterval
	}
	if c.StatusResetDelay <= 0 {
		c.StatusResetDelay = defaultStatusResetDelay
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
}

// Orchestrator composes the debounce scheduler, change detector, save
// throttle, connectivity monitor and fallback store into one save pipeline
// for a single (user, application) editing session.
//
// At most one save attempt is in flight at a time; an edit arriving while a
// save is in flight does not cancel it and is picked up by a later debounce
// cycle, since the change detector compares against the pre-save snapshot.
type Orchestrator struct {
	userID        string
	applicationID string
	conf          Config

	remote   RemoteClient
	fallback FallbackStore
	monitor  *Monitor
	logger   core.Logger

	deb *debouncer
	thr *throttle

	mu          sync.Mutex
	inFlight    bool
	lastSaved   Snapshot // last persisted snapshot; change-detection baseline
	state       State
	resetTimer  *time.Timer
	closed      bool
	unsubscribe func()

	nowFunc func() time.Time // mockable
}

func NewOrchestrator(
	userID, applicationID string,
	remote RemoteClient,
	fallback FallbackStore,
	monitor *Monitor,
	logger core.Logger,
	conf Config,
) *Orchestrator {
	conf.setDefaults()
	o := &Orchestrator{
		userID:        userID,
		applicationID: applicationID,
		conf:          conf,
		remote:        remote,
		fallback:      fallback,
		monitor:       monitor,
		logger:        logger,
		deb:           newDebouncer(conf.DebounceDelay),
		thr:           newThrottle(conf.ThrottleInterval),
		state:         State{Status: StatusIdle},
		nowFunc:       time.Now,
	}
	o.unsubscribe = monitor.Subscribe(func(online bool) {
		o.logger.Debug("autosave: connectivity transition", map[string]interface{}{
			"application": o.applicationID, "online": online,
		})
	})
	return o
}

// Trigger feeds one form edit into the pipeline. The snapshot current at the
// end of the quiet period is the one that gets saved.
func (o *Orchestrator) Trigger(snap Snapshot) {
	if !o.enabled() {
		return
	}
	snap = snap.Clone()
	o.deb.Trigger(func() { o.save(snap) })
}

// State returns the current status object, for display only.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Saving() bool { return o.State().Status == StatusSaving }

func (o *Orchestrator) Online() bool { return o.monitor.Online() }

// Close cancels any pending debounced save and the status reset timer, and
// releases the connectivity subscription. The in-flight save, if any, runs to
// completion.
func (o *Orchestrator) Close() {
	o.deb.Stop()
	o.mu.Lock()
	o.closed = true
	if o.resetTimer != nil {
		o.resetTimer.Stop()
		o.resetTimer = nil
	}
	o.mu.Unlock()
	o.unsubscribe()
}

func (o *Orchestrator) enabled() bool {
	return !o.conf.Disabled && o.userID != "" && o.applicationID != ""
}

// save is the debounce-fire path. All terminating branches clear the in-flight
// flag; failure never propagates past this method.
func (o *Orchestrator) save(snap Snapshot) {
	if !o.enabled() {
		return
	}

	o.mu.Lock()
	if o.closed || o.inFlight {
		o.mu.Unlock()
		return
	}
	if snap.Equal(o.lastSaved) {
		o.mu.Unlock()
		return
	}
	if !o.thr.Allow(o.nowFunc()) {
		o.mu.Unlock()
		o.logger.Debug("autosave: attempt throttled", map[string]interface{}{"application": o.applicationID})
		return
	}
	o.inFlight = true
	o.setStateLocked(State{Status: StatusSaving, Message: "Saving..."}, false)
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	if !o.monitor.Online() {
		o.writeFallback(snap)
		// offline status persists until the next attempt: no auto-reset.
		o.setState(State{Status: StatusOffline, Message: "Offline. Draft kept on this device."}, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := o.remote.Upsert(ctx, o.userID, o.applicationID, snap); err != nil {
		// generic message for the user; details go to the diagnostic channel only
		o.logger.Error("autosave: remote upsert failed", err)
		o.writeFallback(snap)
		o.setState(State{Status: StatusError, Message: "Failed to save"}, true)
		return
	}

	now := o.nowFunc()
	o.mu.Lock()
	o.lastSaved = snap
	o.mu.Unlock()
	o.thr.RecordSuccess(now)

	if err := o.fallback.Clear(o.userID, o.applicationID); err != nil {
		o.logger.Warn("autosave: clearing fallback entry failed", err)
	}
	o.setState(State{Status: StatusSaved, Message: "Saved", Timestamp: &now}, true)
}

func (o *Orchestrator) writeFallback(snap Snapshot) {
	if err := o.fallback.Write(o.userID, o.applicationID, snap); err != nil {
		// the fallback of a fallback: log and swallow
		o.logger.Warn("autosave: fallback write failed", err)
	}
}

func (o *Orchestrator) setState(st State, autoReset bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setStateLocked(st, autoReset)
}

// setStateLocked replaces the single scheduled revert-to-idle action on every
// transition so stale timers cannot clobber a newer status.
func (o *Orchestrator) setStateLocked(st State, autoReset bool) {
	if o.resetTimer != nil {
		o.resetTimer.Stop()
		o.resetTimer = nil
	}
	o.state = st
	if autoReset && !o.closed {
		o.resetTimer = time.AfterFunc(o.conf.StatusResetDelay, func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.state = State{Status: StatusIdle}
		})
	}
}
