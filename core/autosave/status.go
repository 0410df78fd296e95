package autosave

import "time"

// Status is the UI-visible outcome of the latest save attempt. It carries no
// guarantee about the remote store's actual state beyond "last attempt outcome".
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSaving  Status = "saving"
	StatusSaved   Status = "saved"
	StatusError   Status = "error"
	StatusOffline Status = "offline"
)

// State is the read-only status object exposed for display.
type State struct {
	Status    Status     `json:"status"`
	Message   string     `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"` // last successful save
}
