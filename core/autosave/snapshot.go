package autosave

// Snapshot is a mapping of form field name to raw value, representing an
// applicant's in-progress application. It is read-only to the autosave core;
// the form layer produces a fresh one on every edit.
type Snapshot map[string]string

func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	c := make(Snapshot, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Equal reports deep structural equality with another snapshot.
// Used purely as a short-circuit to avoid redundant writes.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}
