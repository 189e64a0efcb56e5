package models

// Readiness is derived from a member set on every mutation and never stored.
type Readiness struct {
	// AnyReady is true iff at least one member is ready.
	AnyReady bool

	// AllReady is true iff every member is ready. An empty set is not all-ready.
	AllReady bool

	// ReadyCount is the number of ready members.
	ReadyCount int
}

// ReadinessOf computes the readiness view of members.
func ReadinessOf(members []GroupMember) Readiness {
	var r Readiness
	for _, m := range members {
		if m.IsReady {
			r.ReadyCount++
		}
	}
	r.AnyReady = r.ReadyCount > 0
	r.AllReady = len(members) > 0 && r.ReadyCount == len(members)
	return r
}
