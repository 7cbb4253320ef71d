package supervisor

// Status reports whether the supervised server is running. PID and Port
// are non-nil exactly when Running is true.
type Status struct {
	Running bool `json:"running"`
	PID     *int `json:"pid"`
	Port    *int `json:"port"`
}

// clone returns a copy that shares no pointers with the receiver, so a
// snapshot handed to a caller cannot observe later mutations.
func (s Status) clone() Status {
	out := Status{Running: s.Running}
	if s.PID != nil {
		pid := *s.PID
		out.PID = &pid
	}
	if s.Port != nil {
		port := *s.Port
		out.Port = &port
	}
	return out
}

func intPtr(v int) *int { return &v }
