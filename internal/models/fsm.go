package models

import "fmt"

// validTransitions maps from-state to allowed to-states
var validTransitions = map[StatusCode]map[StatusCode]bool{
	StatusWaiting: {
		StatusLive: true, // Waiting → Live (explicit start or schedule sweep)
	},
	StatusLive: {
		StatusFinished:     true, // Live → Finished (encoder exited, marker "completed")
		StatusStopped:      true, // Live → Stopped (operator stop)
		StatusDisconnected: true, // Live → Disconnected (process vanished, no marker)
		StatusError:        true, // Live → Error (spawn/ingest failure)
	},
	// Terminal states (no transitions allowed; operators re-add a fresh job)
	StatusFinished:     {},
	StatusStopped:      {},
	StatusDisconnected: {},
	StatusError:        {},
}

// ValidateTransition checks if a state transition is valid.
func ValidateTransition(from, to StatusCode) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}
