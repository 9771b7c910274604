package models

import (
	"encoding/json"
	"strings"
)

// StatusCode identifies a stream job state.
type StatusCode string

const (
	StatusWaiting      StatusCode = "waiting"
	StatusLive         StatusCode = "live"
	StatusFinished     StatusCode = "finished"
	StatusStopped      StatusCode = "stopped"
	StatusDisconnected StatusCode = "disconnected"
	StatusError        StatusCode = "error"
)

// Status is the tagged in-memory form of a job state. Errors carry the
// triggering detail. At the persistence boundary it serializes to plain
// text ("error: <detail>") for compatibility with the flat-file layout.
type Status struct {
	Code   StatusCode
	Detail string
}

func Waiting() Status              { return Status{Code: StatusWaiting} }
func Live() Status                 { return Status{Code: StatusLive} }
func Finished() Status             { return Status{Code: StatusFinished} }
func Stopped() Status              { return Status{Code: StatusStopped} }
func Disconnected() Status         { return Status{Code: StatusDisconnected} }
func Errored(detail string) Status { return Status{Code: StatusError, Detail: detail} }

func (s Status) String() string {
	if s.Code == StatusError && s.Detail != "" {
		return string(StatusError) + ": " + s.Detail
	}
	return string(s.Code)
}

// IsTerminal reports whether the state admits no further transitions.
// Terminal jobs are removable by the operator.
func (s Status) IsTerminal() bool {
	switch s.Code {
	case StatusFinished, StatusStopped, StatusDisconnected, StatusError:
		return true
	}
	return false
}

// ParseStatus converts the persisted text form back to a Status. Unknown
// text maps to waiting so a hand-edited catalog stays loadable.
func ParseStatus(text string) Status {
	text = strings.TrimSpace(text)
	if detail, ok := strings.CutPrefix(text, string(StatusError)+":"); ok {
		return Errored(strings.TrimSpace(detail))
	}
	switch StatusCode(text) {
	case StatusWaiting, StatusLive, StatusFinished, StatusStopped, StatusDisconnected, StatusError:
		return Status{Code: StatusCode(text)}
	}
	return Waiting()
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	*s = ParseStatus(text)
	return nil
}
