package models

import (
	"encoding/json"
	"testing"
)

func TestStatusTextRoundTrip(t *testing.T) {
	cases := []Status{
		Waiting(),
		Live(),
		Finished(),
		Stopped(),
		Disconnected(),
		Errored("ingest connection failed"),
	}

	for _, s := range cases {
		parsed := ParseStatus(s.String())
		if parsed != s {
			t.Errorf("round trip changed %+v into %+v", s, parsed)
		}
	}
}

func TestStatusJSONUsesTextForm(t *testing.T) {
	data, err := json.Marshal(Errored("spawn failed"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"error: spawn failed"` {
		t.Errorf("unexpected JSON form: %s", data)
	}

	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if s.Code != StatusError || s.Detail != "spawn failed" {
		t.Errorf("unexpected status after unmarshal: %+v", s)
	}
}

func TestParseStatusUnknownDefaultsToWaiting(t *testing.T) {
	if got := ParseStatus("Sedang Live"); got.Code != StatusWaiting {
		t.Errorf("unknown text should map to waiting, got %s", got.Code)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	if Waiting().IsTerminal() || Live().IsTerminal() {
		t.Error("waiting and live are not terminal")
	}
	for _, s := range []Status{Finished(), Stopped(), Disconnected(), Errored("x")} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestValidateTransition(t *testing.T) {
	valid := [][2]StatusCode{
		{StatusWaiting, StatusLive},
		{StatusLive, StatusFinished},
		{StatusLive, StatusStopped},
		{StatusLive, StatusDisconnected},
		{StatusLive, StatusError},
	}
	for _, tr := range valid {
		if err := ValidateTransition(tr[0], tr[1]); err != nil {
			t.Errorf("%s -> %s should be valid: %v", tr[0], tr[1], err)
		}
	}

	invalid := [][2]StatusCode{
		{StatusWaiting, StatusFinished},
		{StatusWaiting, StatusStopped},
		{StatusFinished, StatusLive},
		{StatusStopped, StatusLive},
		{StatusError, StatusWaiting},
	}
	for _, tr := range invalid {
		if err := ValidateTransition(tr[0], tr[1]); err == nil {
			t.Errorf("%s -> %s should be rejected", tr[0], tr[1])
		}
	}
}

func TestStreamJobValidate(t *testing.T) {
	job := StreamJob{
		VideoPath:      "sample.mp4",
		ScheduledStart: "09:00",
		StreamKey:      "abcd1234",
		Quality:        QualityMedium,
	}
	if err := job.Validate(); err != nil {
		t.Fatalf("valid job rejected: %v", err)
	}

	missingKey := job
	missingKey.StreamKey = " "
	if err := missingKey.Validate(); err == nil {
		t.Error("empty stream key should be rejected")
	}

	badTime := job
	badTime.ScheduledStart = "25:99"
	if err := badTime.Validate(); err == nil {
		t.Error("bad schedule time should be rejected")
	}
}

func TestMaskedKey(t *testing.T) {
	job := StreamJob{StreamKey: "abcd1234"}
	if job.MaskedKey() != "abcd****" {
		t.Errorf("unexpected mask: %s", job.MaskedKey())
	}
	short := StreamJob{StreamKey: "ab"}
	if short.MaskedKey() != "****" {
		t.Errorf("short keys must be fully masked, got %s", short.MaskedKey())
	}
}
