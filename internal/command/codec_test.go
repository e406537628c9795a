package command

import (
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/relaybus/internal/severity"
)

func TestEncodeLogWireShape(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cmd := Log{
		Meta:    Meta{ID: "abc", At: at},
		Level:   severity.Error,
		Message: "disk failure",
		Stack:   "at X",
		Source:  "FileLoader",
	}

	data, err := Encode(cmd)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got := string(data)
	for _, want := range []string{
		`"kind":"log"`,
		`"level":8`,
		`"message":"disk failure"`,
		`"stack":"at X"`,
		`"source":"FileLoader"`,
		`"timestamp":1709294400000`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("envelope missing %s: %s", want, got)
		}
	}
}

func TestDecodeLog(t *testing.T) {
	data := []byte(`{"kind":"log","level":1000,"message":"boom","timestamp":1709294400000}`)

	cmd, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	lc, ok := cmd.(Log)
	if !ok {
		t.Fatalf("decoded %T, want Log", cmd)
	}
	if lc.Level != severity.Fatal {
		t.Errorf("level = %s, want FATAL", lc.Level)
	}
	if lc.Message != "boom" {
		t.Errorf("message = %q", lc.Message)
	}
	if !lc.Timestamp().Equal(time.UnixMilli(1709294400000).UTC()) {
		t.Errorf("timestamp = %v", lc.Timestamp())
	}
}

func TestDecodeUnrecognizedLevelFallsBackToInfo(t *testing.T) {
	data := []byte(`{"kind":"log","level":999,"message":"m","timestamp":1}`)
	cmd, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if lc := cmd.(Log); lc.Level != severity.Info {
		t.Errorf("level = %s, want INFO", lc.Level)
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"not json":      `{kind: log}`,
		"missing kind":  `{"level":4,"message":"m"}`,
		"unknown kind":  `{"kind":"teleport","timestamp":1}`,
		"extra field":   `{"kind":"ping","timestamp":1,"payload":"x"}`,
		"empty message": `{"kind":"log","level":4,"message":"","timestamp":1}`,
		"missing path":  `{"kind":"export-logs","timestamp":1}`,
	}

	for name, in := range cases {
		if _, err := Decode([]byte(in)); err == nil {
			t.Errorf("%s: Decode accepted %s", name, in)
		}
	}
}

func TestRoundTripAllKinds(t *testing.T) {
	cmds := []Command{
		Log{Meta: NewMeta(), Level: severity.Warn, Message: "w"},
		Ping{Meta: NewMeta(), Nonce: "n1"},
		Reload{Meta: NewMeta()},
		ExportLogs{Meta: NewMeta(), Path: "/tmp/out.log"},
		Shutdown{Meta: NewMeta(), Reason: "upgrade"},
	}

	for _, cmd := range cmds {
		data, err := Encode(cmd)
		if err != nil {
			t.Fatalf("Encode %s: %v", cmd.CommandKind(), err)
		}
		back, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode %s: %v", cmd.CommandKind(), err)
		}
		if back.CommandKind() != cmd.CommandKind() {
			t.Errorf("round trip kind = %s, want %s", back.CommandKind(), cmd.CommandKind())
		}
		if back.CommandID() != cmd.CommandID() {
			t.Errorf("round trip id = %s, want %s", back.CommandID(), cmd.CommandID())
		}
	}
}

func TestKindsClosedSet(t *testing.T) {
	for _, k := range Kinds() {
		if !k.Valid() {
			t.Errorf("kind %q not valid", k)
		}
	}
	if Kind("teleport").Valid() {
		t.Error("unknown kind reported valid")
	}
}
