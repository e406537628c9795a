package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mattjoyce/relaybus/internal/severity"
)

// Wire envelopes are flat JSON objects: a kind discriminator, kind-specific
// fields, and a millisecond unix timestamp. Severity travels as its numeric
// wire code, independent of how either side labels it.

type logEnvelope struct {
	Kind      string `json:"kind"`
	ID        string `json:"id,omitempty"`
	Level     int    `json:"level"`
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
	Source    string `json:"source,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type pingEnvelope struct {
	Kind      string `json:"kind"`
	ID        string `json:"id,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type reloadEnvelope struct {
	Kind      string `json:"kind"`
	ID        string `json:"id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type exportLogsEnvelope struct {
	Kind      string `json:"kind"`
	ID        string `json:"id,omitempty"`
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp"`
}

type shutdownEnvelope struct {
	Kind      string `json:"kind"`
	ID        string `json:"id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Encode serializes cmd as a single-line JSON envelope.
func Encode(cmd Command) ([]byte, error) {
	ts := cmd.Timestamp().UnixMilli()

	var env any
	switch c := cmd.(type) {
	case Log:
		env = logEnvelope{
			Kind:      string(KindLog),
			ID:        c.ID,
			Level:     c.Level.Code(),
			Message:   c.Message,
			Stack:     c.Stack,
			Source:    c.Source,
			Timestamp: ts,
		}
	case Ping:
		env = pingEnvelope{Kind: string(KindPing), ID: c.ID, Nonce: c.Nonce, Timestamp: ts}
	case Reload:
		env = reloadEnvelope{Kind: string(KindReload), ID: c.ID, Timestamp: ts}
	case ExportLogs:
		env = exportLogsEnvelope{Kind: string(KindExportLogs), ID: c.ID, Path: c.Path, Timestamp: ts}
	case Shutdown:
		env = shutdownEnvelope{Kind: string(KindShutdown), ID: c.ID, Reason: c.Reason, Timestamp: ts}
	default:
		return nil, fmt.Errorf("unsupported command type %T", cmd)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", cmd.CommandKind(), err)
	}
	return data, nil
}

// Decode parses and validates one wire envelope. Malformed input, an unknown
// kind, unexpected fields, or a missing required field all fail here so that
// ambiguous shapes never reach a handler.
func Decode(data []byte) (Command, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("envelope is not valid JSON")
	}

	kindField := gjson.GetBytes(data, "kind")
	if !kindField.Exists() || kindField.Type != gjson.String {
		return nil, fmt.Errorf("envelope missing required field: kind")
	}

	kind := Kind(kindField.String())
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown command kind %q", kind)
	}

	switch kind {
	case KindLog:
		var env logEnvelope
		if err := strictUnmarshal(data, &env); err != nil {
			return nil, err
		}
		if env.Message == "" {
			return nil, fmt.Errorf("log command missing required field: message")
		}
		return Log{
			Meta:    metaFrom(env.ID, env.Timestamp),
			Level:   severity.FromCode(env.Level),
			Message: env.Message,
			Stack:   env.Stack,
			Source:  env.Source,
		}, nil

	case KindPing:
		var env pingEnvelope
		if err := strictUnmarshal(data, &env); err != nil {
			return nil, err
		}
		return Ping{Meta: metaFrom(env.ID, env.Timestamp), Nonce: env.Nonce}, nil

	case KindReload:
		var env reloadEnvelope
		if err := strictUnmarshal(data, &env); err != nil {
			return nil, err
		}
		return Reload{Meta: metaFrom(env.ID, env.Timestamp)}, nil

	case KindExportLogs:
		var env exportLogsEnvelope
		if err := strictUnmarshal(data, &env); err != nil {
			return nil, err
		}
		if env.Path == "" {
			return nil, fmt.Errorf("export-logs command missing required field: path")
		}
		return ExportLogs{Meta: metaFrom(env.ID, env.Timestamp), Path: env.Path}, nil

	case KindShutdown:
		var env shutdownEnvelope
		if err := strictUnmarshal(data, &env); err != nil {
			return nil, err
		}
		return Shutdown{Meta: metaFrom(env.ID, env.Timestamp), Reason: env.Reason}, nil
	}

	return nil, fmt.Errorf("unknown command kind %q", kind)
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	return nil
}

func metaFrom(id string, tsMillis int64) Meta {
	m := Meta{ID: id}
	if tsMillis > 0 {
		m.At = time.UnixMilli(tsMillis).UTC()
	} else {
		m.At = time.Now().UTC()
	}
	return m
}
