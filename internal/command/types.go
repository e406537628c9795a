// Package command defines the closed set of messages exchanged between the
// two processes and the wire codec that validates them at the channel
// boundary. Commands are immutable once constructed and carry no delivery
// state: they are fire-and-forget.
package command

import (
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/relaybus/internal/severity"
)

// Kind discriminates command variants. The set is closed: the codec rejects
// anything not listed here before it can reach the dispatcher.
type Kind string

const (
	KindLog        Kind = "log"
	KindPing       Kind = "ping"
	KindReload     Kind = "reload"
	KindExportLogs Kind = "export-logs"
	KindShutdown   Kind = "shutdown"
)

// Kinds returns every dispatchable kind, for exhaustiveness checks.
func Kinds() []Kind {
	return []Kind{KindLog, KindPing, KindReload, KindExportLogs, KindShutdown}
}

// Valid reports whether k is a member of the closed kind set.
func (k Kind) Valid() bool {
	switch k {
	case KindLog, KindPing, KindReload, KindExportLogs, KindShutdown:
		return true
	}
	return false
}

// Command is an immutable kind-tagged message.
type Command interface {
	CommandKind() Kind
	CommandID() string
	Timestamp() time.Time
}

// Meta carries the envelope identity shared by all variants. The ID exists
// for diagnostics only; there is no acknowledgment keyed on it.
type Meta struct {
	ID string
	At time.Time
}

// NewMeta stamps a fresh envelope identity.
func NewMeta() Meta {
	return Meta{ID: uuid.NewString(), At: time.Now().UTC()}
}

func (m Meta) CommandID() string    { return m.ID }
func (m Meta) Timestamp() time.Time { return m.At }

// Log is the relay form of a log entry. It is never dispatched to a handler;
// the dispatcher forwards it outbound unconditionally.
type Log struct {
	Meta
	Level   severity.Severity
	Message string
	Stack   string
	Source  string
}

func (Log) CommandKind() Kind { return KindLog }

// Ping asks the peer to prove liveness.
type Ping struct {
	Meta
	Nonce string
}

func (Ping) CommandKind() Kind { return KindPing }

// Reload asks the receiving process to re-read its configuration.
type Reload struct {
	Meta
}

func (Reload) CommandKind() Kind { return KindReload }

// ExportLogs asks the receiving process to write its log export to a path.
type ExportLogs struct {
	Meta
	Path string
}

func (ExportLogs) CommandKind() Kind { return KindExportLogs }

// Shutdown asks the receiving process to exit cleanly.
type Shutdown struct {
	Meta
	Reason string
}

func (Shutdown) CommandKind() Kind { return KindShutdown }
