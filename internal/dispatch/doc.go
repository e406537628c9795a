// Package dispatch resolves inbound commands to registered handlers and
// isolates their failures.
//
// Resolution is a single pass: look up the handler for the command's kind,
// invoke it, and absorb whatever goes wrong. An unregistered kind produces a
// WARN log entry; a handler error, panic, or failed Future produces an ERROR
// entry. The failing command is dropped, never retried, and the registry
// stays usable.
//
// Two rules keep logging from feeding back into itself:
//   - log commands bypass the registry entirely and are only forwarded on
//     the outbound channel, so a relayed entry can never be re-dispatched
//   - the log store's own relay failures are swallowed without producing
//     an entry (see logstore)
package dispatch
