package logstore

import (
	"encoding/json"
	"fmt"
	"io"
)

// exportTimeFormat is ISO-8601 with millisecond precision, matching what the
// log viewer already parses. Changing it breaks that consumer.
const exportTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Export writes entries in the viewer interchange format:
//
//	[<timestamp>] [<SEVERITY>] [<source>] <message>
//	<raw stack trace>
//	Context: <indented JSON>
//
// The [<source>] segment is omitted when the entry has none; stack and
// context blocks appear only when present; entries are separated by one
// blank line.
func Export(w io.Writer, entries []Entry) error {
	for i, e := range entries {
		if i > 0 {
			if _, err := fmt.Fprint(w, "\n"); err != nil {
				return fmt.Errorf("write separator: %w", err)
			}
		}
		if err := exportEntry(w, e); err != nil {
			return err
		}
	}
	return nil
}

func exportEntry(w io.Writer, e Entry) error {
	ts := e.At.UTC().Format(exportTimeFormat)

	var err error
	if e.Source != "" {
		_, err = fmt.Fprintf(w, "[%s] [%s] [%s] %s\n", ts, e.Level, e.Source, e.Message)
	} else {
		_, err = fmt.Fprintf(w, "[%s] [%s] %s\n", ts, e.Level, e.Message)
	}
	if err != nil {
		return fmt.Errorf("write entry %d: %w", e.ID, err)
	}

	if e.Stack != "" {
		if _, err := fmt.Fprintf(w, "%s\n", e.Stack); err != nil {
			return fmt.Errorf("write stack for entry %d: %w", e.ID, err)
		}
	}

	if len(e.Context) > 0 {
		data, err := json.MarshalIndent(e.Context, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal context for entry %d: %w", e.ID, err)
		}
		if _, err := fmt.Fprintf(w, "Context: %s\n", data); err != nil {
			return fmt.Errorf("write context for entry %d: %w", e.ID, err)
		}
	}
	return nil
}
