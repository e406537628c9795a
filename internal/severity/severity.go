// Package severity defines the ordered log severity scale and its numeric
// wire encoding. The numeric codes are part of the cross-process protocol
// and must not change: peers identify levels by code, not by label.
package severity

import "strings"

// Severity classifies a log entry. The zero value is Debug.
type Severity int

const (
	Debug Severity = iota
	Info
	Warn
	Error
	Fatal
)

// Wire codes. The gap between Error and Fatal is deliberate: anything a peer
// sends at 1000 is fatal, intermediate codes have no meaning and fall back
// to Info on decode.
const (
	codeDebug = 2
	codeInfo  = 4
	codeWarn  = 6
	codeError = 8
	codeFatal = 1000
)

var codes = map[Severity]int{
	Debug: codeDebug,
	Info:  codeInfo,
	Warn:  codeWarn,
	Error: codeError,
	Fatal: codeFatal,
}

var fromCode = map[int]Severity{
	codeDebug: Debug,
	codeInfo:  Info,
	codeWarn:  Warn,
	codeError: Error,
	codeFatal: Fatal,
}

var labels = map[Severity]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
	Fatal: "FATAL",
}

// Code returns the numeric wire code for s. Unknown values encode as Info.
func (s Severity) Code() int {
	if c, ok := codes[s]; ok {
		return c
	}
	return codeInfo
}

// String returns the uppercase label used in exports and config.
func (s Severity) String() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return "INFO"
}

// FromCode maps a numeric wire code back to a Severity. The mapping is a
// table lookup, never scaling; codes not in the table resolve to Info.
func FromCode(code int) Severity {
	if s, ok := fromCode[code]; ok {
		return s
	}
	return Info
}

// Parse maps a label (case-insensitive) to a Severity. Unrecognized labels
// resolve to Info, mirroring FromCode.
func Parse(label string) Severity {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "DEBUG":
		return Debug
	case "INFO":
		return Info
	case "WARN", "WARNING":
		return Warn
	case "ERROR":
		return Error
	case "FATAL":
		return Fatal
	default:
		return Info
	}
}
