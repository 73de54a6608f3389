package logging

// LogEntry represents a structured log record with fields relevant to
// evolution runs.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Evolution-specific fields
	RunID      string // Identifier of the evolution run
	Generation int    // Generation the entry was emitted in, -1 when unknown

	// General structured data
	Fields map[string]interface{}
}
