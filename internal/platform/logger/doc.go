// Package logger owns the process-wide structured logger: a JSON slog
// handler on stdout, optionally fanned out to a rotating file sink,
// with level and sinks rebuilt live from the log config section. The
// swap is atomic, so loggers handed out at startup keep working and
// pick up new settings on their next record.
package logger
