package log

import "log/slog"

// LevelTrace is a custom trace level (more verbose than debug).
const LevelTrace = slog.Level(-8)

// Verbosity level constants for documentation and reference.
const (
	VerbosityError = 0 // Errors only (quiet)
	VerbosityWarn  = 1 // + Warnings (failed batches, unattributed outputs)
	VerbosityInfo  = 2 // + Info (sources scanned, change summary, batches)
	VerbosityDebug = 3 // + Debug (per-asset decisions, tool output)
	VerbosityTrace = 4 // + Trace (staging and commit file operations)
)

// VerbosityToLevel maps -v=N to slog level.
func VerbosityToLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError
	case v == 1:
		return slog.LevelWarn
	case v == 2:
		return slog.LevelInfo
	case v == 3:
		return slog.LevelDebug
	default:
		return LevelTrace
	}
}

// LevelToVerbosity maps slog level to -v=N (for display).
func LevelToVerbosity(l slog.Level) int {
	switch {
	case l >= slog.LevelError:
		return VerbosityError
	case l >= slog.LevelWarn:
		return VerbosityWarn
	case l >= slog.LevelInfo:
		return VerbosityInfo
	case l >= slog.LevelDebug:
		return VerbosityDebug
	default:
		return VerbosityTrace
	}
}

// LevelName returns the name for a slog level, including custom levels.
func LevelName(l slog.Level) string {
	if l == LevelTrace {
		return "TRACE"
	}
	return l.String()
}
