package log

import "log/slog"

// Canonical log field names shared by the build packages.
const (
	KeyComponent = "component"
	KeyAsset     = "asset"
	KeySource    = "source"
	KeyBatch     = "batch"
	KeyAttempt   = "attempt"
	KeyPath      = "path"
	KeyCount     = "count"
	KeyError     = "error"
)

func Asset(path string) slog.Attr { return slog.String(KeyAsset, path) }
func Source(tag string) slog.Attr { return slog.String(KeySource, tag) }
func Batch(id int) slog.Attr { return slog.Int(KeyBatch, id) }
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }
func Count(n int) slog.Attr { return slog.Int(KeyCount, n) }
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
