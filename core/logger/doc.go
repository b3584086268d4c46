// Package logger provides slog.Attr helpers shared across the toolkit.
//
// Helpers return an empty Attr for nil or zero input, so call sites never
// need explicit nil checks:
//
//	log.LogAttrs(ctx, slog.LevelInfo, "request completed",
//		logger.StatusCode(200),
//		logger.Error(err), // no-op when err is nil
//	)
package logger
