// Package logging provides structured logging for vectorizer.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug) for per-fragment detail
//   - Console output on stderr plus an optional JSON log file
//   - Automatic context field injection (run.id, collection, command)
//   - Secret redaction by field name and value pattern
//   - Optional sampling below Error
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	cfg.Level = logging.TraceLevel
//	cfg.Output.File = "/home/me/.config/vectorizer/vectorizer.log"
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	ctx = logging.WithCollection(ctx, "docs")
//	logger.Info(ctx, "upserted fragments", zap.Int("count", n))
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	walker.New(root, opts, tl.Logger)
//	tl.AssertLogged(t, zapcore.WarnLevel, "skipping unreadable directory")
package logging
