// Package log provides the leveled logger shared by the kgqa packages.
//
// The default implementation wraps github.com/kataras/golog. Components accept a
// Logger through their options and fall back to the package-level logger, so a
// command can configure logging once:
//
//	level, _ := log.ParseLevel(cfg.Log.Level)
//	log.SetLogLevel(level)
//
// Levels, in order of increasing severity:
//
//   - LogLevelDebug: prompts, raw model output, full error chains
//   - LogLevelInfo: pipeline progress
//   - LogLevelWarn: degraded stages such as fallback parsing or templated answers
//   - LogLevelError: failed requests
//   - LogLevelNone: disables all output
//
// Tests use NoOpLogger or NewWriter with a bytes.Buffer.
package log
