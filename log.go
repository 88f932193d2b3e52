package veil

import (
	"sync"

	"go.uber.org/zap"
)

var (
	baseOnce sync.Once
	base     *zap.SugaredLogger
)

// Log returns the process-wide sugared logger, building a production zap
// config on first use. Per-connection log lines are scoped through
// CidLogger, which adds the id as a "cid" field rather than formatting it
// into the message the way the teacher project baked "%08x" into every
// log.Printf call; process-level lines (start-up, accept loop) use Log()
// directly.
func Log() *zap.SugaredLogger {
	baseOnce.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			// zap failing to build its own production logger means stderr
			// itself is unusable; there is nothing sensible left to do.
			panic(err)
		}
		base = l.Sugar()
	})
	return base
}

// CidLogger scopes the process logger to one connection id, the structured
// equivalent of the teacher's "%08x  ..." prefix.
func CidLogger(cid uint32) *zap.SugaredLogger {
	return Log().With("cid", cid)
}
