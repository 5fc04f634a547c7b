// Package audit records every successful mutating operation of the
// authorization engine as an append-only event stream.
//
// Audit is best-effort by contract: a failed append never rolls back the
// mutation that produced it. The Recorder therefore swallows sink errors
// after surfacing them through the injected slog logger, and the async sink
// drops events (again with a log line) rather than block the write path
// when its buffer is full.
//
// Sinks are pluggable. NewMemorySink is the in-process implementation used
// by tests; package redisaudit streams events to a Redis stream for
// external collection.
package audit
