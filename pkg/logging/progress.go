package logging

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/tabular-index/pkg/humanfmt"
)

// CompletionEvent builds consistent completion log events for pipeline
// phases: a duration, an event kind, and free-form fields, with optional
// human-readable companions in pretty mode.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	phase   string
	elapsed time.Duration
	fields  map[string]interface{}
}

// NewCompletionEvent creates a completion event builder.
func NewCompletionEvent(log zerolog.Logger, event, phase string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{
		log:     log,
		event:   event,
		phase:   phase,
		elapsed: elapsed,
		fields:  make(map[string]interface{}),
	}
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Int adds an int field.
func (ce *CompletionEvent) Int(key string, val int) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Uint64 adds a uint64 field.
func (ce *CompletionEvent) Uint64(key string, val uint64) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Bytes adds a byte count, with a humanized companion in pretty mode.
func (ce *CompletionEvent) Bytes(key string, bytes int64) *CompletionEvent {
	ce.fields[key] = bytes
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.Bytes(bytes)
	}
	return ce
}

// Count adds a count, with a humanized companion in pretty mode.
func (ce *CompletionEvent) Count(key string, n int64) *CompletionEvent {
	ce.fields[key] = n
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.Count(n)
	}
	return ce
}

// CountUint64 adds a uint64 count field.
func (ce *CompletionEvent) CountUint64(key string, n uint64) *CompletionEvent {
	return ce.Count(key, int64(n))
}

// Throughput derives a bytes-per-second rate from the event's duration.
func (ce *CompletionEvent) Throughput(bytes int64) *CompletionEvent {
	if ce.elapsed > 0 {
		ce.fields["throughput_bps"] = float64(bytes) / ce.elapsed.Seconds()
		if IsPrettyMode() {
			ce.fields["throughput_h"] = humanfmt.Throughput(bytes, ce.elapsed)
		}
	}
	return ce
}

func (ce *CompletionEvent) emit(e *zerolog.Event, msg string) {
	e = e.Str("event", ce.event).
		Str("phase", ce.phase).
		Int64("duration_ms", ce.elapsed.Milliseconds())
	if IsPrettyMode() {
		e = e.Str("duration_h", humanfmt.Duration(ce.elapsed))
	}
	for k, v := range ce.fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// Log emits the completion event at info level.
func (ce *CompletionEvent) Log(msg string) {
	ce.emit(ce.log.Info(), msg)
}

// LogDebug emits the completion event at debug level.
func (ce *CompletionEvent) LogDebug(msg string) {
	ce.emit(ce.log.Debug(), msg)
}

// PhaseComplete starts a phase completion event.
func PhaseComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "phase_completed", phase, elapsed)
}

// ChunkComplete starts a chunk completion event.
func ChunkComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "chunk_completed", phase, elapsed)
}

// FileCreated starts a file creation event.
func FileCreated(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "file_created", phase, elapsed)
}
