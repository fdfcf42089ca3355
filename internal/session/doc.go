// Package session records what happens during an agent session.
//
// A Recorder keeps one ordered, timestamped event log per session and
// persists it as a single indented JSON document, rewritten after each
// event. Persistence failures are logged and never returned: callers must
// keep working when the recorder cannot write.
//
// RecordingStore decorates a memory.Store so every operation attempt
// (parameters, then result or error) reaches a Sink without the store
// knowing about it.
package session
