package models

// Well-known event types published on the bus. Payloads are free-form
// maps; these constants only fix the type tags.
const (
	EventSystemStartup       = "system.startup"
	EventSystemShutdown      = "system.shutdown"
	EventFunctionStarted     = "function.started"
	EventFunctionCompleted   = "function.completed"
	EventFunctionFailed      = "function.failed"
	EventPerformanceRecorded = "performance.recorded"
	EventProgressStepStarted = "progress.step_started"
	EventProgressStepDone    = "progress.step_completed"
	EventProgressStepFailed  = "progress.step_failed"
)

// WellKnownEvents lists the event types reported by the status surface.
var WellKnownEvents = []string{
	EventFunctionStarted,
	EventFunctionCompleted,
	EventFunctionFailed,
	EventPerformanceRecorded,
}
