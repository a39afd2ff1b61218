package monitor

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/arakida/execmon/pkg/models"
)

// Callable is the invocation contract every wrapper preserves: the
// wrapped value takes the same arguments and returns the same result and
// error as the original work.
type Callable func(args ...any) (any, error)

// Options customizes a single instrumented callable.
type Options struct {
	// Summarizer renders arguments and results for log entries. When
	// nil, a bounded generic rendering is used.
	Summarizer func(v any) string

	// Metadata is attached to every log entry the wrapper emits.
	Metadata map[string]any
}

// Instrumenter produces wrapped callables that record lifecycle log
// entries, performance metrics, and bus events around the wrapped work.
// Failures inside the instrumentation itself are logged and suppressed;
// only the wrapped work's own error ever reaches the caller.
type Instrumenter struct {
	coord *Coordinator

	procOnce sync.Once
	proc     *process.Process

	infraWarnings atomic.Int64
}

// NewInstrumenter creates an Instrumenter bound to the given coordinator.
func NewInstrumenter(c *Coordinator) *Instrumenter {
	return &Instrumenter{coord: c}
}

// Instrument wraps fn so each invocation records start and
// complete-or-error log entries sharing one session ID, and publishes the
// corresponding function.* events.
func (in *Instrumenter) Instrument(name string, fn Callable) Callable {
	return in.InstrumentWith(name, fn, Options{})
}

// InstrumentWith is Instrument with per-callable options.
func (in *Instrumenter) InstrumentWith(name string, fn Callable, opts Options) Callable {
	summarize := opts.Summarizer
	if summarize == nil {
		summarize = Summarize
	}

	return func(args ...any) (any, error) {
		if err := in.coord.EnsureInitialized(); err != nil {
			return nil, fmt.Errorf("initializing monitoring: %w", err)
		}

		sessionID := NewSessionID()
		start := time.Now().UTC()

		in.guard("insert start entry", func() error {
			return in.coord.Store().InsertLogEntry(models.LogEntry{
				Timestamp:    start,
				SessionID:    sessionID,
				FunctionName: name,
				Kind:         models.KindStart,
				Parameters: map[string]any{
					"args_count":   len(args),
					"args_summary": summarize(args),
				},
				Metadata: opts.Metadata,
			})
		})
		in.coord.Bus().Publish(models.EventFunctionStarted, map[string]any{
			"function_name": name,
			"session_id":    sessionID,
			"timestamp":     start.Format(time.RFC3339Nano),
		})

		result, workErr := fn(args...)

		end := time.Now().UTC()
		duration := end.Sub(start).Seconds()

		if workErr != nil {
			in.guard("insert error entry", func() error {
				return in.coord.Store().InsertLogEntry(models.LogEntry{
					Timestamp:    end,
					SessionID:    sessionID,
					FunctionName: name,
					Kind:         models.KindError,
					Duration:     &duration,
					ErrorDetails: workErr.Error(),
					Parameters: map[string]any{
						"args_count": len(args),
						"stack":      string(debug.Stack()),
					},
					Metadata: opts.Metadata,
				})
			})
			in.coord.Bus().Publish(models.EventFunctionFailed, map[string]any{
				"function_name": name,
				"session_id":    sessionID,
				"error":         workErr.Error(),
				"duration":      duration,
				"timestamp":     end.Format(time.RFC3339Nano),
			})
			return result, workErr
		}

		in.guard("insert complete entry", func() error {
			return in.coord.Store().InsertLogEntry(models.LogEntry{
				Timestamp:     end,
				SessionID:     sessionID,
				FunctionName:  name,
				Kind:          models.KindComplete,
				Duration:      &duration,
				ResultSummary: summarize(result),
				Metadata:      opts.Metadata,
			})
		})
		in.coord.Bus().Publish(models.EventFunctionCompleted, map[string]any{
			"function_name": name,
			"session_id":    sessionID,
			"duration":      duration,
			"timestamp":     end.Format(time.RFC3339Nano),
		})
		return result, nil
	}
}

// TrackPerformance wraps fn so each invocation records exactly one
// performance metrics row: wall-clock time, peak resident memory (max of
// pre- and post-call RSS), CPU usage, and a success rate of 1.0 or 0.0.
// A performance.recorded event is published on success.
func (in *Instrumenter) TrackPerformance(name string, fn Callable) Callable {
	return func(args ...any) (any, error) {
		if err := in.coord.EnsureInitialized(); err != nil {
			return nil, fmt.Errorf("initializing monitoring: %w", err)
		}

		proc := in.process()
		initialMem := residentMemory(proc)
		start := time.Now().UTC()

		result, workErr := fn(args...)

		end := time.Now().UTC()
		executionTime := end.Sub(start).Seconds()
		finalMem := residentMemory(proc)
		peak := initialMem
		if finalMem > peak {
			peak = finalMem
		}

		var cpu float64
		if proc != nil {
			cpu, _ = proc.CPUPercent()
		}

		success := 1.0
		if workErr != nil {
			success = 0.0
		}

		in.guard("insert performance metrics", func() error {
			return in.coord.Store().InsertPerformanceMetrics(models.PerformanceMetrics{
				Timestamp:     end,
				FunctionName:  name,
				ExecutionTime: executionTime,
				MemoryPeak:    int64(peak),
				CPUUsage:      cpu,
				SuccessRate:   success,
			})
		})

		if workErr == nil {
			in.coord.Bus().Publish(models.EventPerformanceRecorded, map[string]any{
				"function_name":  name,
				"execution_time": executionTime,
				"memory_peak":    peak,
				"timestamp":      end.Format(time.RFC3339Nano),
			})
		}
		return result, workErr
	}
}

// ProgressStep wraps fn as one step of a multi-step pipeline with the
// given relative weight, publishing progress.step_started before and
// progress.step_completed or progress.step_failed after. Subscribers use
// the weights to compute weighted overall progress.
func (in *Instrumenter) ProgressStep(name string, weight float64, fn Callable) Callable {
	return func(args ...any) (any, error) {
		if err := in.coord.EnsureInitialized(); err != nil {
			return nil, fmt.Errorf("initializing monitoring: %w", err)
		}

		in.coord.Bus().Publish(models.EventProgressStepStarted, map[string]any{
			"function_name": name,
			"weight":        weight,
			"timestamp":     time.Now().UTC().Format(time.RFC3339Nano),
		})

		result, workErr := fn(args...)

		if workErr != nil {
			in.coord.Bus().Publish(models.EventProgressStepFailed, map[string]any{
				"function_name": name,
				"weight":        weight,
				"error":         workErr.Error(),
				"timestamp":     time.Now().UTC().Format(time.RFC3339Nano),
			})
			return result, workErr
		}

		in.coord.Bus().Publish(models.EventProgressStepDone, map[string]any{
			"function_name": name,
			"weight":        weight,
			"timestamp":     time.Now().UTC().Format(time.RFC3339Nano),
		})
		return result, nil
	}
}

// InstrumentAll composes all three wrappers: the progress step is
// outermost, then performance tracking, then execution monitoring
// innermost, so a single call records all three event families.
func (in *Instrumenter) InstrumentAll(name string, weight float64, fn Callable) Callable {
	return in.ProgressStep(name, weight, in.TrackPerformance(name, in.Instrument(name, fn)))
}

// Outcome makes the instrumentation's suppression policy visible: the
// wrapped work's result and error pass through unchanged, while infra
// failures that were logged and suppressed during the invocation are
// surfaced as a count.
type Outcome struct {
	Result        any
	WorkErr       error
	InfraWarnings int64
}

// Ok reports a fully clean invocation: the work succeeded and no infra
// warning was suppressed.
func (o Outcome) Ok() bool {
	return o.WorkErr == nil && o.InfraWarnings == 0
}

// Run invokes fn under full instrumentation and reports the outcome.
// Concurrent invocations may attribute each other's infra warnings; the
// count is a diagnostic, not an exact ledger.
func (in *Instrumenter) Run(name string, fn Callable, args ...any) Outcome {
	before := in.infraWarnings.Load()
	result, err := in.InstrumentAll(name, 1.0, fn)(args...)
	return Outcome{
		Result:        result,
		WorkErr:       err,
		InfraWarnings: in.infraWarnings.Load() - before,
	}
}

// InfraWarningCount returns the total number of suppressed infra
// failures since the instrumenter was created.
func (in *Instrumenter) InfraWarningCount() int64 {
	return in.infraWarnings.Load()
}

// guard isolates a monitoring-infra call: its error is counted and
// logged, never propagated, so a persistence failure can never alter the
// monitored work's outcome.
func (in *Instrumenter) guard(op string, fn func() error) {
	if err := fn(); err != nil {
		in.infraWarnings.Add(1)
		in.coord.Logger().Error("monitoring operation failed",
			zap.String("op", op),
			zap.Error(err),
		)
	}
}

// process returns the current process handle, priming CPU sampling on
// first use. Returns nil if the handle cannot be obtained; memory and
// CPU then record as zero.
func (in *Instrumenter) process() *process.Process {
	in.procOnce.Do(func() {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			in.coord.Logger().Warn("process handle unavailable, memory metrics disabled", zap.Error(err))
			return
		}
		// First CPUPercent call establishes the sampling baseline.
		_, _ = proc.CPUPercent()
		in.proc = proc
	})
	return in.proc
}

func residentMemory(proc *process.Process) uint64 {
	if proc == nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0
	}
	return info.RSS
}
