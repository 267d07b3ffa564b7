package encode

import (
	"context"
	"fmt"
	"os"
	"time"

	"ripqueue/internal/gpulock"
	"ripqueue/internal/logger"
	"ripqueue/internal/streamplan"
	"ripqueue/internal/xerrors"
)

// Outcome is the terminal result of running the state machine on one
// work item.
type Outcome struct {
	Succeeded    bool
	Encoder      Accel
	Attempts     int
	Err          error
	DurationWarn string
}

// Options configures one state-machine run.
type Options struct {
	SourceCodec      string
	MaxHWRetries     int
	SWFallbackEnable bool
	Deinterlace      bool
	Plan             streamplan.Plan
	InputPath        string
	OutputPath       string
	InputDuration    time.Duration
	Targets          QualityTargets
	LockRetry        time.Duration
}

// attemptFunc performs one encoder attempt; satisfied by (*Runner).Attempt
// in production and by a fake in tests.
type attemptFunc func(ctx context.Context, accel Accel, targets QualityTargets, deinterlace bool, plan streamplan.Plan, input, output string, progressCh chan<- Progress) error

// Run drives Pending -> HW-A(k) -> HW-B(k) -> SW -> Done|Failed. The
// host GPU lock is held for the whole hardware-encoder pipeline and
// released before a software attempt, which never contends for it.
func Run(ctx context.Context, runner *Runner, lock *gpulock.Lock, probeDuration func(context.Context, string) (time.Duration, error), opts Options, onStart func(Accel), progressCh chan<- Progress) Outcome {
	return run(ctx, runner.Attempt, lock, probeDuration, opts, onStart, progressCh)
}

func run(ctx context.Context, attempt attemptFunc, lock *gpulock.Lock, probeDuration func(context.Context, string) (time.Duration, error), opts Options, onStart func(Accel), progressCh chan<- Progress) Outcome {
	accel := FirstAccel(opts.SourceCodec)
	totalAttempts := 0
	locked := false

	for accel != "" && accel != AccelSW {
		if RequiresSoftwareDecode(opts.SourceCodec, accel) {
			accel = NextAccel(accel, opts.SWFallbackEnable)
			continue
		}

		if !locked {
			if err := lock.Acquire(ctx, opts.LockRetry); err != nil {
				return Outcome{Err: fmt.Errorf("%w: %v", xerrors.ErrTransient, err)}
			}
			locked = true
		}

		succeeded := false
		var lastErr error
		for a := 1; a <= opts.MaxHWRetries+1; a++ {
			totalAttempts++
			if onStart != nil {
				onStart(accel)
			}
			err := attempt(ctx, accel, opts.Targets, opts.Deinterlace, opts.Plan, opts.InputPath, opts.OutputPath, progressCh)
			if err == nil {
				succeeded = true
				break
			}
			lastErr = err
			os.Remove(opts.OutputPath)
			logger.Warn("hardware encoder attempt failed, retrying", "accel", accel, "attempt", a)
		}

		if succeeded {
			lock.Release()
			return finish(ctx, opts, accel, totalAttempts, probeDuration)
		}
		logger.Warn("hardware encoder exhausted retries, falling back", "accel", accel, "error", lastErr)
		accel = NextAccel(accel, opts.SWFallbackEnable)
	}
	if locked {
		lock.Release()
	}

	if accel != AccelSW {
		return Outcome{Attempts: totalAttempts, Err: fmt.Errorf("%w: no hardware encoder succeeded and software fallback disabled", xerrors.ErrEncoder)}
	}

	totalAttempts++
	if onStart != nil {
		onStart(AccelSW)
	}
	if err := attempt(ctx, AccelSW, opts.Targets, opts.Deinterlace, opts.Plan, opts.InputPath, opts.OutputPath, progressCh); err != nil {
		os.Remove(opts.OutputPath)
		return Outcome{Attempts: totalAttempts, Err: err}
	}
	return finish(ctx, opts, AccelSW, totalAttempts, probeDuration)
}

func finish(ctx context.Context, opts Options, accel Accel, attempts int, probeDuration func(context.Context, string) (time.Duration, error)) Outcome {
	out := Outcome{Succeeded: true, Encoder: accel, Attempts: attempts}
	if probeDuration != nil {
		outDur, err := probeDuration(ctx, opts.OutputPath)
		if err == nil {
			out.DurationWarn = VerifyDuration(opts.InputDuration, outDur)
		}
	}
	return out
}
