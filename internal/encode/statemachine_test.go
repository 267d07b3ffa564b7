package encode

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ripqueue/internal/gpulock"
	"ripqueue/internal/streamplan"
	"ripqueue/internal/xerrors"
)

func testLock(t *testing.T) *gpulock.Lock {
	t.Helper()
	return gpulock.New(filepath.Join(t.TempDir(), "gpu.lock"))
}

func TestRunEncoderOrderFallsThroughToSW(t *testing.T) {
	var seen []Accel
	attempt := func(_ context.Context, accel Accel, _ QualityTargets, _ bool, _ streamplan.Plan, _, _ string, _ chan<- Progress) error {
		seen = append(seen, accel)
		if accel == AccelSW {
			return nil
		}
		return xerrors.ErrEncoder
	}

	opts := Options{
		SourceCodec:      "h264",
		MaxHWRetries:     2,
		SWFallbackEnable: true,
		OutputPath:       filepath.Join(t.TempDir(), "out.mkv"),
	}
	out := run(context.Background(), attempt, testLock(t), nil, opts, nil, nil)

	if !out.Succeeded || out.Encoder != AccelSW {
		t.Fatalf("got %+v, want success on sw", out)
	}
	want := []Accel{AccelQSV, AccelQSV, AccelQSV, AccelVAAPI, AccelVAAPI, AccelVAAPI, AccelSW}
	if len(seen) != len(want) {
		t.Fatalf("got sequence %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("step %d: got %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestRunStopsAtLastVAAPIWhenSWDisabled(t *testing.T) {
	var seen []Accel
	attempt := func(_ context.Context, accel Accel, _ QualityTargets, _ bool, _ streamplan.Plan, _, _ string, _ chan<- Progress) error {
		seen = append(seen, accel)
		return xerrors.ErrEncoder
	}
	opts := Options{
		SourceCodec:      "h264",
		MaxHWRetries:     2,
		SWFallbackEnable: false,
		OutputPath:       filepath.Join(t.TempDir(), "out.mkv"),
	}
	out := run(context.Background(), attempt, testLock(t), nil, opts, nil, nil)
	if out.Succeeded {
		t.Fatal("expected failure with sw fallback disabled")
	}
	if seen[len(seen)-1] != AccelVAAPI {
		t.Errorf("last attempt was %s, want vaapi", seen[len(seen)-1])
	}
}

func TestRunStopsAtFirstSuccess(t *testing.T) {
	calls := 0
	attempt := func(_ context.Context, accel Accel, _ QualityTargets, _ bool, _ streamplan.Plan, _, _ string, _ chan<- Progress) error {
		calls++
		if accel == AccelQSV {
			return nil
		}
		t.Fatalf("should not reach %s after QSV success", accel)
		return nil
	}
	opts := Options{SourceCodec: "h264", MaxHWRetries: 2, SWFallbackEnable: true, OutputPath: filepath.Join(t.TempDir(), "out.mkv")}
	out := run(context.Background(), attempt, testLock(t), nil, opts, nil, nil)
	if !out.Succeeded || out.Encoder != AccelQSV || calls != 1 {
		t.Fatalf("got %+v calls=%d, want single QSV success", out, calls)
	}
}

func TestRunVC1SourceSkipsQSV(t *testing.T) {
	var seen []Accel
	attempt := func(_ context.Context, accel Accel, _ QualityTargets, _ bool, _ streamplan.Plan, _, _ string, _ chan<- Progress) error {
		seen = append(seen, accel)
		return nil
	}
	opts := Options{SourceCodec: "vc1", MaxHWRetries: 2, SWFallbackEnable: true, OutputPath: filepath.Join(t.TempDir(), "out.mkv")}
	run(context.Background(), attempt, testLock(t), nil, opts, nil, nil)
	if seen[0] != AccelVAAPI {
		t.Errorf("got first attempt %s, want vaapi (qsv skipped for vc1)", seen[0])
	}
}

func TestVerifyDurationWithinTolerance(t *testing.T) {
	if got := VerifyDuration(100*time.Second, 100500*time.Millisecond); got != "" {
		t.Errorf("got warning %q, want none within tolerance", got)
	}
}

func TestVerifyDurationExceedsTolerance(t *testing.T) {
	if got := VerifyDuration(100*time.Second, 90*time.Second); got == "" {
		t.Error("expected a warning for a 10s deviation on a 100s input")
	}
}

func TestVerifyDurationSmallInputUsesOneSecondFloor(t *testing.T) {
	// 1% of a 2s input is 20ms; the 1s floor applies instead, so a
	// 500ms deviation must stay within tolerance.
	if got := VerifyDuration(2*time.Second, 2500*time.Millisecond); got != "" {
		t.Errorf("got warning %q, want none: 500ms is within the 1s floor", got)
	}
	if got := VerifyDuration(2*time.Second, 500*time.Millisecond); got == "" {
		t.Error("expected a warning: 1.5s deviation exceeds the 1s floor")
	}
}
