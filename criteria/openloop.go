package criteria

import (
	"math"
	"time"

	"github.com/cepro/dercompliance/telemetry"
)

// minTimeMargin is the smallest timing tolerance applied at the first response time.
const minTimeMargin = 50 * time.Millisecond

// ExpectedValue returns the value of a first-order response that starts at `y0` and settles at `yss`, `elapsed`
// after the change. The response time `tr` is the time taken to cover 90% of the change.
func ExpectedValue(y0, yss float64, elapsed, tr time.Duration) float64 {
	if tr <= 0 {
		return yss
	}
	timeConstant := tr.Seconds() / -math.Log(0.1)
	fraction := 1 - math.Exp(-elapsed.Seconds()/timeConstant)
	return (yss-y0)*fraction + y0
}

// TimeMargin returns the timing tolerance at the first response time: 1.5% of `tr`, and never less than 50ms.
func TimeMargin(tr time.Duration) time.Duration {
	margin := time.Duration(0.01 * 1.5 * float64(tr))
	if margin < minTimeMargin {
		return minTimeMargin
	}
	return margin
}

// Envelope is the range that a response must lie within at the first response time.
type Envelope struct {
	Expected float64
	Min      float64
	Max      float64
	Verdict  telemetry.Verdict
}

// TimeAccuracy checks that `y1`, measured `elapsed` after the step was applied, follows the open loop response from
// `y0` towards `yss`. The expected value is evaluated 1.5 time margins either side of `elapsed`, and the envelope is
// widened by 1.5 times the accuracy `mraY`.
func TimeAccuracy(y0, y1, yss float64, elapsed, tr time.Duration, mraY float64) Envelope {
	margin := time.Duration(1.5 * float64(TimeMargin(tr)))
	expected := ExpectedValue(y0, yss, elapsed, tr)

	early := ExpectedValue(y0, yss, elapsed-margin, tr)
	late := ExpectedValue(y0, yss, elapsed+margin, tr)

	env := Envelope{Expected: expected}
	if y0 <= expected {
		env.Min, env.Max = early, late
	} else {
		env.Min, env.Max = late, early
	}
	env.Min -= 1.5 * mraY
	env.Max += 1.5 * mraY
	env.Verdict = telemetry.VerdictOf(env.Min <= y1 && y1 <= env.Max)
	return env
}

// WindowTimeAccuracy checks that every sample taken within a time margin of the first response time lies within
// 1.5 MRA of 90% of the change from `yInitial` to `yFinal`. There must be at least one sample.
func WindowTimeAccuracy(samples []float64, yInitial, yFinal, mraY float64) Envelope {
	expected := yInitial + 0.9*(yFinal-yInitial)
	env := Envelope{
		Expected: expected,
		Min:      expected - 1.5*mraY,
		Max:      expected + 1.5*mraY,
	}

	pass := len(samples) > 0
	for _, sample := range samples {
		if !(env.Min <= sample && sample <= env.Max) {
			pass = false
			break
		}
	}
	env.Verdict = telemetry.VerdictOf(pass)
	return env
}
