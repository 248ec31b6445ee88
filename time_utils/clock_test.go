package timeutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock(t *testing.T) {
	start := time.Date(2023, 10, 19, 16, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	clock.Sleep(2 * time.Second)
	assert.Equal(t, start.Add(2*time.Second), clock.Now())

	clock.Advance(-time.Second)
	assert.Equal(t, start.Add(2*time.Second), clock.Now(), "negative advance should be ignored")
}

func TestSleepUntil(t *testing.T) {
	start := time.Date(2023, 10, 19, 16, 0, 0, 0, time.UTC)

	type subTest struct {
		name          string
		target        time.Time
		expectedSlept time.Duration
		expectedNow   time.Time
	}

	subTests := []subTest{
		{"In the future", start.Add(1500 * time.Millisecond), 1500 * time.Millisecond, start.Add(1500 * time.Millisecond)},
		{"Now", start, 0, start},
		{"Already late", start.Add(-time.Second), 0, start},
	}

	for _, subTest := range subTests {
		t.Run(subTest.name, func(t *testing.T) {
			clock := NewManualClock(start)
			slept := SleepUntil(clock, subTest.target)
			assert.Equal(t, subTest.expectedSlept, slept)
			assert.Equal(t, subTest.expectedNow, clock.Now())
		})
	}
}
