package audio

import "time"

// clock measures playback time by the wall clock, excluding pauses.
type clock struct {
	start      time.Time
	pauseStart time.Time
	pauseTotal time.Duration
	paused     bool
}

func (c *clock) reset(now time.Time) {
	*c = clock{start: now}
}

func (c *clock) pause(now time.Time) {
	if c.paused {
		return
	}
	c.paused = true
	c.pauseStart = now
}

func (c *clock) resume(now time.Time) {
	if !c.paused {
		return
	}
	c.pauseTotal += now.Sub(c.pauseStart)
	c.paused = false
}

func (c *clock) elapsed(now time.Time) time.Duration {
	if c.paused {
		now = c.pauseStart
	}
	return now.Sub(c.start) - c.pauseTotal
}

// pcmDuration returns how long n bytes of 16-bit PCM play for.
func pcmDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := n / (channels * 2)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
