package realtime

import (
	"testing"
	"time"
)

func TestFrameLimiterThrottlesChatter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fl := newFrameLimiter(3, 10*time.Second)

	for i := 0; i < 3; i++ {
		if !fl.allow(now.Add(time.Duration(i) * time.Second)) {
			t.Fatalf("frame %d within the cap should pass", i)
		}
	}
	if fl.allow(now.Add(3 * time.Second)) {
		t.Fatalf("fourth frame inside the window should be throttled")
	}
}

func TestFrameLimiterRecoversAsFramesAgeOut(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fl := newFrameLimiter(2, 10*time.Second)

	if !fl.allow(now) || !fl.allow(now.Add(time.Second)) {
		t.Fatalf("frames within the cap should pass")
	}

	// Throttled frames are not counted, so the client only has to wait for
	// the two accepted frames to leave the window.
	if fl.allow(now.Add(5 * time.Second)) {
		t.Fatalf("frame inside the window should be throttled")
	}
	if !fl.allow(now.Add(10*time.Second + time.Millisecond)) {
		t.Fatalf("frame after the oldest aged out should pass")
	}
}

func TestFrameLimiterDefaults(t *testing.T) {
	t.Parallel()

	fl := newFrameLimiter(0, 0)
	now := time.Now().UTC()

	allowed := 0
	for i := 0; i < rateLimitEvents+5; i++ {
		if fl.allow(now) {
			allowed++
		}
	}
	if allowed != rateLimitEvents {
		t.Fatalf("expected the default cap of %d, allowed %d", rateLimitEvents, allowed)
	}
}
