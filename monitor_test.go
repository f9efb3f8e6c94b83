package admission

import (
	"testing"
	"time"
)

type recordingNotifier struct {
	calls map[string]int64
}

func (n *recordingNotifier) Notify(identity string, strikes int64) {
	if n.calls == nil {
		n.calls = map[string]int64{}
	}
	n.calls[identity] = strikes
}

func newTestMonitor(clock *fakeClock, threshold int64, decay time.Duration) *RejectionMonitor {
	m := NewRejectionMonitor(nil, threshold, decay, nil)
	m.now = clock.Now
	return m
}

func rejection(identity string) AdmissionEvent {
	return AdmissionEvent{Identity: identity, Action: ActionAnalyze, Outcome: OutcomeRejected}
}

/*
Rejections accumulate per identity and never leak between identities
*/
func TestMonitorStrikesAccumulate(t *testing.T) {
	clock := &fakeClock{now: epoch}
	m := newTestMonitor(clock, 10, 30*time.Minute)

	for i := 0; i < 3; i++ {
		m.handle(rejection("1.1.1.1"))
	}
	m.handle(rejection("2.2.2.2"))

	if got := m.Strikes("1.1.1.1"); got != 3 {
		t.Errorf("1.1.1.1 should have 3 strikes, got %d", got)
	}
	if got := m.Strikes("2.2.2.2"); got != 1 {
		t.Errorf("2.2.2.2 should have 1 strike, got %d", got)
	}
	if got := m.Strikes("3.3.3.3"); got != 0 {
		t.Errorf("unseen identity should have 0 strikes, got %d", got)
	}
}

func TestMonitorIgnoresAllowedEvents(t *testing.T) {
	m := newTestMonitor(&fakeClock{now: epoch}, 10, time.Minute)
	m.handle(AdmissionEvent{Identity: "1.1.1.1", Outcome: OutcomeAllowed})

	if got := m.Strikes("1.1.1.1"); got != 0 {
		t.Errorf("allowed events should not count, got %d", got)
	}
}

/*
With a 100ms decay, 5 strikes lose 3 after 350ms, the next rejection makes 3,
and a long quiet period floors the score at 0
*/
func TestMonitorDecay(t *testing.T) {
	clock := &fakeClock{now: epoch}
	m := newTestMonitor(clock, 10, 100*time.Millisecond)

	for i := 0; i < 5; i++ {
		m.handle(rejection("10.0.0.5"))
	}
	clock.Advance(350 * time.Millisecond)
	if got := m.Strikes("10.0.0.5"); got != 2 {
		t.Errorf("expected 5-3=2 strikes after decay, got %d", got)
	}
	if got := m.record(rejection("10.0.0.5")); got != 3 {
		t.Errorf("expected 2+1=3 strikes, got %d", got)
	}

	clock.Advance(10 * time.Second)
	if got := m.Strikes("10.0.0.5"); got != 0 {
		t.Errorf("score should floor at 0, got %d", got)
	}
}

func TestMonitorThresholdNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	m := newTestMonitor(&fakeClock{now: epoch}, 3, time.Hour)
	m.OnThreshold = notifier

	for i := 0; i < 3; i++ {
		m.handle(rejection("192.168.0.100"))
	}
	if len(notifier.calls) != 0 {
		t.Fatalf("no notification expected at the threshold, got %v", notifier.calls)
	}

	m.handle(rejection("192.168.0.100"))
	if notifier.calls["192.168.0.100"] != 4 {
		t.Errorf("expected notification with 4 strikes, got %v", notifier.calls)
	}
}
