package admission

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

type strikeScore struct {
	score       int64
	lastUpdated time.Time
	mu          sync.Mutex
}

type ThresholdNotifier interface {
	Notify(identity string, strikes int64)
}

// RejectionMonitor consumes rejection events and keeps a decaying strike
// count per identity. It only observes: decisions never depend on it.
//
// Every decay interval without a rejection takes one strike away, so with a
// 30 minute decay an identity with 4 strikes is back to 0 after 2 quiet hours.
type RejectionMonitor struct {
	client      *kgo.Client
	strikes     sync.Map
	threshold   int64
	decay       time.Duration
	now         func() time.Time
	logger      *zap.Logger
	OnThreshold ThresholdNotifier
}

func NewRejectionMonitor(client *kgo.Client, threshold int64, decay time.Duration, logger *zap.Logger) *RejectionMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RejectionMonitor{
		client:    client,
		threshold: threshold,
		decay:     decay,
		now:       time.Now,
		logger:    logger,
	}
}

func (m *RejectionMonitor) decayed(s *strikeScore, now time.Time) int64 {
	if m.decay <= 0 {
		return s.score
	}
	current := s.score - int64(now.Sub(s.lastUpdated)/m.decay)
	if current < 0 {
		current = 0
	}
	return current
}

// Strikes returns the decayed score of identity without modifying it.
func (m *RejectionMonitor) Strikes(identity string) int64 {
	val, ok := m.strikes.Load(identity)
	if !ok {
		return 0
	}
	s := val.(*strikeScore)
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.decayed(s, m.now())
}

func (m *RejectionMonitor) record(event AdmissionEvent) int64 {
	now := m.now()
	val, _ := m.strikes.LoadOrStore(event.Identity, &strikeScore{lastUpdated: now})
	s := val.(*strikeScore)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.score = m.decayed(s, now) + 1
	s.lastUpdated = now
	return s.score
}

// handle folds one event into the scores. Allowed outcomes are ignored.
func (m *RejectionMonitor) handle(event AdmissionEvent) {
	if event.Outcome != OutcomeRejected || event.Identity == "" {
		return
	}
	score := m.record(event)
	if score > m.threshold {
		m.logger.Warn("identity over rejection threshold",
			zap.String("identity", event.Identity),
			zap.String("action", string(event.Action)),
			zap.Int64("strikes", score))
		if m.OnThreshold != nil {
			m.OnThreshold.Notify(event.Identity, score)
		}
	}
}

// Run polls the client until ctx is cancelled or the client is closed.
func (m *RejectionMonitor) Run(ctx context.Context) {
	for {
		fetches := m.client.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			return
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			m.logger.Warn("fetch error",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err))
		})

		fetches.EachRecord(func(record *kgo.Record) {
			var event AdmissionEvent
			if err := json.Unmarshal(record.Value, &event); err != nil {
				m.logger.Debug("skipping undecodable record", zap.Error(err))
				return
			}
			m.handle(event)
		})
	}
}
