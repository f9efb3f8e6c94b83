package admission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Action names a rate-limited operation. Each action has its own registry.
type Action string

const (
	ActionAnalyze Action = "analyze"
	ActionRewrite Action = "rewrite"
)

// AnonymousIdentity buckets every caller without a forwarded address.
const AnonymousIdentity = "anonymous"

var ErrUnknownAction = errors.New("admission: unknown action")

// Policy is the quota configured for one action.
type Policy struct {
	Quota   int
	Window  time.Duration
	Message string
}

func (p Policy) Validate() error {
	if p.Quota <= 0 {
		return fmt.Errorf("quota must be > 0, got %d", p.Quota)
	}
	if p.Window <= 0 {
		return fmt.Errorf("window must be > 0, got %s", p.Window)
	}
	if strings.TrimSpace(p.Message) == "" {
		return errors.New("message is required")
	}
	return nil
}

func DefaultPolicies() map[Action]Policy {
	return map[Action]Policy{
		ActionAnalyze: {
			Quota:   10,
			Window:  time.Minute,
			Message: "Too many analysis requests. Please wait before trying again.",
		},
		ActionRewrite: {
			Quota:   20,
			Window:  time.Minute,
			Message: "Too many rewrite requests. Please wait before trying again.",
		},
	}
}

// Status is a read-only view of one identity's window.
type Status struct {
	Action    Action    `json:"action"`
	Quota     int       `json:"quota"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt,omitzero"`
}

// Limiter owns one registry per action. Build it once per process and hand
// it to whatever needs to admit requests.
type Limiter struct {
	policies   map[Action]Policy
	registries map[Action]WindowStore
	now        func() time.Time
	logger     *zap.Logger
}

type Option func(*limiterOptions)

type limiterOptions struct {
	now    func() time.Time
	store  func(Action) WindowStore
	logger *zap.Logger
}

// WithClock replaces time.Now as the limiter's time source.
func WithClock(now func() time.Time) Option {
	return func(o *limiterOptions) { o.now = now }
}

// WithStoreFactory builds the registry of each action. Defaults to a
// MemoryStore per action.
func WithStoreFactory(factory func(Action) WindowStore) Option {
	return func(o *limiterOptions) { o.store = factory }
}

// WithRedis backs every action with a RedisStore keyed "<prefix>:<action>".
func WithRedis(client *redis.Client, prefix string) Option {
	return func(o *limiterOptions) {
		o.store = func(a Action) WindowStore {
			return NewRedisStore(client, strings.Trim(prefix, ":")+":"+string(a), WithRedisLogger(o.logger))
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *limiterOptions) { o.logger = logger }
}

func NewLimiter(policies map[Action]Policy, opts ...Option) *Limiter {
	o := &limiterOptions{
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = func(Action) WindowStore { return NewMemoryStore() }
	}

	l := &Limiter{
		policies:   make(map[Action]Policy, len(policies)),
		registries: make(map[Action]WindowStore, len(policies)),
		now:        o.now,
		logger:     o.logger,
	}
	for action, policy := range policies {
		l.policies[action] = policy
		l.registries[action] = o.store(action)
	}
	return l
}

// Check admits or rejects one request by identity for action.
func (l *Limiter) Check(ctx context.Context, action Action, identity string) (Decision, error) {
	policy, ok := l.policies[action]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if identity == "" {
		identity = AnonymousIdentity
	}

	dec := l.registries[action].CheckAndRecord(ctx, identity, policy.Quota, policy.Window, l.now())
	if !dec.Allowed {
		l.logger.Debug("admission rejected",
			zap.String("action", string(action)),
			zap.String("identity", identity),
			zap.Int("retry_after", dec.RetryAfterSeconds))
	}
	return dec, nil
}

// Status reports how much of the current window identity has used. An
// expired window reads as unused.
func (l *Limiter) Status(ctx context.Context, action Action, identity string) (Status, error) {
	policy, ok := l.policies[action]
	if !ok {
		return Status{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if identity == "" {
		identity = AnonymousIdentity
	}

	s := Status{Action: action, Quota: policy.Quota, Remaining: policy.Quota}
	st, ok := l.registries[action].Peek(ctx, identity)
	if !ok || l.now().After(st.WindowResetAt) {
		return s, nil
	}
	s.Used = st.Count
	s.Remaining = policy.Quota - st.Count
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	s.ResetAt = st.WindowResetAt
	return s, nil
}

func (l *Limiter) Policy(action Action) (Policy, bool) {
	p, ok := l.policies[action]
	return p, ok
}

// Actions returns the configured actions in name order.
func (l *Limiter) Actions() []Action {
	out := make([]Action, 0, len(l.policies))
	for a := range l.policies {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sweep prunes every sweepable registry of windows that reset more than
// grace ago.
func (l *Limiter) Sweep(grace time.Duration) int {
	cutoff := l.now().Add(-grace)
	removed := 0
	for _, store := range l.registries {
		if s, ok := store.(Sweeper); ok {
			removed += s.Sweep(cutoff)
		}
	}
	return removed
}

// StartJanitor sweeps the registries every interval until ctx is done.
func (l *Limiter) StartJanitor(ctx context.Context, every, grace time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := l.Sweep(grace); n > 0 {
					l.logger.Debug("swept expired windows", zap.Int("removed", n))
				}
			}
		}
	}()
}

// Identity takes the first X-Forwarded-For entry as the caller identity.
// Callers behind a proxy that does not forward per-client addresses share
// one bucket.
func Identity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return AnonymousIdentity
}
