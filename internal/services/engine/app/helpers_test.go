package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/moodring/internal/services/engine/domain"
	"github.com/louisbranch/moodring/internal/services/engine/gateway/memory"
	enginesqlite "github.com/louisbranch/moodring/internal/services/engine/storage/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	_ PresenceSource    = (*memory.Gateway)(nil)
	_ RoleClient        = (*memory.Gateway)(nil)
	_ RoleCreator       = (*memory.Gateway)(nil)
	_ OperationRecorder = (*fakeRecorder)(nil)
)

var testNow = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

func openTempStore(t *testing.T) *enginesqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	store, err := enginesqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open engine store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close engine store: %v", err)
		}
	})
	return store
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []domain.OperationResult
}

func (r *fakeRecorder) RecordOperation(_ context.Context, result domain.OperationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *fakeRecorder) snapshot() []domain.OperationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.OperationResult(nil), r.results...)
}

type logSink struct {
	mu    sync.Mutex
	lines []string
}

func (l *logSink) logf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *logSink) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

type rulesetFunc func(ctx context.Context, communityID string) (domain.Ruleset, error)

func (f rulesetFunc) Ruleset(ctx context.Context, communityID string) (domain.Ruleset, error) {
	return f(ctx, communityID)
}

func staticRules(ruleset domain.Ruleset) RulesetProvider {
	return rulesetFunc(func(context.Context, string) (domain.Ruleset, error) {
		return ruleset, nil
	})
}

// testRuleset manages two mood bands, one chaos role and one reward. Stats are
// off unless a test enables them so mood stays at the midpoint.
func testRuleset(features domain.Features) domain.Ruleset {
	return domain.NewRuleset("test", features, []domain.RoleRule{
		{Category: domain.CategoryMood, RoleID: "r-happy", Name: "Happy", Min: 60, Max: 100},
		{Category: domain.CategoryMood, RoleID: "r-sad", Name: "Sad", Min: 0, Max: 59.99},
		{Category: domain.CategoryChaos, RoleID: "r-gremlin", Name: "Gremlin", Temporary: true, Duration: 30 * time.Minute},
	}, map[string]string{"voice_1h": "r-voice"})
}

func rolesOnly() domain.Features {
	return domain.Features{Achievements: true, Roles: true}
}

type harness struct {
	gateway   *memory.Gateway
	store     *enginesqlite.Store
	recorder  *fakeRecorder
	logs      *logSink
	metrics   *Metrics
	scheduler *Scheduler
	clock     time.Time
}

type harnessOptions struct {
	rules    RulesetProvider
	chaos    ChaosConfig
	presence PresenceSource
	// workers of 0 keeps the scheduler default.
	workers int
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	h := &harness{
		gateway:  memory.New(),
		store:    openTempStore(t),
		recorder: &fakeRecorder{},
		logs:     &logSink{},
		metrics:  NewMetrics(prometheus.NewRegistry()),
		clock:    testNow,
	}
	if opts.rules == nil {
		opts.rules = staticRules(testRuleset(rolesOnly()))
	}
	var presence PresenceSource = h.gateway
	if opts.presence != nil {
		presence = opts.presence
	}
	chaos, err := NewChaosEngine(opts.chaos, fixedSource())
	if err != nil {
		t.Fatalf("new chaos engine: %v", err)
	}
	achievements, err := NewAchievementEngine(h.store, nil)
	if err != nil {
		t.Fatalf("new achievement engine: %v", err)
	}
	triggers := NewTriggerEngine(h.store)
	triggers.now = func() time.Time { return h.clock }
	scheduler, err := NewScheduler(SchedulerDeps{
		Store:        h.store,
		Presence:     presence,
		Rulesets:     opts.rules,
		Triggers:     triggers,
		Chaos:        chaos,
		Achievements: achievements,
		Reconciler:   NewReconciler(h.gateway, h.recorder, h.metrics, 30*time.Second, h.logs.logf),
		Metrics:      h.metrics,
		Logf:         h.logs.logf,
	}, SchedulerConfig{Workers: opts.workers})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	scheduler.now = func() time.Time { return h.clock }
	h.scheduler = scheduler
	return h
}

func (h *harness) cycle(t *testing.T) CycleReport {
	t.Helper()
	report, err := h.scheduler.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	return report
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func online(memberID string) domain.Presence {
	return domain.Presence{MemberID: memberID, Status: domain.StatusOnline}
}

func sameRoles(got []string, want ...string) bool {
	return strings.Join(got, ",") == strings.Join(want, ",")
}
