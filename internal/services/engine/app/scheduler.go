package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	platformotel "github.com/louisbranch/moodring/internal/platform/otel"
	"github.com/louisbranch/moodring/internal/services/engine/domain"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTickInterval = time.Minute
	defaultSweepEvery   = 10
	defaultWorkers      = 4
)

// ErrCycleInFlight is returned by RunCycle while another cycle is running.
var ErrCycleInFlight = errors.New("engine cycle already in flight")

// Member update stages, used in logs, metrics and stage errors.
const (
	StageLoad         = "load"
	StageAchievements = "achievements"
	StageReconcile    = "reconcile"
	StagePersist      = "persist"
)

// stageError tags a member failure with the stage that produced it.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string {
	return e.stage + ": " + e.err.Error()
}

func (e *stageError) Unwrap() error {
	return e.err
}

func failStage(stage string, err error) error {
	return &stageError{stage: stage, err: err}
}

// SchedulerConfig controls the tick loop.
type SchedulerConfig struct {
	Interval   time.Duration
	SweepEvery int
	Workers    int
	// Location selects the time-of-day period; nil means UTC.
	Location *time.Location
	// Pipeline defaults to domain.DefaultPipeline.
	Pipeline domain.Pipeline
}

func (c SchedulerConfig) normalized() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = defaultTickInterval
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = defaultSweepEvery
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if len(c.Pipeline) == 0 {
		c.Pipeline = domain.DefaultPipeline()
	}
	return c
}

// SchedulerDeps are the collaborators the scheduler drives.
type SchedulerDeps struct {
	Store        storage.MemberStore
	Presence     PresenceSource
	Rulesets     RulesetProvider
	Triggers     *TriggerEngine
	Chaos        *ChaosEngine
	Achievements *AchievementEngine
	Reconciler   *Reconciler
	Metrics      *Metrics
	Logf         func(string, ...any)
}

// CycleReport summarizes one engine cycle.
type CycleReport struct {
	Cycle       int64
	Communities int
	Members     int
	Failed      int
	Swept       int64
	Started     time.Time
	Finished    time.Time
}

// Scheduler runs engine cycles on a fixed tick. At most one cycle runs at a
// time; ticks that arrive while a cycle is in flight are skipped.
type Scheduler struct {
	cfg  SchedulerConfig
	deps SchedulerDeps
	logf func(string, ...any)
	now  func() time.Time

	tracer   trace.Tracer
	inFlight atomic.Bool
	cycles   atomic.Int64
}

// NewScheduler validates deps and builds a scheduler.
func NewScheduler(deps SchedulerDeps, cfg SchedulerConfig) (*Scheduler, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("member store is required")
	case deps.Presence == nil:
		return nil, fmt.Errorf("presence source is required")
	case deps.Rulesets == nil:
		return nil, fmt.Errorf("ruleset provider is required")
	case deps.Triggers == nil:
		return nil, fmt.Errorf("trigger engine is required")
	case deps.Chaos == nil:
		return nil, fmt.Errorf("chaos engine is required")
	case deps.Achievements == nil:
		return nil, fmt.Errorf("achievement engine is required")
	case deps.Reconciler == nil:
		return nil, fmt.Errorf("reconciler is required")
	}
	logf := deps.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Scheduler{
		cfg:    cfg.normalized(),
		deps:   deps,
		logf:   logf,
		now:    time.Now,
		tracer: platformotel.Tracer("engine/app"),
	}, nil
}

// Run ticks until ctx is cancelled, then waits for the in-flight cycle. The
// in-flight cycle sees the cancelled context and abandons members it has not
// started.
func (s *Scheduler) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.inFlight.CompareAndSwap(false, true) {
				s.deps.Metrics.tickSkipped()
				s.logf("engine tick skipped: previous cycle still running")
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.inFlight.Store(false)
				report, err := s.runCycle(ctx)
				if err != nil {
					s.logf("engine cycle %d failed: %v", report.Cycle, err)
				}
			}()
		}
	}
}

// RunCycle runs one cycle immediately.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.deps.Metrics.tickSkipped()
		return CycleReport{}, ErrCycleInFlight
	}
	defer s.inFlight.Store(false)
	return s.runCycle(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{Cycle: s.cycles.Add(1), Started: s.now().UTC()}
	ctx, span := s.tracer.Start(ctx, "engine.cycle", trace.WithAttributes(attribute.Int64("engine.cycle", report.Cycle)))
	defer span.End()
	defer func() {
		report.Finished = s.now().UTC()
		s.deps.Metrics.observeCycle(report.Finished.Sub(report.Started))
		span.SetAttributes(
			attribute.Int("engine.communities", report.Communities),
			attribute.Int("engine.members", report.Members),
			attribute.Int("engine.failed", report.Failed),
		)
	}()

	if report.Cycle%int64(s.cfg.SweepEvery) == 0 {
		swept, err := s.deps.Triggers.SweepExpired(ctx)
		if err != nil {
			s.logf("engine cycle %d: sweep expired triggers: %v", report.Cycle, err)
		} else {
			report.Swept = swept
			s.deps.Metrics.triggersSwept(swept)
		}
	}

	communities, err := s.deps.Presence.ListCommunities(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list communities")
		return report, fmt.Errorf("list communities: %w", err)
	}

	now := report.Started
	for _, communityID := range communities {
		if ctx.Err() != nil {
			break
		}
		members, failed, ok := s.runCommunity(ctx, report.Cycle, communityID, now)
		if ok {
			report.Communities++
		}
		report.Members += members
		report.Failed += failed
	}
	return report, nil
}

// runCommunity updates every eligible member of one community. Community-level
// failures are logged and skip only this community.
func (s *Scheduler) runCommunity(ctx context.Context, cycle int64, communityID string, now time.Time) (members, failed int, ok bool) {
	ctx, span := s.tracer.Start(ctx, "engine.community", trace.WithAttributes(attribute.String("engine.community", communityID)))
	defer span.End()

	rules, err := s.deps.Rulesets.Ruleset(ctx, communityID)
	if err != nil {
		s.logf("engine cycle %d: community=%s: load ruleset: %v", cycle, communityID, err)
		span.RecordError(err)
		return 0, 0, false
	}
	present, err := s.deps.Presence.ListPresent(ctx, communityID)
	if err != nil {
		s.logf("engine cycle %d: community=%s: list presence: %v", cycle, communityID, err)
		span.RecordError(err)
		return 0, 0, false
	}
	var triggers []domain.Trigger
	if rules.Features.Stats {
		triggers, err = s.deps.Triggers.ActiveAt(ctx, communityID, now)
		if err != nil {
			s.logf("engine cycle %d: community=%s: list triggers: %v", cycle, communityID, err)
			span.RecordError(err)
			return 0, 0, false
		}
	}

	local := now.In(s.cfg.Location)
	tick := memberTick{
		rules:    rules,
		triggers: triggers,
		now:      now,
		hour:     local.Hour(),
		period:   domain.PeriodForHour(local.Hour()),
	}

	var (
		group      errgroup.Group
		failures   atomic.Int64
		dispatched int
	)
	group.SetLimit(s.cfg.Workers)
	for _, presence := range present {
		if !presence.Eligible() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		dispatched++
		group.Go(func() error {
			s.deps.Metrics.memberTicked()
			if err := s.updateMember(ctx, communityID, presence, tick); err != nil {
				failures.Add(1)
				stage, cause := "unknown", err
				var se *stageError
				if errors.As(err, &se) {
					stage, cause = se.stage, se.err
				}
				s.deps.Metrics.memberFailed(stage)
				s.logf("engine cycle %d: community=%s member=%s stage=%s: %v", cycle, communityID, presence.MemberID, stage, cause)
			}
			return nil
		})
	}
	_ = group.Wait()
	span.SetAttributes(attribute.Int("engine.members", dispatched))
	return dispatched, int(failures.Load()), true
}

type memberTick struct {
	rules    domain.Ruleset
	triggers []domain.Trigger
	now      time.Time
	hour     int
	period   domain.Period
}

// updateMember runs the member pipeline: load, stats, chaos, progress,
// achievements, reconciliation, persist. Achievement and reconciliation
// failures do not stop the row from being persisted; the first one is
// returned after the write.
func (s *Scheduler) updateMember(ctx context.Context, communityID string, presence domain.Presence, tick memberTick) error {
	record, err := s.deps.Store.GetMember(ctx, communityID, presence.MemberID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		record = storage.MemberRecord{
			State:    domain.NewMemberState(communityID, presence.MemberID),
			Progress: domain.NewMemberProgress(communityID, presence.MemberID),
		}
	case err != nil:
		return failStage(StageLoad, err)
	}
	state := record.State
	rules := tick.rules

	if rules.Features.Stats {
		state = s.cfg.Pipeline.Run(state, domain.PassInput{
			Context:  presence.ModifierContext(),
			Hour:     tick.hour,
			Triggers: tick.triggers,
			Now:      tick.now,
		})
	}

	s.deps.Chaos.Expire(&state, tick.now)
	if rules.Features.Chaos {
		if rule, granted := s.deps.Chaos.Roll(&state, rules.ChaosPool(), tick.now); granted {
			s.deps.Metrics.chaosGranted()
			s.logf("chaos role granted: community=%s member=%s role=%s until=%s",
				communityID, presence.MemberID, rule.RoleID, state.ChaosExpires.Format(time.RFC3339))
		}
	}

	record.Progress.CommunityID = communityID
	record.Progress.MemberID = presence.MemberID
	record.Progress.Observe(state, s.cfg.Interval, presence.InVoice())

	var (
		rewards  []string
		stageErr error
	)
	if rules.Features.Achievements {
		unlocked, err := s.deps.Achievements.Evaluate(ctx, state, record.Progress, rules)
		for _, u := range unlocked {
			s.deps.Metrics.achievementUnlocked(u.Achievement.ID)
			if u.RewardRole != "" {
				rewards = append(rewards, u.RewardRole)
			}
		}
		if err != nil {
			stageErr = failStage(StageAchievements, err)
		}
		earned, err := s.deps.Achievements.RewardRoles(ctx, communityID, presence.MemberID, rules)
		switch {
		case err != nil && stageErr == nil:
			stageErr = failStage(StageAchievements, err)
		case err == nil:
			rewards = append(rewards, earned...)
		}
	}

	if rules.Features.Roles {
		desired := domain.DesiredRoles(state, rules, tick.period, tick.now, rewards)
		if _, err := s.deps.Reconciler.Reconcile(ctx, &state, rules, desired, tick.now); err != nil && stageErr == nil {
			stageErr = failStage(StageReconcile, err)
		}
	}

	record.State = state
	if err := s.deps.Store.PutMember(ctx, record); err != nil {
		return failStage(StagePersist, err)
	}
	return stageErr
}

// Config returns the normalized scheduler configuration.
func (s *Scheduler) Config() SchedulerConfig {
	return s.cfg
}
