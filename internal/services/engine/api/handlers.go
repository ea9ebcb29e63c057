package api

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/louisbranch/moodring/internal/services/engine/domain"
	"github.com/louisbranch/moodring/internal/services/engine/storage"
)

type handlers struct {
	triggers TriggerService
	members  MemberReader
}

type triggerResponse struct {
	ID          string     `json:"id"`
	CommunityID string     `json:"community_id"`
	Name        string     `json:"name"`
	Stat        string     `json:"stat"`
	Modifier    float64    `json:"modifier"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Active      bool       `json:"active"`
}

func newTriggerResponse(t domain.Trigger) triggerResponse {
	return triggerResponse{
		ID:          t.ID,
		CommunityID: t.CommunityID,
		Name:        t.Name,
		Stat:        t.Stat.String(),
		Modifier:    t.Modifier,
		CreatedAt:   t.CreatedAt,
		ExpiresAt:   t.ExpiresAt,
		Active:      t.Active,
	}
}

type createTriggerRequest struct {
	Name            string   `json:"name"`
	Stat            string   `json:"stat"`
	Modifier        float64  `json:"modifier"`
	DurationMinutes *float64 `json:"duration_minutes"`
}

func (h *handlers) listTriggers(c *fiber.Ctx) error {
	communityID := strings.TrimSpace(c.Params("community"))
	var (
		triggers []domain.Trigger
		err      error
	)
	if c.QueryBool("active", false) {
		triggers, err = h.triggers.ListActive(c.UserContext(), communityID)
	} else {
		triggers, err = h.triggers.List(c.UserContext(), communityID)
	}
	if err != nil {
		return err
	}
	out := make([]triggerResponse, 0, len(triggers))
	for _, trigger := range triggers {
		out = append(out, newTriggerResponse(trigger))
	}
	return c.JSON(fiber.Map{"triggers": out})
}

func (h *handlers) createTrigger(c *fiber.Ctx) error {
	communityID := strings.TrimSpace(c.Params("community"))
	var req createTriggerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}
	stat, err := domain.ParseStat(req.Stat)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if math.IsNaN(req.Modifier) || math.IsInf(req.Modifier, 0) {
		return fiber.NewError(fiber.StatusBadRequest, "modifier must be finite")
	}
	var duration *time.Duration
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "duration_minutes must be positive")
		}
		d := time.Duration(*req.DurationMinutes * float64(time.Minute))
		duration = &d
	}

	triggerID, err := h.triggers.Create(c.UserContext(), communityID, req.Name, stat, req.Modifier, duration)
	if err != nil {
		return err
	}
	trigger, err := h.triggers.Get(c.UserContext(), triggerID)
	if err != nil {
		return fmt.Errorf("load created trigger: %w", err)
	}
	return c.Status(fiber.StatusCreated).JSON(newTriggerResponse(trigger))
}

func (h *handlers) getTrigger(c *fiber.Ctx) error {
	trigger, err := h.triggers.Get(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return err
	}
	return c.JSON(newTriggerResponse(trigger))
}

func (h *handlers) deactivateTrigger(c *fiber.Ctx) error {
	changed, err := h.triggers.Deactivate(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"changed": changed})
}

type memberResponse struct {
	CommunityID    string    `json:"community_id"`
	MemberID       string    `json:"member_id"`
	Mood           float64   `json:"mood"`
	Energy         float64   `json:"energy"`
	Activity       float64   `json:"activity"`
	ChaosRole      string    `json:"chaos_role,omitempty"`
	AppliedRoles   []string  `json:"applied_roles"`
	VoiceMinutes   float64   `json:"voice_minutes"`
	OnlineMinutes  float64   `json:"online_minutes"`
	Achievements   []string  `json:"achievements"`
	LastRoleUpdate time.Time `json:"last_role_update"`
}

func (h *handlers) getMember(c *fiber.Ctx) error {
	communityID := strings.TrimSpace(c.Params("community"))
	memberID := strings.TrimSpace(c.Params("member"))
	record, err := h.members.GetMember(c.UserContext(), communityID, memberID)
	if err != nil {
		return err
	}
	unlocks, err := h.members.ListUnlocks(c.UserContext(), communityID, memberID)
	if err != nil {
		return err
	}
	achievements := make([]string, 0, len(unlocks))
	for _, unlock := range unlocks {
		achievements = append(achievements, unlock.AchievementID)
	}
	applied := record.State.AppliedRoles
	if applied == nil {
		applied = []string{}
	}
	return c.JSON(memberResponse{
		CommunityID:    record.State.CommunityID,
		MemberID:       record.State.MemberID,
		Mood:           record.State.Mood,
		Energy:         record.State.Energy,
		Activity:       record.State.Activity,
		ChaosRole:      record.State.ChaosRole,
		AppliedRoles:   applied,
		VoiceMinutes:   record.Progress.VoiceMinutes,
		OnlineMinutes:  record.Progress.OnlineMinutes,
		Achievements:   achievements,
		LastRoleUpdate: record.State.LastRoleUpdate,
	})
}

var _ MemberReader = (storage.Store)(nil)
