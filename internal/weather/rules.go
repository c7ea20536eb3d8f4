package weather

import (
	"context"
	"fmt"
	"log/slog"

	"skyguard/internal/types"
)

// maxFilterLength bounds the optional location filter.
const maxFilterLength = 100

// RuleStore persists weather rules. db.WeatherRuleRepository implements it.
type RuleStore interface {
	List(ctx context.Context) ([]types.WeatherAlertRule, error)
	GetByID(ctx context.Context, id string) (*types.WeatherAlertRule, error)
	Create(ctx context.Context, rule *types.WeatherAlertRule) error
	Update(ctx context.Context, rule *types.WeatherAlertRule) error
	SetActive(ctx context.Context, id string, active bool) (*types.WeatherAlertRule, error)
	Delete(ctx context.Context, id string) error
}

// Auditor records admin actions. *audit.Monitor implements it.
type Auditor interface {
	AdminAction(ctx context.Context, actor types.Actor, action string, details map[string]any)
}

// RuleInput is the editable part of a rule.
type RuleInput struct {
	AlertType         types.RuleType          `json:"alert_type"`
	ConditionOperator types.ConditionOperator `json:"condition_operator"`
	ThresholdValue    float64                 `json:"threshold_value"`
	LocationFilter    *string                 `json:"location_filter,omitempty"`
	IsActive          *bool                   `json:"is_active,omitempty"`
	AlertTitle        string                  `json:"alert_title"`
	AlertMessage      string                  `json:"alert_message"`
}

// RuleService manages rules on behalf of admins. Every change is audited.
type RuleService struct {
	store   RuleStore
	auditor Auditor
	logger  *slog.Logger
}

// NewRuleService creates a RuleService.
func NewRuleService(store RuleStore, auditor Auditor, logger *slog.Logger) *RuleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleService{store: store, auditor: auditor, logger: logger}
}

// List returns every rule, active or not.
func (s *RuleService) List(ctx context.Context) ([]types.WeatherAlertRule, error) {
	return s.store.List(ctx)
}

// Create validates in and stores a new rule. Rules start active unless
// in.IsActive says otherwise.
func (s *RuleService) Create(ctx context.Context, in RuleInput) (*types.WeatherAlertRule, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	rule, err := buildRule(in)
	if err != nil {
		return nil, err
	}
	if actor.Type == types.ActorTypeUser {
		id := actor.ID
		rule.CreatedBy = &id
	}
	if err := s.store.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, types.ActionRuleCreated, rule)
	return rule, nil
}

// Update replaces the editable fields of rule id.
func (s *RuleService) Update(ctx context.Context, id string, in RuleInput) (*types.WeatherAlertRule, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	rule, err := buildRule(in)
	if err != nil {
		return nil, err
	}
	rule.ID = id
	if in.IsActive == nil {
		existing, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		rule.IsActive = existing.IsActive
	}
	if err := s.store.Update(ctx, rule); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, types.ActionRuleUpdated, rule)
	return rule, nil
}

// Toggle flips the active flag of rule id.
func (s *RuleService) Toggle(ctx context.Context, id string) (*types.WeatherAlertRule, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rule, err := s.store.SetActive(ctx, id, !existing.IsActive)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, types.ActionRuleToggled, rule)
	return rule, nil
}

// Delete removes rule id.
func (s *RuleService) Delete(ctx context.Context, id string) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.auditor != nil {
		s.auditor.AdminAction(ctx, actor, types.ActionRuleDeleted, map[string]any{"rule_id": id})
	}
	return nil
}

func (s *RuleService) audit(ctx context.Context, actor types.Actor, action string, rule *types.WeatherAlertRule) {
	if s.auditor == nil {
		return
	}
	s.auditor.AdminAction(ctx, actor, action, map[string]any{
		"rule_id":            rule.ID,
		"alert_type":         string(rule.AlertType),
		"condition_operator": string(rule.ConditionOperator),
		"threshold_value":    rule.ThresholdValue,
		"is_active":          rule.IsActive,
	})
}

func requireActor(ctx context.Context) (types.Actor, error) {
	actor, ok := types.GetActor(ctx)
	if !ok || actor.ID == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil)
	}
	return actor, nil
}

func buildRule(in RuleInput) (*types.WeatherAlertRule, error) {
	if !in.AlertType.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationRule, fmt.Sprintf("Invalid rule type %q", in.AlertType), nil)
	}
	if !in.ConditionOperator.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationRule, fmt.Sprintf("Invalid operator %q", in.ConditionOperator), nil)
	}
	title, err := types.ValidateTitle(in.AlertTitle)
	if err != nil {
		return nil, err
	}
	message, err := types.ValidateMessage(in.AlertMessage)
	if err != nil {
		return nil, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return &types.WeatherAlertRule{
		AlertType:         in.AlertType,
		ConditionOperator: in.ConditionOperator,
		ThresholdValue:    in.ThresholdValue,
		LocationFilter:    types.OptionalText(in.LocationFilter, maxFilterLength),
		IsActive:          active,
		AlertTitle:        title,
		AlertMessage:      message,
	}, nil
}
