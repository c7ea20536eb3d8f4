// Package weather evaluates official advisories, air quality and admin
// threshold rules against live readings and raises alerts through the
// fan-out engine.
package weather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"skyguard/internal/alerting"
	"skyguard/internal/external"
	"skyguard/internal/types"
)

// Defaults for Options.
const (
	DefaultCooldown     = time.Hour
	DefaultFetchTimeout = 10 * time.Second
	DefaultAQIThreshold = 4
	DefaultMaxParallel  = 4

	// equalsEpsilon is the tolerance of the "equals" operator.
	equalsEpsilon = 1.0
)

// Trigger kinds reported in CycleResult.
const (
	KindOfficial   = "official"
	KindAirQuality = "air_quality"
	KindCustom     = "custom"
)

// RuleSource lists the rules to evaluate. db.WeatherRuleRepository
// implements it.
type RuleSource interface {
	ListActive(ctx context.Context) ([]types.WeatherAlertRule, error)
}

// TriggerLog is the de-duplication ledger. db.WeatherLogRepository
// implements it.
type TriggerLog interface {
	ExistsByTriggerKey(ctx context.Context, key string) (bool, error)
	ExistsSince(ctx context.Context, key string, since time.Time) (bool, error)
	ExistsForRuleSince(ctx context.Context, ruleID string, since time.Time) (bool, error)
	Create(ctx context.Context, entry *types.WeatherAlertLog) error
}

// AlertSender raises alerts. *alerting.Engine implements it.
type AlertSender interface {
	SendAlert(ctx context.Context, req alerting.SendRequest) (*alerting.SendResult, error)
}

// Options tunes an Evaluator. Zero values take the package defaults.
type Options struct {
	Cooldown     time.Duration
	FetchTimeout time.Duration
	AQIThreshold int
	MaxParallel  int
}

// Trigger describes one alert raised during a cycle.
type Trigger struct {
	Location   string `json:"location"`
	Kind       string `json:"type"`
	Label      string `json:"alert"`
	AlertID    string `json:"alert_id"`
	Recipients int    `json:"recipients"`
}

// LocationError records a location whose processing failed.
type LocationError struct {
	Location string `json:"location"`
	Error    string `json:"error"`
}

// CycleResult summarizes one RunCycle.
type CycleResult struct {
	LocationsChecked int             `json:"locations_checked"`
	RulesChecked     int             `json:"rules_checked"`
	AlertsCreated    int             `json:"alerts_created"`
	Suppressed       int             `json:"suppressed"`
	Failures         int             `json:"failures"`
	Results          []Trigger       `json:"results"`
	Errors           []LocationError `json:"errors,omitempty"`
}

// Evaluator runs weather evaluation cycles. It holds no cycle state, so
// overlapping cycles are safe; the trigger log is the only guard against
// duplicate alerts.
type Evaluator struct {
	provider external.WeatherProvider
	rules    RuleSource
	logs     TriggerLog
	sender   AlertSender
	clock    types.Clock
	logger   *slog.Logger
	opts     Options
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(provider external.WeatherProvider, rules RuleSource, logs TriggerLog, sender AlertSender, clock types.Clock, logger *slog.Logger, opts Options) *Evaluator {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.AQIThreshold <= 0 {
		opts.AQIThreshold = DefaultAQIThreshold
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	return &Evaluator{
		provider: provider,
		rules:    rules,
		logs:     logs,
		sender:   sender,
		clock:    clock,
		logger:   logger,
		opts:     opts,
	}
}

// reading is everything fetched for one location.
type reading struct {
	loc        types.Location
	conditions *types.Conditions
	advisories []types.Advisory
	air        *types.AirQuality
	err        error
}

// RunCycle evaluates every location once. Only a failure to load the rule
// set is returned; per-location failures are logged and counted.
//
// Readings are fetched concurrently. Triggers are then processed one
// location at a time so that a rule matching several locations fires once
// per cooldown window.
func (e *Evaluator) RunCycle(ctx context.Context, locations []types.Location) (*CycleResult, error) {
	ctx = types.WithActor(ctx, types.SystemActor())

	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	readings := e.fetchAll(ctx, locations)

	res := &CycleResult{
		LocationsChecked: len(locations),
		RulesChecked:     len(rules),
		Results:          []Trigger{},
	}
	for _, rd := range readings {
		if rd.err != nil {
			e.fail(ctx, res, rd.loc.Name, rd.err)
			continue
		}
		if err := e.processLocation(ctx, res, rd, rules); err != nil {
			e.fail(ctx, res, rd.loc.Name, err)
		}
	}

	e.logger.InfoContext(ctx, "weather cycle complete",
		"locations", res.LocationsChecked,
		"rules", res.RulesChecked,
		"alerts_created", res.AlertsCreated,
		"suppressed", res.Suppressed,
		"failures", res.Failures,
	)
	return res, nil
}

func (e *Evaluator) fail(ctx context.Context, res *CycleResult, location string, err error) {
	res.Failures++
	res.Errors = append(res.Errors, LocationError{Location: location, Error: err.Error()})
	e.logger.ErrorContext(ctx, "weather evaluation failed for location", "location", location, "error", err)
}

// fetchAll reads every location with bounded parallelism. Each goroutine
// writes only its own slot and never returns an error, so one location
// cannot cancel the others.
func (e *Evaluator) fetchAll(ctx context.Context, locations []types.Location) []reading {
	out := make([]reading, len(locations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxParallel)
	for i, loc := range locations {
		g.Go(func() error {
			out[i] = e.fetch(gctx, loc)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Evaluator) fetch(ctx context.Context, loc types.Location) reading {
	rd := reading{loc: loc}

	cctx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	rd.conditions, rd.err = e.provider.Current(cctx, loc.Lat, loc.Lon)
	cancel()
	if rd.err != nil {
		return rd
	}

	// Advisories and air quality are optional feeds.
	actx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	adv, err := e.provider.Advisories(actx, loc.Lat, loc.Lon)
	cancel()
	if err != nil {
		e.logger.DebugContext(ctx, "advisories unavailable", "location", loc.Name, "error", err)
	}
	rd.advisories = adv

	qctx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	air, err := e.provider.AirQuality(qctx, loc.Lat, loc.Lon)
	cancel()
	if err != nil {
		e.logger.DebugContext(ctx, "air quality unavailable", "location", loc.Name, "error", err)
	}
	rd.air = air
	return rd
}

func (e *Evaluator) processLocation(ctx context.Context, res *CycleResult, rd reading, rules []types.WeatherAlertRule) error {
	name := rd.loc.Name
	snapshot := e.snapshot(rd)

	for _, adv := range rd.advisories {
		key := OfficialKey(name, adv)
		seen, err := e.logs.ExistsByTriggerKey(ctx, key)
		if err != nil {
			return err
		}
		if seen {
			res.Suppressed++
			continue
		}
		req := alerting.SendRequest{
			Type:       types.AlertTypeWeather,
			Title:      types.Truncate("Weather Warning: "+adv.Event, types.MaxTitleLength),
			Message:    types.Truncate(officialMessage(name, adv), types.MaxMessageLength),
			Priority:   types.PriorityCritical,
			Recipients: types.TargetAll,
			Source:     "weather_monitor",
		}
		if err := e.fire(ctx, res, rd, snapshot, req, key, nil, KindOfficial, "Official: "+adv.Event); err != nil {
			return err
		}
	}

	if rd.air != nil && rd.air.AQI >= e.opts.AQIThreshold {
		key := AirQualityKey(name)
		recent, err := e.logs.ExistsSince(ctx, key, e.clock.Now().Add(-e.opts.Cooldown))
		if err != nil {
			return err
		}
		if recent {
			res.Suppressed++
		} else {
			priority := types.PriorityHigh
			if rd.air.AQI >= 5 {
				priority = types.PriorityCritical
			}
			req := alerting.SendRequest{
				Type:       types.AlertTypeWeather,
				Title:      "Air Quality Alert: " + rd.air.Level(),
				Message:    airQualityMessage(name, *rd.air),
				Priority:   priority,
				Recipients: types.TargetAll,
				Source:     "weather_monitor",
			}
			if err := e.fire(ctx, res, rd, snapshot, req, key, nil, KindAirQuality, "Air Quality: "+rd.air.Level()); err != nil {
				return err
			}
		}
	}

	for _, rule := range rules {
		if !MatchesLocation(rule, name) {
			continue
		}
		value, ok := CurrentValue(rule.AlertType, rd.conditions, rd.air)
		if !ok || !Evaluate(rule.ConditionOperator, value, rule.ThresholdValue) {
			continue
		}
		recent, err := e.logs.ExistsForRuleSince(ctx, rule.ID, e.clock.Now().Add(-e.opts.Cooldown))
		if err != nil {
			return err
		}
		if recent {
			res.Suppressed++
			e.logger.DebugContext(ctx, "rule in cooldown", "rule_id", rule.ID, "location", name)
			continue
		}
		ruleID := rule.ID
		req := alerting.SendRequest{
			Type:       types.AlertTypeWeather,
			Title:      types.Truncate("Weather Alert: "+rule.AlertTitle, types.MaxTitleLength),
			Message:    types.Truncate(ruleMessage(rule, name, rd.conditions, rd.air), types.MaxMessageLength),
			Priority:   types.PriorityHigh,
			Recipients: types.TargetAll,
			Source:     "weather_monitor",
		}
		if err := e.fire(ctx, res, rd, snapshot, req, RuleKey(rule.ID), &ruleID, KindCustom, rule.AlertTitle); err != nil {
			return err
		}
	}
	return nil
}

// fire sends the alert and records it in the trigger log. A send failure
// aborts the location; a log failure is reported but the alert stands.
func (e *Evaluator) fire(ctx context.Context, res *CycleResult, rd reading, snapshot map[string]any, req alerting.SendRequest,
	key string, ruleID *string, kind, label string) error {
	sent, err := e.sender.SendAlert(ctx, req)
	if err != nil {
		return fmt.Errorf("sending %s alert %q: %w", kind, label, err)
	}

	data := make(map[string]any, len(snapshot)+1)
	for k, v := range snapshot {
		data[k] = v
	}
	data["trigger_key"] = key
	alertID := sent.AlertID
	entry := &types.WeatherAlertLog{
		WeatherAlertID:     ruleID,
		AlertID:            &alertID,
		TriggerKey:         key,
		WeatherData:        data,
		AffectedUsersCount: sent.RecipientCount,
	}
	if err := e.logs.Create(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "failed to record weather trigger; a duplicate may follow",
			"trigger_key", key, "alert_id", alertID, "error", err)
	}

	res.AlertsCreated++
	res.Results = append(res.Results, Trigger{
		Location:   rd.loc.Name,
		Kind:       kind,
		Label:      label,
		AlertID:    alertID,
		Recipients: sent.RecipientCount,
	})
	e.logger.InfoContext(ctx, "weather alert triggered",
		"location", rd.loc.Name, "kind", kind, "alert", label, "alert_id", alertID)
	return nil
}

func (e *Evaluator) snapshot(rd reading) map[string]any {
	s := map[string]any{
		"location":    rd.loc.Name,
		"coordinates": map[string]float64{"lat": rd.loc.Lat, "lon": rd.loc.Lon},
		"temperature": rd.conditions.Temperature,
		"humidity":    rd.conditions.Humidity,
		"wind_speed":  rd.conditions.WindSpeed,
		"conditions":  rd.conditions.Description,
		"observed_at": e.clock.Now().Format(time.RFC3339),
	}
	if rd.air != nil {
		s["air_quality"] = map[string]any{"aqi": rd.air.AQI, "pm2_5": rd.air.PM25, "pm10": rd.air.PM10}
	}
	return s
}

// CurrentConditions returns the observation at a point.
func (e *Evaluator) CurrentConditions(ctx context.Context, lat, lon float64) (*types.Conditions, error) {
	if err := types.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	defer cancel()
	return e.provider.Current(cctx, lat, lon)
}

// OfficialKey identifies an advisory instance at a location.
func OfficialKey(location string, adv types.Advisory) string {
	return fmt.Sprintf("%s-%s-%d", location, adv.Event, adv.Start.Unix())
}

// AirQualityKey identifies the air-quality trigger of a location.
func AirQualityKey(location string) string {
	return "air_quality:" + location
}

// RuleKey identifies a custom rule trigger.
func RuleKey(ruleID string) string {
	return "rule:" + ruleID
}

// MatchesLocation reports whether the rule applies to the named location:
// an empty filter matches everywhere, otherwise a case-insensitive
// substring match.
func MatchesLocation(rule types.WeatherAlertRule, location string) bool {
	if rule.LocationFilter == nil || strings.TrimSpace(*rule.LocationFilter) == "" {
		return true
	}
	return strings.Contains(strings.ToLower(location), strings.ToLower(strings.TrimSpace(*rule.LocationFilter)))
}

// CurrentValue extracts the reading a rule type compares against. Storm
// rules have no numeric reading and report ok=false. Missing air-quality
// data reads as 0.
func CurrentValue(t types.RuleType, c *types.Conditions, air *types.AirQuality) (float64, bool) {
	switch t {
	case types.RuleTemperature:
		return c.Temperature, true
	case types.RuleWind:
		return c.WindSpeed, true
	case types.RuleHumidity:
		return c.Humidity, true
	case types.RuleAirQuality:
		if air == nil {
			return 0, true
		}
		return float64(air.AQI), true
	}
	return 0, false
}

// Evaluate applies op to value and threshold.
func Evaluate(op types.ConditionOperator, value, threshold float64) bool {
	switch op {
	case types.OpGreaterThan:
		return value > threshold
	case types.OpLessThan:
		return value < threshold
	case types.OpEquals:
		d := value - threshold
		return d < equalsEpsilon && d > -equalsEpsilon
	}
	return false
}

func officialMessage(location string, adv types.Advisory) string {
	return fmt.Sprintf("OFFICIAL WEATHER ALERT\n\nEvent: %s\nIssued by: %s\n\nLocation: %s\nStart: %s\nEnd: %s\n\nDescription: %s",
		adv.Event, adv.SenderName, location,
		adv.Start.Format(time.RFC1123), adv.End.Format(time.RFC1123),
		adv.Description)
}

func airQualityMessage(location string, aq types.AirQuality) string {
	advice := "Limit prolonged outdoor exertion"
	if aq.AQI >= 5 {
		advice = "Avoid outdoor activities"
	}
	return fmt.Sprintf("AIR QUALITY ALERT\n\nAir Quality Index: %d (%s)\nLocation: %s\n\nPM2.5: %.1f μg/m³\nPM10: %.1f μg/m³\n\nRecommendation: %s",
		aq.AQI, aq.Level(), location, aq.PM25, aq.PM10, advice)
}

func ruleMessage(rule types.WeatherAlertRule, location string, c *types.Conditions, air *types.AirQuality) string {
	var b strings.Builder
	b.WriteString(rule.AlertMessage)
	fmt.Fprintf(&b, "\n\nCurrent conditions in %s:\nTemperature: %.0f°F\nWind: %.0f mph\nHumidity: %.0f%%",
		location, c.Temperature, c.WindSpeed, c.Humidity)
	if air != nil {
		fmt.Fprintf(&b, "\nAir Quality: %d", air.AQI)
	}
	return b.String()
}
