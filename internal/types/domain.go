package types

import "time"

// Profile is a user in the directory. Identity is owned by the external
// identity provider; SkyGuard stores role and contact details.
type Profile struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Email       *string   `json:"email,omitempty"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	Role        UserRole  `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasPhone reports whether the profile has a non-empty phone number.
func (p *Profile) HasPhone() bool {
	return p.PhoneNumber != nil && *p.PhoneNumber != ""
}

// HasEmail reports whether the profile has a non-empty email address.
func (p *Profile) HasEmail() bool {
	return p.Email != nil && *p.Email != ""
}

// Preferences holds a user's per-type and per-channel opt-in flags.
type Preferences struct {
	UserID          string    `json:"user_id"`
	EmergencyAlerts bool      `json:"emergency_alerts"`
	WeatherAlerts   bool      `json:"weather_alerts"`
	CompanyAlerts   bool      `json:"company_alerts"`
	SystemAlerts    bool      `json:"system_alerts"`
	SMSEnabled      bool      `json:"sms_enabled"`
	PushEnabled     bool      `json:"push_enabled"`
	EmailEnabled    bool      `json:"email_enabled"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultPreferences returns the all-enabled preference set created for users
// without a stored row.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:          userID,
		EmergencyAlerts: true,
		WeatherAlerts:   true,
		CompanyAlerts:   true,
		SystemAlerts:    true,
		SMSEnabled:      true,
		PushEnabled:     true,
		EmailEnabled:    true,
	}
}

// AllowsType reports whether the per-type flag for t is set.
func (p Preferences) AllowsType(t AlertType) bool {
	switch t {
	case AlertTypeEmergency:
		return p.EmergencyAlerts
	case AlertTypeWeather:
		return p.WeatherAlerts
	case AlertTypeCompany:
		return p.CompanyAlerts
	case AlertTypeSystem:
		return p.SystemAlerts
	}
	return false
}

// ChannelEnabled reports whether the flag for channel m is set.
// In-app "system" delivery is always enabled.
func (p Preferences) ChannelEnabled(m DeliveryMethod) bool {
	switch m {
	case DeliverySMS:
		return p.SMSEnabled
	case DeliveryPush:
		return p.PushEnabled
	case DeliveryEmail:
		return p.EmailEnabled
	case DeliverySystem:
		return true
	}
	return false
}

// PreferencesPatch is a partial update. Nil fields are left unchanged.
type PreferencesPatch struct {
	EmergencyAlerts *bool `json:"emergency_alerts,omitempty"`
	WeatherAlerts   *bool `json:"weather_alerts,omitempty"`
	CompanyAlerts   *bool `json:"company_alerts,omitempty"`
	SystemAlerts    *bool `json:"system_alerts,omitempty"`
	SMSEnabled      *bool `json:"sms_enabled,omitempty"`
	PushEnabled     *bool `json:"push_enabled,omitempty"`
	EmailEnabled    *bool `json:"email_enabled,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p PreferencesPatch) IsEmpty() bool {
	return p.EmergencyAlerts == nil && p.WeatherAlerts == nil && p.CompanyAlerts == nil &&
		p.SystemAlerts == nil && p.SMSEnabled == nil && p.PushEnabled == nil && p.EmailEnabled == nil
}

// Apply returns base with every non-nil field of the patch applied.
func (p PreferencesPatch) Apply(base Preferences) Preferences {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&base.EmergencyAlerts, p.EmergencyAlerts)
	set(&base.WeatherAlerts, p.WeatherAlerts)
	set(&base.CompanyAlerts, p.CompanyAlerts)
	set(&base.SystemAlerts, p.SystemAlerts)
	set(&base.SMSEnabled, p.SMSEnabled)
	set(&base.PushEnabled, p.PushEnabled)
	set(&base.EmailEnabled, p.EmailEnabled)
	return base
}

// Alert is a single broadcast message.
type Alert struct {
	ID         string      `json:"id"`
	AlertType  AlertType   `json:"alert_type"`
	Title      string      `json:"title"`
	Message    string      `json:"message"`
	Priority   Priority    `json:"priority"`
	Recipients TargetSpec  `json:"recipients"`
	Status     AlertStatus `json:"status"`
	SentBy     *string     `json:"sent_by,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	SentAt     *time.Time  `json:"sent_at,omitempty"`
}

// AlertRecipient is one user's targeted delivery of one alert.
type AlertRecipient struct {
	ID             string         `json:"id"`
	AlertID        string         `json:"alert_id"`
	UserID         string         `json:"user_id"`
	DeliveryMethod DeliveryMethod `json:"delivery_method"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	ReadStatus     ReadStatus     `json:"read_status"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// UserAlert is an alert as seen by one recipient.
type UserAlert struct {
	Alert
	RecipientID    string         `json:"recipient_id"`
	DeliveryMethod DeliveryMethod `json:"delivery_method"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	ReadStatus     ReadStatus     `json:"read_status"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
}

// AlertSummary is an alert with aggregate delivery counts for admin views.
type AlertSummary struct {
	Alert
	RecipientCount int `json:"recipient_count"`
	ReadCount      int `json:"read_count"`
}

// ReadReceipt is one recipient's read state for admin visibility.
type ReadReceipt struct {
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`
	Role       UserRole   `json:"role"`
	ReadStatus ReadStatus `json:"read_status"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

// Stats summarizes system activity for the admin dashboard.
type Stats struct {
	TotalUsers      int     `json:"total_users"`
	ActiveUsers     int     `json:"active_users"`
	AlertsSentToday int     `json:"alerts_sent_today"`
	ResponseRate    float64 `json:"response_rate"`
}

// WeatherAlertRule is an admin-defined threshold rule.
type WeatherAlertRule struct {
	ID                string            `json:"id"`
	AlertType         RuleType          `json:"alert_type"`
	ConditionOperator ConditionOperator `json:"condition_operator"`
	ThresholdValue    float64           `json:"threshold_value"`
	LocationFilter    *string           `json:"location_filter,omitempty"`
	IsActive          bool              `json:"is_active"`
	AlertTitle        string            `json:"alert_title"`
	AlertMessage      string            `json:"alert_message"`
	CreatedBy         *string           `json:"created_by,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// WeatherAlertLog records that a weather trigger fired. It doubles as the
// de-duplication ledger for the cooldown window.
type WeatherAlertLog struct {
	ID                 string         `json:"id"`
	WeatherAlertID     *string        `json:"weather_alert_id,omitempty"`
	AlertID            *string        `json:"alert_id,omitempty"`
	TriggerKey         string         `json:"trigger_key"`
	WeatherData        map[string]any `json:"weather_data"`
	AffectedUsersCount int            `json:"affected_users_count"`
	CreatedAt          time.Time      `json:"created_at"`
}

// AuditLogEntry is an append-only security event.
type AuditLogEntry struct {
	ID        string         `json:"id"`
	EventType AuditEventType `json:"event_type"`
	UserID    *string        `json:"user_id,omitempty"`
	Details   map[string]any `json:"details"`
	IPAddress *string        `json:"ip_address,omitempty"`
	UserAgent *string        `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Question is a Q&A board entry.
type Question struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Question   string           `json:"question"`
	Category   QuestionCategory `json:"category"`
	Priority   QuestionPriority `json:"priority"`
	Status     QuestionStatus   `json:"status"`
	JobSite    *string          `json:"job_site,omitempty"`
	JobNumber  *string          `json:"job_number,omitempty"`
	AskedBy    string           `json:"asked_by"`
	AssignedTo *string          `json:"assigned_to,omitempty"`
	AskerName  *string          `json:"asker_name,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Answer is a reply to a Q&A question.
type Answer struct {
	ID           string    `json:"id"`
	QuestionID   string    `json:"question_id"`
	Answer       string    `json:"answer"`
	AnsweredBy   string    `json:"answered_by"`
	AnswererName *string   `json:"answerer_name,omitempty"`
	IsOfficial   bool      `json:"is_official"`
	CreatedAt    time.Time `json:"created_at"`
}

// Location is a monitored point for the weather evaluator.
type Location struct {
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lon  float64 `json:"lon" yaml:"lon"`
}
