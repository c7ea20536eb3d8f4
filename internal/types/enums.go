package types

// AlertType categorizes a broadcast alert.
type AlertType string

const (
	AlertTypeEmergency AlertType = "emergency"
	AlertTypeWeather   AlertType = "weather"
	AlertTypeCompany   AlertType = "company"
	AlertTypeSystem    AlertType = "system"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeEmergency, AlertTypeWeather, AlertTypeCompany, AlertTypeSystem:
		return true
	}
	return false
}

// Priority is the urgency of an alert.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// TargetSpec selects the base recipient population of an alert.
type TargetSpec string

const (
	TargetAll        TargetSpec = "all"
	TargetEmergency  TargetSpec = "emergency"
	TargetStaff      TargetSpec = "staff"
	TargetManagement TargetSpec = "management"
	// TargetSpecific is used for alerts addressed to explicit users
	// (e.g. Q&A answer notifications). It is not accepted from API callers.
	TargetSpecific TargetSpec = "specific"
)

// Valid reports whether s is a target spec accepted by role resolution.
func (s TargetSpec) Valid() bool {
	switch s {
	case TargetAll, TargetEmergency, TargetStaff, TargetManagement:
		return true
	}
	return false
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertStatusDraft AlertStatus = "draft"
	AlertStatusSent  AlertStatus = "sent"
)

// DeliveryMethod is the channel used to reach a recipient.
type DeliveryMethod string

const (
	DeliverySMS    DeliveryMethod = "sms"
	DeliverySystem DeliveryMethod = "system"
	DeliveryPush   DeliveryMethod = "push"
	DeliveryEmail  DeliveryMethod = "email"
)

// Valid reports whether m is a channel a caller may request explicitly.
// "system" is in-app only and is never requested.
func (m DeliveryMethod) Valid() bool {
	switch m {
	case DeliverySMS, DeliveryPush, DeliveryEmail:
		return true
	}
	return false
}

// DeliveryStatus is the transport state of one recipient record.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Terminal reports whether no further delivery attempt should be made.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// ReadStatus tracks whether a recipient has viewed an alert.
type ReadStatus string

const (
	ReadStatusUnread ReadStatus = "unread"
	ReadStatusRead   ReadStatus = "read"
)

// UserRole defines authorization level.
type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleEmployee UserRole = "employee"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

// RuleType is the reading a weather rule evaluates.
type RuleType string

const (
	RuleTemperature RuleType = "temperature"
	RuleWind        RuleType = "wind"
	RuleHumidity    RuleType = "humidity"
	RuleAirQuality  RuleType = "air_quality"
	RuleStorm       RuleType = "storm"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTemperature, RuleWind, RuleHumidity, RuleAirQuality, RuleStorm:
		return true
	}
	return false
}

// ConditionOperator compares a reading to a rule threshold.
type ConditionOperator string

const (
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpEquals      ConditionOperator = "equals"
)

// Valid reports whether op is a known operator.
func (op ConditionOperator) Valid() bool {
	return op == OpGreaterThan || op == OpLessThan || op == OpEquals
}

// AuditEventType classifies an audit log entry.
type AuditEventType string

const (
	AuditFailedAuth          AuditEventType = "failed_auth"
	AuditRoleChangeAttempt   AuditEventType = "role_change_attempt"
	AuditAdminAction         AuditEventType = "admin_action"
	AuditSuspiciousActivity  AuditEventType = "suspicious_activity"
	AuditUnauthorizedAccess  AuditEventType = "unauthorized_access"
)

// Valid reports whether t is a known audit event type.
func (t AuditEventType) Valid() bool {
	switch t {
	case AuditFailedAuth, AuditRoleChangeAttempt, AuditAdminAction, AuditSuspiciousActivity, AuditUnauthorizedAccess:
		return true
	}
	return false
}

// Admin action names recorded in audit details.
const (
	ActionSendAlert         = "send_alert"
	ActionRoleChange        = "role_change"
	ActionRuleCreated       = "weather_rule_created"
	ActionRuleUpdated       = "weather_rule_updated"
	ActionRuleToggled       = "weather_rule_toggled"
	ActionRuleDeleted       = "weather_rule_deleted"
	ActionMonitorTriggered  = "weather_monitor_triggered"
	ActionPhoneUpdated      = "phone_number_updated"
)

// QuestionCategory groups Q&A questions.
type QuestionCategory string

const (
	CategorySafety     QuestionCategory = "safety"
	CategoryEquipment  QuestionCategory = "equipment"
	CategoryProcedures QuestionCategory = "procedures"
	CategoryGeneral    QuestionCategory = "general"
)

// Valid reports whether c is a known category.
func (c QuestionCategory) Valid() bool {
	switch c {
	case CategorySafety, CategoryEquipment, CategoryProcedures, CategoryGeneral:
		return true
	}
	return false
}

// QuestionPriority is the urgency of a Q&A question. It differs from alert
// priority in using "urgent" as its top level.
type QuestionPriority string

const (
	QuestionLow    QuestionPriority = "low"
	QuestionMedium QuestionPriority = "medium"
	QuestionHigh   QuestionPriority = "high"
	QuestionUrgent QuestionPriority = "urgent"
)

// Valid reports whether p is a known question priority.
func (p QuestionPriority) Valid() bool {
	switch p {
	case QuestionLow, QuestionMedium, QuestionHigh, QuestionUrgent:
		return true
	}
	return false
}

// QuestionStatus is the lifecycle of a Q&A question.
type QuestionStatus string

const (
	QuestionOpen     QuestionStatus = "open"
	QuestionAnswered QuestionStatus = "answered"
	QuestionClosed   QuestionStatus = "closed"
)

// Valid reports whether s is a known status.
func (s QuestionStatus) Valid() bool {
	return s == QuestionOpen || s == QuestionAnswered || s == QuestionClosed
}
