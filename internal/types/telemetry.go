package types

// CloudWatch metric names emitted by the Lambda workers.
const (
	MetricDeliveryAttempt   = "DeliveryAttempt"
	MetricQueueLag          = "DeliveryQueueLag"
	MetricMonitorAlerts     = "MonitorAlertsCreated"
	MetricMonitorSuppressed = "MonitorAlertsSuppressed"
	MetricMonitorFailures   = "MonitorLocationFailures"
	MetricAuditArchived     = "AuditEntriesArchived"

	DimChannel = "Channel"
	DimResult  = "Result"
	DimSource  = "Source"

	MetricNamespace = "SkyGuard"
)
