package types

// DeliveryMessage is the SQS payload handed from the fan-out engine to the
// delivery worker. One message per recipient record.
type DeliveryMessage struct {
	RecipientID    string         `json:"recipient_id"`
	AlertID        string         `json:"alert_id"`
	UserID         string         `json:"user_id"`
	DeliveryMethod DeliveryMethod `json:"delivery_method"`
	AlertType      AlertType      `json:"alert_type"`
	Priority       Priority       `json:"priority"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	RetryCount     int            `json:"retry_count"`
	TraceID        string         `json:"trace_id,omitempty"`
}
