package external

import (
	"context"

	"skyguard/internal/types"
)

// Notification is one rendered message for a single channel address.
type Notification struct {
	// To is the channel address: E.164 number, email address or user ID
	// (push gateways address devices by user).
	To          string
	Title       string
	Body        string
	Priority    types.Priority
	ReferenceID string
}

// Sender delivers notifications over one channel and returns the
// provider's message ID. Errors are AppErrors; IsRetryable classifies them.
type Sender interface {
	Send(ctx context.Context, n Notification) (string, error)
}

// WeatherProvider is the weather data source used by the evaluator and the
// current-conditions endpoint.
type WeatherProvider interface {
	Current(ctx context.Context, lat, lon float64) (*types.Conditions, error)
	Advisories(ctx context.Context, lat, lon float64) ([]types.Advisory, error)
	AirQuality(ctx context.Context, lat, lon float64) (*types.AirQuality, error)
}

var (
	_ WeatherProvider = (*OpenWeatherClient)(nil)
	_ Sender          = (*SESClient)(nil)
	_ Sender          = (*SNSClient)(nil)
	_ Sender          = (*PushClient)(nil)
	_ Sender          = (*LogSender)(nil)
)
