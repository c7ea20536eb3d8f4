package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"skyguard/internal/types"
)

// SESAPI is the subset of the SES v2 client used by SESClient.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// SESClient sends alert emails through Amazon SES v2. The SDK retries
// throttling itself, so no BaseClient is involved.
type SESClient struct {
	api      SESAPI
	fromAddr string
	logger   *slog.Logger
}

// NewSESClient creates an SESClient. An empty fromName sends from the bare
// address.
func NewSESClient(api SESAPI, fromAddress, fromName string, logger *slog.Logger) *SESClient {
	if logger == nil {
		logger = slog.Default()
	}
	from := fromAddress
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromAddress)
	}
	return &SESClient{api: api, fromAddr: from, logger: logger}
}

// NewSESClientFromConfig builds the SES API client from an AWS config.
func NewSESClientFromConfig(cfg aws.Config, fromAddress, fromName string, logger *slog.Logger) *SESClient {
	return NewSESClient(sesv2.NewFromConfig(cfg), fromAddress, fromName, logger)
}

// Send emails n as plain text. Critical alerts get a subject prefix so they
// stand out in crowded inboxes.
func (s *SESClient) Send(ctx context.Context, n Notification) (string, error) {
	subject := n.Title
	if n.Priority == types.PriorityCritical {
		subject = "[CRITICAL] " + subject
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.fromAddr),
		Destination:      &sestypes.Destination{ToAddresses: []string{n.To}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(n.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if n.ReferenceID != "" {
		input.EmailTags = []sestypes.MessageTag{{Name: aws.String("recipient_id"), Value: aws.String(n.ReferenceID)}}
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		return "", mapSESError(err)
	}
	return aws.ToString(out.MessageId), nil
}

// Ping checks that the SES account is reachable and allowed to send.
func (s *SESClient) Ping(ctx context.Context) error {
	out, err := s.api.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return mapSESError(err)
	}
	if !out.SendingEnabled {
		return types.NewAppError(types.ErrCodeUpstreamDelivery, "SES sending is disabled for this account", nil)
	}
	return nil
}

func mapSESError(err error) error {
	var rejected *sestypes.MessageRejected
	var suppressed *sestypes.AccountSuspendedException
	var throttled *sestypes.TooManyRequestsException
	var paused *sestypes.SendingPausedException
	switch {
	case errors.As(err, &rejected):
		return types.NewAppError(types.ErrCodeDeliveryRejected, "email rejected by SES", err)
	case errors.As(err, &suppressed):
		return types.NewAppError(types.ErrCodeDeliveryRejected, "SES account suspended", err)
	case errors.As(err, &throttled):
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "SES rate limit exceeded", err)
	case errors.As(err, &paused):
		return types.NewAppError(types.ErrCodeUpstreamDelivery, "SES sending paused", err)
	}
	return types.NewAppError(types.ErrCodeUpstreamDelivery, "SES send failed", err)
}
