package external

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"skyguard/internal/types"
)

// MaxSMSLength bounds the SMS body; longer text is truncated with an
// ellipsis so a message never splits into many billed segments.
const MaxSMSLength = 480

// SNSAPI is the subset of the SNS client used by SNSClient.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	GetSMSAttributes(ctx context.Context, params *sns.GetSMSAttributesInput, optFns ...func(*sns.Options)) (*sns.GetSMSAttributesOutput, error)
}

// SNSClient sends SMS through Amazon SNS direct publish.
type SNSClient struct {
	api      SNSAPI
	senderID string
	logger   *slog.Logger
}

// NewSNSClient creates an SNSClient. senderID is shown by carriers that
// support alphanumeric sender IDs.
func NewSNSClient(api SNSAPI, senderID string, logger *slog.Logger) *SNSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SNSClient{api: api, senderID: senderID, logger: logger}
}

// NewSNSClientFromConfig builds the SNS API client from an AWS config.
func NewSNSClientFromConfig(cfg aws.Config, senderID string, logger *slog.Logger) *SNSClient {
	return NewSNSClient(sns.NewFromConfig(cfg), senderID, logger)
}

// Send texts "<title>: <body>" to n.To as a transactional SMS.
func (s *SNSClient) Send(ctx context.Context, n Notification) (string, error) {
	phone, err := types.NormalizePhoneNumber(n.To)
	if err != nil {
		return "", err
	}

	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType: aws.String("String"), StringValue: aws.String(s.senderID),
		}
	}

	out, err := s.api.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(smsText(n.Title, n.Body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", mapSNSError(err)
	}
	return aws.ToString(out.MessageId), nil
}

// Ping checks that SNS answers for this account's SMS settings.
func (s *SNSClient) Ping(ctx context.Context) error {
	if _, err := s.api.GetSMSAttributes(ctx, &sns.GetSMSAttributesInput{}); err != nil {
		return mapSNSError(err)
	}
	return nil
}

func smsText(title, body string) string {
	text := title + ": " + body
	if utf8.RuneCountInString(text) <= MaxSMSLength {
		return text
	}
	return string([]rune(text)[:MaxSMSLength-3]) + "..."
}

func mapSNSError(err error) error {
	var invalid *snstypes.InvalidParameterException
	var optedOut *snstypes.InvalidParameterValueException
	var throttled *snstypes.ThrottledException
	switch {
	case errors.As(err, &invalid), errors.As(err, &optedOut):
		return types.NewAppError(types.ErrCodeDeliveryRejected, "SMS rejected by SNS", err)
	case errors.As(err, &throttled):
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "SNS rate limit exceeded", err)
	}
	return types.NewAppError(types.ErrCodeUpstreamDelivery, "SNS publish failed", err)
}
