package external

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"skyguard/internal/types"
)

type mockSESAPI struct {
	sendEmailFunc func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	account       *sesv2.GetAccountOutput
	accountErr    error
}

func (m *mockSESAPI) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	return m.sendEmailFunc(ctx, params, optFns...)
}

func (m *mockSESAPI) GetAccount(_ context.Context, _ *sesv2.GetAccountInput, _ ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error) {
	return m.account, m.accountErr
}

func TestSESSend_Success(t *testing.T) {
	var captured *sesv2.SendEmailInput
	api := &mockSESAPI{
		sendEmailFunc: func(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			captured = params
			return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
		},
	}
	client := NewSESClient(api, "alerts@skyguard.local", "SkyGuard Alerts", nil)

	id, err := client.Send(context.Background(), Notification{
		To:          "crew@example.com",
		Title:       "Evacuate",
		Body:        "Leave via stairwell B",
		Priority:    types.PriorityCritical,
		ReferenceID: "rec-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "ses-1" {
		t.Errorf("message id = %q", id)
	}
	if got := aws.ToString(captured.FromEmailAddress); got != "SkyGuard Alerts <alerts@skyguard.local>" {
		t.Errorf("from = %q", got)
	}
	if got := aws.ToString(captured.Content.Simple.Subject.Data); got != "[CRITICAL] Evacuate" {
		t.Errorf("subject = %q", got)
	}
	if got := aws.ToString(captured.Content.Simple.Body.Text.Data); got != "Leave via stairwell B" {
		t.Errorf("body = %q", got)
	}
	if len(captured.EmailTags) != 1 || aws.ToString(captured.EmailTags[0].Value) != "rec-1" {
		t.Errorf("unexpected tags %+v", captured.EmailTags)
	}
}

func TestSESSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      types.ErrorCode
		retryable bool
	}{
		{"rejected", &sestypes.MessageRejected{Message: aws.String("bad")}, types.ErrCodeDeliveryRejected, false},
		{"throttled", &sestypes.TooManyRequestsException{Message: aws.String("slow")}, types.ErrCodeUpstreamRateLimited, true},
		{"paused", &sestypes.SendingPausedException{Message: aws.String("paused")}, types.ErrCodeUpstreamDelivery, true},
		{"other", errors.New("network"), types.ErrCodeUpstreamDelivery, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockSESAPI{
				sendEmailFunc: func(context.Context, *sesv2.SendEmailInput, ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
					return nil, tt.err
				},
			}
			_, err := NewSESClient(api, "a@b.co", "", nil).Send(context.Background(), Notification{To: "x@y.co"})
			if !types.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("retryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestSESPing(t *testing.T) {
	tests := []struct {
		name    string
		api     *mockSESAPI
		wantErr bool
	}{
		{"enabled", &mockSESAPI{account: &sesv2.GetAccountOutput{SendingEnabled: true}}, false},
		{"disabled", &mockSESAPI{account: &sesv2.GetAccountOutput{SendingEnabled: false}}, true},
		{"unreachable", &mockSESAPI{accountErr: errors.New("dial tcp: timeout")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewSESClient(tt.api, "a@b.co", "", nil).Ping(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Ping() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
