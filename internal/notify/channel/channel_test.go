// internal/notify/channel/channel_test.go
package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"notification-service/internal/common/logger"
	"notification-service/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

// ==========================
// Email Sender Tests
// ==========================

func TestEmailSender_Send_Success(t *testing.T) {
	var captured *ses.SendEmailInput
	mock := &MockSESService{
		SendEmailFunc: func(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			captured = params
			return &ses.SendEmailOutput{MessageId: aws.String("ses-msg-001")}, nil
		},
	}

	sender := NewEmailSenderWithClient(mock, "noreply@example.com", 5*time.Second, logger.NewNoOpLogger())
	result := sender.Send(context.Background(), "dana@example.com", "Order received", "Hi Dana")

	assert.True(t, result.Success)
	assert.Equal(t, "ses-msg-001", result.ProviderID)
	assert.Empty(t, result.Err)

	require.NotNil(t, captured)
	assert.Equal(t, "noreply@example.com", aws.ToString(captured.Source))
	assert.Equal(t, []string{"dana@example.com"}, captured.Destination.ToAddresses)
	assert.Equal(t, "Order received", aws.ToString(captured.Message.Subject.Data))
}

func TestEmailSender_Send_ProviderError(t *testing.T) {
	mock := &MockSESService{
		SendEmailFunc: func(_ context.Context, _ *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("MessageRejected: address is not verified")
		},
	}

	sender := NewEmailSenderWithClient(mock, "noreply@example.com", 5*time.Second, logger.NewNoOpLogger())
	result := sender.Send(context.Background(), "dana@example.com", "Subject", "Body")

	assert.False(t, result.Success)
	assert.Contains(t, result.Err, "MessageRejected")
	assert.Empty(t, result.ProviderID)
}

func TestEmailSender_Send_NotConfigured(t *testing.T) {
	sender := NewEmailSenderWithClient(nil, "", 5*time.Second, logger.NewNoOpLogger())
	result := sender.Send(context.Background(), "dana@example.com", "Subject", "Body")

	assert.False(t, result.Success)
	assert.Equal(t, "email provider not configured", result.Err)
}

func TestEmailSender_Send_Timeout(t *testing.T) {
	mock := &MockSESService{
		SendEmailFunc: func(ctx context.Context, _ *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	sender := NewEmailSenderWithClient(mock, "noreply@example.com", 10*time.Millisecond, logger.NewNoOpLogger())
	result := sender.Send(context.Background(), "dana@example.com", "Subject", "Body")

	// A timeout is a failure like any other provider error.
	assert.False(t, result.Success)
	assert.Contains(t, result.Err, "context deadline exceeded")
}

func TestEmailSender_Channel(t *testing.T) {
	sender := NewEmailSenderWithClient(nil, "", time.Second, logger.NewNoOpLogger())
	assert.Equal(t, models.ChannelEmail, sender.Channel())
}

// ==========================
// SMS Sender Tests
// ==========================

func TestSMSSender_Send_Success(t *testing.T) {
	var captured *sns.PublishInput
	mock := &MockSNSService{
		PublishFunc: func(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
			captured = params
			return &sns.PublishOutput{MessageId: aws.String("sns-msg-001")}, nil
		},
	}

	sender := NewSMSSenderWithClient(mock, "STORE", 5*time.Second, logger.NewNoOpLogger())
	result := sender.Send(context.Background(), "+15551234567", "", "Your order shipped")

	assert.True(t, result.Success)
	assert.Equal(t, "sns-msg-001", result.ProviderID)

	require.NotNil(t, captured)
	assert.Equal(t, "+15551234567", aws.ToString(captured.PhoneNumber))
	assert.Equal(t, "Your order shipped", aws.ToString(captured.Message))
	assert.Equal(t, "STORE", aws.ToString(captured.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
	assert.Equal(t, "Transactional", aws.ToString(captured.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
}

func TestSMSSender_Send_NoSenderID(t *testing.T) {
	var captured *sns.PublishInput
	mock := &MockSNSService{
		PublishFunc: func(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
			captured = params
			return &sns.PublishOutput{MessageId: aws.String("sns-msg-002")}, nil
		},
	}

	sender := NewSMSSenderWithClient(mock, "", 5*time.Second, logger.NewNoOpLogger())
	result := sender.Send(context.Background(), "+15551234567", "", "Body")

	assert.True(t, result.Success)
	_, hasSenderID := captured.MessageAttributes["AWS.SNS.SMS.SenderID"]
	assert.False(t, hasSenderID)
}

func TestSMSSender_Send_NotConfigured(t *testing.T) {
	// Missing credentials surface as a configuration error result, never a
	// silent no-op.
	sender := NewSMSSenderWithClient(nil, "", 5*time.Second, logger.NewNoOpLogger())
	result := sender.Send(context.Background(), "+15551234567", "", "Body")

	assert.False(t, result.Success)
	assert.Equal(t, "sms provider not configured", result.Err)
}

func TestSMSSender_Send_ProviderError(t *testing.T) {
	mock := &MockSNSService{
		PublishFunc: func(_ context.Context, _ *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("InvalidParameter: invalid phone number")
		},
	}

	sender := NewSMSSenderWithClient(mock, "", 5*time.Second, logger.NewNoOpLogger())
	result := sender.Send(context.Background(), "bad-number", "", "Body")

	assert.False(t, result.Success)
	assert.Contains(t, result.Err, "InvalidParameter")
}

func TestSMSSender_Channel(t *testing.T) {
	sender := NewSMSSenderWithClient(nil, "", time.Second, logger.NewNoOpLogger())
	assert.Equal(t, models.ChannelSMS, sender.Channel())
}
