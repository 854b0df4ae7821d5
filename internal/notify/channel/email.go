// internal/notify/channel/email.go
package channel

import (
	"context"
	"time"

	"notification-service/internal/common/logger"
	"notification-service/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the subset of the SES client used by the email sender,
// defined here for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailSender delivers rendered messages over SES.
type EmailSender struct {
	client    SESService
	fromEmail string
	timeout   time.Duration
	logger    logger.Logger
}

// NewEmailSender builds an SES-backed email sender.
func NewEmailSender(ctx context.Context, region, fromEmail string, timeout time.Duration, log logger.Logger) (*EmailSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &EmailSender{
		client:    ses.NewFromConfig(awsCfg),
		fromEmail: fromEmail,
		timeout:   timeout,
		logger:    log.WithFields(map[string]interface{}{"channel": "email"}),
	}, nil
}

// NewEmailSenderWithClient builds an email sender around an existing client.
// Used by tests and by callers that manage AWS config themselves.
func NewEmailSenderWithClient(client SESService, fromEmail string, timeout time.Duration, log logger.Logger) *EmailSender {
	return &EmailSender{
		client:    client,
		fromEmail: fromEmail,
		timeout:   timeout,
		logger:    log.WithFields(map[string]interface{}{"channel": "email"}),
	}
}

func (s *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

// Send delivers one email. Provider errors (including timeouts) are captured
// into the Result, never returned.
func (s *EmailSender) Send(ctx context.Context, recipient, subject, body string) Result {
	if s.client == nil || s.fromEmail == "" {
		return Result{Err: "email provider not configured"}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.SendEmail(sendCtx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.fromEmail),
	})
	if err != nil {
		s.logger.Error("email send failed", map[string]interface{}{
			"recipient": recipient,
			"error":     err.Error(),
		})
		return Result{Err: err.Error()}
	}

	return Result{Success: true, ProviderID: aws.ToString(out.MessageId)}
}
