// internal/notify/channel/sms.go
package channel

import (
	"context"
	"time"

	"notification-service/internal/common/logger"
	"notification-service/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSService is the subset of the SNS client used by the SMS sender,
// defined here for mocking.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSSender delivers rendered messages over SNS.
type SMSSender struct {
	client   SNSService
	senderID string
	timeout  time.Duration
	logger   logger.Logger
}

// NewSMSSender builds an SNS-backed SMS sender.
func NewSMSSender(ctx context.Context, region, senderID string, timeout time.Duration, log logger.Logger) (*SMSSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SMSSender{
		client:   sns.NewFromConfig(awsCfg),
		senderID: senderID,
		timeout:  timeout,
		logger:   log.WithFields(map[string]interface{}{"channel": "sms"}),
	}, nil
}

// NewSMSSenderWithClient builds an SMS sender around an existing client.
func NewSMSSenderWithClient(client SNSService, senderID string, timeout time.Duration, log logger.Logger) *SMSSender {
	return &SMSSender{
		client:   client,
		senderID: senderID,
		timeout:  timeout,
		logger:   log.WithFields(map[string]interface{}{"channel": "sms"}),
	}
}

func (s *SMSSender) Channel() models.Channel {
	return models.ChannelSMS
}

// Send publishes one SMS. A missing client means credentials were never
// configured; that is reported as a failed Result, not an error, so the
// failure still produces a delivery log row.
func (s *SMSSender) Send(ctx context.Context, recipient, _ string, body string) Result {
	if s.client == nil {
		return Result{Err: "sms provider not configured"}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	input := &sns.PublishInput{
		PhoneNumber: aws.String(recipient),
		Message:     aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	}
	if s.senderID != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	out, err := s.client.Publish(sendCtx, input)
	if err != nil {
		s.logger.Error("sms send failed", map[string]interface{}{
			"recipient": recipient,
			"error":     err.Error(),
		})
		return Result{Err: err.Error()}
	}

	return Result{Success: true, ProviderID: aws.ToString(out.MessageId)}
}
