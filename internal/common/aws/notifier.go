// internal/common/aws/notifier.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"funding-match-workers/internal/common/config"
	apperrors "funding-match-workers/internal/common/errors"
	"funding-match-workers/internal/common/logger"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// WeightsUpdatedEvent is published to the SNS topic after a successful save.
type WeightsUpdatedEvent struct {
	Event     string             `json:"event"`
	Source    string             `json:"source"`
	Weights   map[string]float64 `json:"weights"`
	Timestamp time.Time          `json:"timestamp"`
}

// Notifier tells operators about weight changes. Either channel may be nil, in which case
// that notification is skipped.
type Notifier struct {
	ses        SESService
	sns        SNSService
	fromEmail  string
	adminEmail string
	topicARN   string
	logger     logger.Logger
}

func NewNotifier(sesClient SESService, snsClient SNSService, fromEmail, adminEmail, topicARN string, log logger.Logger) *Notifier {
	return &Notifier{
		ses:        sesClient,
		sns:        snsClient,
		fromEmail:  fromEmail,
		adminEmail: adminEmail,
		topicARN:   topicARN,
		logger:     log.WithFields(map[string]interface{}{"component": "notifier"}),
	}
}

// NewNotifierFromConfig builds the AWS clients for whichever channels are enabled.
func NewNotifierFromConfig(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	var (
		sesClient SESService
		snsClient SNSService
		err       error
	)
	if cfg.AWS.SES.Enabled {
		if sesClient, err = NewSESClient(ctx, cfg.AWS.Region); err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
	}
	if cfg.AWS.SNS.Enabled {
		if snsClient, err = NewSNSClient(ctx, cfg.AWS.Region); err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
	}
	return NewNotifier(sesClient, snsClient, cfg.AWS.SES.FromEmail, cfg.AWS.SES.AdminEmail, cfg.AWS.SNS.TopicARN, log), nil
}

// WeightsUpdated publishes the new weight set to the configured topic.
func (n *Notifier) WeightsUpdated(ctx context.Context, source string, weights map[string]float64) error {
	if n == nil || n.sns == nil || n.topicARN == "" {
		return nil
	}

	body, err := json.Marshal(WeightsUpdatedEvent{
		Event:     "matching.weights.updated",
		Source:    source,
		Weights:   weights,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode weights event: %w", err)
	}

	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(n.topicARN),
		Subject:  awssdk.String("Matching weights updated"),
		Message:  awssdk.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"event": {DataType: awssdk.String("String"), StringValue: awssdk.String("matching.weights.updated")},
		},
	})
	if err != nil {
		n.logger.Error("weights update publish failed", map[string]interface{}{"error": err})
		return apperrors.NewNotificationSendFailedError("sns", err)
	}
	return nil
}

// PartialSave emails the administrator which weight keys were written before a save failed.
func (n *Notifier) PartialSave(ctx context.Context, written []string, failed string, cause error) error {
	if n == nil || n.ses == nil || n.adminEmail == "" {
		return nil
	}

	writtenList := "none"
	if len(written) > 0 {
		writtenList = strings.Join(written, ", ")
	}
	text := fmt.Sprintf(
		"A matching weights update stopped part way.\n\nWritten: %s\nFailed at: %s\nError: %v\n\n"+
			"Stored weights are now a mix of old and new values. Re-run the update or clear the cache once fixed.",
		writtenList, failed, cause,
	)

	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source: awssdk.String(n.fromEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{n.adminEmail},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: awssdk.String("Matching weights partially saved")},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: awssdk.String(text)},
			},
		},
	})
	if err != nil {
		n.logger.Error("partial save email failed", map[string]interface{}{"error": err})
		return apperrors.NewNotificationSendFailedError("ses", err)
	}
	return nil
}
