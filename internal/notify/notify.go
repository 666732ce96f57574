// internal/notify/notify.go
package notify

import (
	"context"
	"fmt"
	"strings"

	"scholarship-pipeline/internal/common/config"
	"scholarship-pipeline/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

const (
	typeInterviewReady = "interview_ready"
	typeMaterialsReady = "materials_ready"
)

// Interfaces for mocking the AWS clients in tests.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier sends milestone notifications to the student over email (SES)
// and SMS (SNS). Both channels are best-effort and independently toggled.
type Notifier struct {
	config    config.NotificationConfig
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
	templates map[string]map[string]string
}

func NewNotifier(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Notifier{
		config:    cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "notify"}),
		sesClient: ses.NewFromConfig(awsCfg),
		snsClient: sns.NewFromConfig(awsCfg),
		templates: loadTemplates(),
	}, nil
}

// NewNotifierWithClients injects the AWS clients directly, for tests.
func NewNotifierWithClients(cfg config.NotificationConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		config:    cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "notify"}),
		sesClient: sesClient,
		snsClient: snsClient,
		templates: loadTemplates(),
	}
}

// InterviewReady tells the student their interview questions are waiting.
func (n *Notifier) InterviewReady(ctx context.Context, workflowID, question string) error {
	return n.send(ctx, typeInterviewReady, map[string]string{
		"workflowId": workflowID,
		"question":   question,
	})
}

// MaterialsReady tells the student their application materials are done.
func (n *Notifier) MaterialsReady(ctx context.Context, workflowID string) error {
	return n.send(ctx, typeMaterialsReady, map[string]string{
		"workflowId": workflowID,
	})
}

func (n *Notifier) send(ctx context.Context, notificationType string, data map[string]string) error {
	template, exists := n.templates[notificationType]
	if !exists {
		return fmt.Errorf("template not found for type: %s", notificationType)
	}

	subject := renderTemplate(template["subject"], data)
	body := renderTemplate(template["body"], data)

	if n.config.Email.Enabled && n.config.Email.ToEmail != "" {
		if err := n.sendEmail(ctx, n.config.Email.ToEmail, subject, body); err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	}

	if n.config.SMS.Enabled && n.config.SMS.ToPhone != "" {
		if err := n.sendSMS(ctx, n.config.SMS.ToPhone, body); err != nil {
			return fmt.Errorf("send SMS: %w", err)
		}
	}

	n.logger.Info("notification sent", map[string]interface{}{
		"type":       notificationType,
		"workflowId": data["workflowId"],
	})
	return nil
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.Email.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	_, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
}

// Simplified template rendering with placeholder removal for missing values.
func renderTemplate(tmpl string, data map[string]string) string {
	result := tmpl
	for k, v := range data {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}

func loadTemplates() map[string]map[string]string {
	return map[string]map[string]string{
		typeInterviewReady: {
			"subject": "Your Scholarship Interview Is Ready",
			"body":    "Your application needs a bit more detail. First question: {{question}} (workflow {{workflowId}})",
		},
		typeMaterialsReady: {
			"subject": "Your Application Materials Are Ready",
			"body":    "Your tailored application materials for workflow {{workflowId}} are ready for review.",
		},
	}
}
