// internal/notify/notify_test.go
package notify

import (
	"context"
	"fmt"
	"testing"

	"scholarship-pipeline/internal/common/config"
	"scholarship-pipeline/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type mockSES struct {
	inputs []*ses.SendEmailInput
	fail   bool
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if m.fail {
		return nil, fmt.Errorf("ses unavailable")
	}
	m.inputs = append(m.inputs, params)
	return &ses.SendEmailOutput{}, nil
}

type mockSNS struct {
	inputs []*sns.PublishInput
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.inputs = append(m.inputs, params)
	return &sns.PublishOutput{}, nil
}

func testConfig(email, sms bool) config.NotificationConfig {
	var cfg config.NotificationConfig
	cfg.Email.Enabled = email
	cfg.Email.FromEmail = "advisor@example.com"
	cfg.Email.ToEmail = "student@example.com"
	cfg.SMS.Enabled = sms
	cfg.SMS.ToPhone = "+15550100"
	cfg.AWS.Region = "us-east-1"
	return cfg
}

// ==========================
// Notification Tests
// ==========================

func TestNotifier_InterviewReady_Email(t *testing.T) {
	sesMock := &mockSES{}
	snsMock := &mockSNS{}
	n := NewNotifierWithClients(testConfig(true, false), sesMock, snsMock, logger.NewNoOpLogger())

	err := n.InterviewReady(context.Background(), "wf-1", "Tell me about your research.")
	require.NoError(t, err)

	require.Len(t, sesMock.inputs, 1)
	assert.Empty(t, snsMock.inputs)

	input := sesMock.inputs[0]
	assert.Equal(t, "advisor@example.com", *input.Source)
	assert.Equal(t, []string{"student@example.com"}, input.Destination.ToAddresses)
	assert.Contains(t, *input.Message.Body.Text.Data, "Tell me about your research.")
	assert.Contains(t, *input.Message.Body.Text.Data, "wf-1")
}

func TestNotifier_MaterialsReady_BothChannels(t *testing.T) {
	sesMock := &mockSES{}
	snsMock := &mockSNS{}
	n := NewNotifierWithClients(testConfig(true, true), sesMock, snsMock, logger.NewNoOpLogger())

	err := n.MaterialsReady(context.Background(), "wf-2")
	require.NoError(t, err)

	require.Len(t, sesMock.inputs, 1)
	require.Len(t, snsMock.inputs, 1)
	assert.Equal(t, "+15550100", *snsMock.inputs[0].PhoneNumber)
	assert.Contains(t, *snsMock.inputs[0].Message, "wf-2")
}

func TestNotifier_DisabledChannelsSendNothing(t *testing.T) {
	sesMock := &mockSES{}
	snsMock := &mockSNS{}
	n := NewNotifierWithClients(testConfig(false, false), sesMock, snsMock, logger.NewNoOpLogger())

	err := n.MaterialsReady(context.Background(), "wf-3")
	require.NoError(t, err)

	assert.Empty(t, sesMock.inputs)
	assert.Empty(t, snsMock.inputs)
}

func TestNotifier_SESFailurePropagates(t *testing.T) {
	sesMock := &mockSES{fail: true}
	n := NewNotifierWithClients(testConfig(true, false), sesMock, &mockSNS{}, logger.NewNoOpLogger())

	err := n.InterviewReady(context.Background(), "wf-4", "question")
	assert.Error(t, err)
}

// ==========================
// Template Tests
// ==========================

func TestRenderTemplate(t *testing.T) {
	out := renderTemplate("Hello {{name}}, workflow {{workflowId}} and {{missing}} done.",
		map[string]string{"name": "Sam", "workflowId": "wf-9"})
	assert.Equal(t, "Hello Sam, workflow wf-9 and  done.", out)
}
