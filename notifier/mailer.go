package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/sirupsen/logrus"

	"github.com/ray-remotestate/restro-qr/config"
)

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type sesClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESMailer struct {
	client sesClient
	sender string
}

// NewSESMailer uses static credentials when both keys are configured and the
// default AWS credential chain otherwise.
func NewSESMailer(ctx context.Context, cfg config.EmailConfig) (*SESMailer, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	return &SESMailer{client: ses.NewFromConfig(awsCfg), sender: cfg.SenderEmail}, nil
}

func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("recipient email address is empty")
	}

	body := &types.Body{
		Text: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(msg.Text)},
	}
	if msg.HTML != "" {
		body.Html = &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(msg.HTML)}
	}

	_, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(m.sender),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(msg.Subject)},
			Body:    body,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// LogMailer only logs outgoing mail. It is used when no sender address is
// configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	logrus.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("email delivery disabled, skipping")
	return nil
}

// New picks the mailer for cfg.
func New(ctx context.Context, cfg config.EmailConfig) (Mailer, error) {
	if !cfg.Enabled() {
		return LogMailer{}, nil
	}
	return NewSESMailer(ctx, cfg)
}

var (
	mailerMu sync.RWMutex
	mailer   Mailer = LogMailer{}
)

func SetMailer(m Mailer) {
	mailerMu.Lock()
	defer mailerMu.Unlock()
	if m == nil {
		m = LogMailer{}
	}
	mailer = m
}

// Send delivers msg through the installed mailer.
func Send(ctx context.Context, msg Message) error {
	mailerMu.RLock()
	m := mailer
	mailerMu.RUnlock()
	return m.Send(ctx, msg)
}

// SendAsync delivers msg in the background and logs the outcome. Customer
// email never blocks or fails an API response.
func SendAsync(msg Message) {
	if msg.To == "" {
		return
	}
	go func() {
		if err := Send(context.Background(), msg); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"to":      msg.To,
				"subject": msg.Subject,
			}).Error("failed to send email")
			return
		}
		logrus.WithField("to", msg.To).WithField("subject", msg.Subject).Debug("email sent")
	}()
}
