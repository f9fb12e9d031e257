package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/International-Combat-Archery-Alliance/email"
	"github.com/International-Combat-Archery-Alliance/email/awsses"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/pulsefest/registration/httpapi"
)

var _ email.Sender = &EmailLogger{}

// email.Sender that logs out the email contents for local dev
type EmailLogger struct {
	logger *slog.Logger
}

func (el *EmailLogger) SendEmail(ctx context.Context, e email.Email) error {
	el.logger.Info("email that would be sent", slog.Any("email", e))

	return nil
}

func createProdAWSEmailSender(ctx context.Context) (*awsses.AWSSESSender, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get aws config: %w", err)
	}

	sesClient := sesv2.NewFromConfig(cfg)
	sender := awsses.NewAWSSESSender(sesClient)

	return sender, nil
}

func createEmailSender(ctx context.Context, logger *slog.Logger, env httpapi.Environment) (email.Sender, error) {
	if env == httpapi.LOCAL {
		return &EmailLogger{logger: logger}, nil
	}

	return createProdAWSEmailSender(ctx)
}
