// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/actions/email"
	"github.com/dukex/flowrun/pkg/actions/httprequest"
	logaction "github.com/dukex/flowrun/pkg/actions/log"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/registry"
)

type RegistryConfig struct {
	HTTPTimeout time.Duration

	ResendAPIKey string
	EmailFrom    string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
}

// NewRegistry builds the action dispatch table with the native actions.
func NewRegistry(logger *slog.Logger, config RegistryConfig) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger)

	var client *http.Client
	if config.HTTPTimeout > 0 {
		client = &http.Client{Timeout: config.HTTPTimeout}
	}

	factories := []protocol.ActionFactory{
		logaction.NewLogActionFactory(),
		httprequest.NewActionFactory(client),
		email.NewResendFactory(email.ResendConfig{
			APIKey: config.ResendAPIKey,
			From:   config.EmailFrom,
		}),
		email.NewSMTPFactory(email.SMTPConfig{
			Host:     config.SMTPHost,
			Port:     config.SMTPPort,
			Username: config.SMTPUser,
			Password: config.SMTPPassword,
			From:     config.EmailFrom,
		}),
	}

	for _, factory := range factories {
		if err := reg.RegisterAction(factory); err != nil {
			return nil, fmt.Errorf("failed to register action %s: %w", factory.ID(), err)
		}
	}

	return reg, nil
}

// ActionFlags configures the native actions.
func ActionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:    "http-timeout",
			Usage:   "Timeout of outbound http_request calls",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("HTTP_REQUEST_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "resend-api-key",
			Usage:   "Resend API key used by send_email",
			Sources: cli.EnvVars("RESEND_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "email-from",
			Usage:   "Default sender address for e-mail actions",
			Sources: cli.EnvVars("EMAIL_FROM"),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host used by send_email_smtp",
			Value:   "smtp.gmail.com",
			Sources: cli.EnvVars("SMTP_HOST"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Usage:   "SMTP port used by send_email_smtp",
			Value:   587,
			Sources: cli.EnvVars("SMTP_PORT"),
		},
		&cli.StringFlag{
			Name:    "smtp-user",
			Usage:   "SMTP user used by send_email_smtp",
			Sources: cli.EnvVars("SMTP_USER"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password used by send_email_smtp",
			Sources: cli.EnvVars("SMTP_PASSWORD"),
		},
	}
}

func RegistryConfigFrom(command *cli.Command) RegistryConfig {
	return RegistryConfig{
		HTTPTimeout:  command.Duration("http-timeout"),
		ResendAPIKey: command.String("resend-api-key"),
		EmailFrom:    command.String("email-from"),
		SMTPHost:     command.String("smtp-host"),
		SMTPPort:     command.Int("smtp-port"),
		SMTPUser:     command.String("smtp-user"),
		SMTPPassword: command.String("smtp-password"),
	}
}
