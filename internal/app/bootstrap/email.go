package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/carepulse/internal/config"
	"github.com/wolfman30/carepulse/internal/notify"
	"github.com/wolfman30/carepulse/pkg/logging"
)

// Email providers accepted by EMAIL_PROVIDER.
const (
	EmailProviderSES      = "ses"
	EmailProviderSendGrid = "sendgrid"
	EmailProviderStub     = "stub"
)

// NeedsAWS reports whether cfg selects a component built on the AWS SDK.
func NeedsAWS(cfg *appconfig.Config) bool {
	return cfg.Backend == appconfig.BackendSelfHosted || cfg.EmailProvider == EmailProviderSES
}

// BuildEmailSender picks the email fallback used for recipients without a
// phone number. Misconfigured providers degrade to the logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case EmailProviderSES:
		if awsCfg == nil || cfg.EmailFrom == "" {
			logger.Warn("ses email requested without aws config or EMAIL_FROM; using stub")
			break
		}
		return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	case EmailProviderSendGrid:
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender != nil {
			return sender
		}
		logger.Warn("sendgrid email requested without SENDGRID_API_KEY; using stub")
	}
	return notify.NewStubEmailSender(logger)
}
