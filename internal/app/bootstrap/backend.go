package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/carepulse/internal/appointments"
	appconfig "github.com/wolfman30/carepulse/internal/config"
	"github.com/wolfman30/carepulse/internal/http/handlers"
	"github.com/wolfman30/carepulse/internal/messaging/telnyxclient"
	"github.com/wolfman30/carepulse/internal/notify"
	"github.com/wolfman30/carepulse/internal/patients"
	"github.com/wolfman30/carepulse/internal/remote"
	"github.com/wolfman30/carepulse/internal/remote/appwrite"
	"github.com/wolfman30/carepulse/internal/remote/memory"
	"github.com/wolfman30/carepulse/internal/remote/pgstore"
	"github.com/wolfman30/carepulse/internal/remote/s3files"
	"github.com/wolfman30/carepulse/internal/remote/textsender"
	"github.com/wolfman30/carepulse/pkg/logging"
)

// BackendDeps carries collaborators built outside the backend.
type BackendDeps struct {
	AWS   *aws.Config
	Email notify.EmailSender
}

// Backend is the selected remote client plus its health checks and cleanup.
type Backend struct {
	Client remote.Client
	Checks map[string]handlers.Check
	Close  func()
}

// BuildBackend selects the remote data service named by cfg.Backend.
func BuildBackend(ctx context.Context, cfg *appconfig.Config, deps BackendDeps, logger *logging.Logger) (*Backend, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.Backend {
	case appconfig.BackendMemory, "":
		logger.Warn("using in-memory backend; data is lost on restart")
		return &Backend{Client: memory.New(), Close: func() {}}, nil
	case appconfig.BackendAppwrite:
		return buildAppwrite(cfg, logger)
	case appconfig.BackendSelfHosted:
		return buildSelfHosted(ctx, cfg, deps, logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown backend %q", cfg.Backend)
	}
}

func buildAppwrite(cfg *appconfig.Config, logger *logging.Logger) (*Backend, error) {
	client, err := appwrite.New(appwrite.Config{
		Endpoint:   cfg.AppwriteEndpoint,
		ProjectID:  cfg.AppwriteProjectID,
		APIKey:     cfg.AppwriteAPIKey,
		DatabaseID: cfg.AppwriteDatabaseID,
		Collections: map[string]string{
			appointments.DefaultCollection: cfg.AppointmentCollectionID,
			patients.DefaultCollection:     cfg.PatientCollectionID,
		},
		Timeout: cfg.RemoteTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	logger.Info("using appwrite backend", "endpoint", cfg.AppwriteEndpoint, "project", cfg.AppwriteProjectID)
	return &Backend{Client: client, Close: func() {}}, nil
}

func buildSelfHosted(ctx context.Context, cfg *appconfig.Config, deps BackendDeps, logger *logging.Logger) (*Backend, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("bootstrap: selfhosted backend requires DATABASE_URL")
	}
	if strings.TrimSpace(cfg.S3Bucket) == "" {
		return nil, errors.New("bootstrap: selfhosted backend requires S3_BUCKET")
	}
	if deps.AWS == nil {
		return nil, errors.New("bootstrap: selfhosted backend requires aws config")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	store := pgstore.New(pool)

	s3Client := s3.NewFromConfig(*deps.AWS, func(o *s3.Options) {
		if cfg.AWSEndpointOverride != "" {
			o.UsePathStyle = true
		}
	})
	files := s3files.New(s3Client, s3files.Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.AWSRegion,
		Prefix:        cfg.S3Prefix,
		PublicBaseURL: cfg.FilesPublicBaseURL,
	}, logger)

	var sms textsender.SMSClient
	if cfg.TelnyxAPIKey != "" {
		telnyx, err := telnyxclient.New(telnyxclient.Config{
			APIKey:  cfg.TelnyxAPIKey,
			Timeout: cfg.RemoteTimeout,
			Logger:  logger.Logger,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("bootstrap: telnyx client: %w", err)
		}
		sms = telnyx
	} else {
		logger.Warn("TELNYX_API_KEY not set; text notifications go out by email only")
	}
	email := deps.Email
	if email == nil {
		email = notify.NewStubEmailSender(logger)
	}
	sender := textsender.New(store, sms, email, textsender.Config{
		FromNumber:         cfg.TelnyxFromNumber,
		MessagingProfileID: cfg.TelnyxMessagingProfileID,
		EmailSubject:       cfg.ProductName + " appointment update",
	}, logger)

	logger.Info("using selfhosted backend", "s3_bucket", cfg.S3Bucket)
	return &Backend{
		Client: remote.Compose(store, store, files, sender),
		Checks: map[string]handlers.Check{"postgres": pool.Ping},
		Close:  pool.Close,
	}, nil
}
