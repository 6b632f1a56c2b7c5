// Package bootstrap wires configuration into the analysis components shared
// by the Lambda functions and the docuflow CLI.
package bootstrap

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/docuflow/intake-service/internal/anthropic"
	"github.com/docuflow/intake-service/internal/auth"
	"github.com/docuflow/intake-service/internal/awsutil"
	"github.com/docuflow/intake-service/internal/config"
	"github.com/docuflow/intake-service/internal/db"
	"github.com/docuflow/intake-service/internal/extraction"
	"github.com/docuflow/intake-service/internal/feedback"
	"github.com/docuflow/intake-service/internal/gemini"
	"github.com/docuflow/intake-service/internal/httpapi"
	"github.com/docuflow/intake-service/internal/openai"
	"github.com/docuflow/intake-service/internal/resilience"
	"github.com/docuflow/intake-service/internal/segment"
	"github.com/docuflow/intake-service/internal/store"
	"github.com/docuflow/intake-service/internal/usage"
	"github.com/docuflow/intake-service/internal/vision"
)

// Options selects which components to build.
type Options struct {
	Extraction   bool
	Segmentation bool
	Feedback     bool
	// Optional skips a selected component whose provider key or database
	// is missing instead of failing.
	Optional bool
}

// All builds every component.
var All = Options{Extraction: true, Segmentation: true, Feedback: true}

// App holds the wired components. Fields for components that were not
// built are nil.
type App struct {
	Config    *config.Config
	DB        db.DB
	Extractor *extraction.Client
	Segmenter *segment.Segmenter
	Feedback  *feedback.Service
	Analyses  *store.AnalysisRepository
	Handler   *httpapi.Handler
}

// Close releases the database connection.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

// New builds the components selected by opts. AWS clients are only created
// when a secret, queue, or bucket is configured.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	var awsCfg *aws.Config
	if cfg.NeedsSecrets() || cfg.Usage.QueueURL != "" || cfg.Archive.Bucket != "" {
		loaded, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "load AWS config")
		}
		awsCfg = &loaded
	}

	var secrets awsutil.SecretsProvider
	if awsCfg != nil && cfg.NeedsSecrets() {
		secrets = awsutil.NewSecretsProvider(secretsmanager.NewFromConfig(*awsCfg))
	}
	if err := cfg.ResolveSecrets(ctx, secrets); err != nil {
		return nil, err
	}

	var tracker usage.Tracker = usage.NopTracker{}
	if cfg.Usage.QueueURL != "" {
		tracker = usage.NewSQSTracker(awsutil.NewSQSClient(sqs.NewFromConfig(*awsCfg)), cfg.Usage.QueueURL)
	}
	costs := usage.NewCalculator(cfg.Pricing.Rates())

	app := &App{Config: cfg}
	handlerOpts := []httpapi.Option{
		httpapi.WithRetry(resilience.FromSettings(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoff, cfg.Retry.MaxBackoff)),
	}

	if opts.Segmentation || opts.Feedback {
		database, err := OpenDatabase(ctx, cfg.Store, secrets)
		switch {
		case err != nil && !opts.Optional:
			return nil, err
		case err != nil:
			zap.L().Warn("running without a database", zap.Error(err))
		default:
			app.DB = database
			app.Analyses = store.NewAnalysisRepository(database)
		}
	}

	if opts.Extraction {
		provider, err := NewProvider(ctx, cfg, cfg.Provider.Extraction)
		if err := skipOrFail(app, err, opts, "extraction"); err != nil {
			return nil, err
		}
		if provider != nil {
			app.Extractor = extraction.NewClient(provider, tracker, costs, extraction.Config{
				FastModel:   cfg.Provider.FastModel,
				VisionModel: cfg.Provider.VisionModel,
				MaxTokens:   cfg.Provider.MaxTokens,
				Seed:        cfg.Provider.Seed,
			})
			handlerOpts = append(handlerOpts, httpapi.WithExtractor(app.Extractor))
		}
	}

	if opts.Segmentation {
		provider, err := NewProvider(ctx, cfg, cfg.Provider.Segmentation)
		if err := skipOrFail(app, err, opts, "segmentation"); err != nil {
			return nil, err
		}
		if provider != nil {
			segOpts := []segment.Option{segment.WithUsage(tracker, costs)}
			if app.Analyses != nil {
				segOpts = append(segOpts, segment.WithStore(app.Analyses))
			}
			if cfg.Archive.Bucket != "" {
				segOpts = append(segOpts, segment.WithArchive(awsutil.NewS3Archive(s3.NewFromConfig(*awsCfg), cfg.Archive.Bucket)))
			}
			app.Segmenter = segment.New(provider, segment.Config{
				Model:     cfg.Provider.SegmentationModel,
				MaxTokens: cfg.Provider.SegmentationMaxTokens,
				Seed:      cfg.Provider.Seed,
			}, segOpts...)
			handlerOpts = append(handlerOpts, httpapi.WithSegmenter(app.Segmenter))
		}
	}

	if opts.Feedback && app.DB != nil {
		app.Feedback = feedback.NewService(store.NewFeedbackRepository(app.DB))
		handlerOpts = append(handlerOpts, httpapi.WithLearner(app.Feedback))
	}

	app.Handler = httpapi.New(auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), handlerOpts...)
	return app, nil
}

func skipOrFail(app *App, err error, opts Options, component string) error {
	if err == nil {
		return nil
	}
	if opts.Optional {
		zap.L().Warn("component disabled", zap.String("component", component), zap.Error(err))
		return nil
	}
	app.Close()
	return eris.Wrapf(err, "build %s", component)
}

// NewProvider builds the named vision provider with its configured key.
func NewProvider(ctx context.Context, cfg *config.Config, name string) (vision.Provider, error) {
	key := cfg.APIKey(name)
	switch name {
	case config.ProviderOpenAI, config.ProviderGemini, config.ProviderAnthropic:
		if key == "" {
			return nil, eris.Errorf("no API key configured for provider %q", name)
		}
	default:
		return nil, eris.Errorf("unknown provider %q", name)
	}

	switch name {
	case config.ProviderGemini:
		client, err := gemini.New(ctx, key)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderAnthropic:
		return anthropic.New(key), nil
	default:
		return openai.New(key, cfg.OpenAI.BaseURL), nil
	}
}

// OpenDatabase opens the configured store. Postgres connections are made
// lazily on first query; SQLite is opened and its schema applied now.
func OpenDatabase(ctx context.Context, cfg config.StoreConfig, secrets awsutil.SecretsProvider) (db.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		return db.OpenSQLite(ctx, cfg.SQLitePath)
	case "postgres":
		if cfg.DatabaseURL != "" {
			return db.New(db.StaticDSN(cfg.DatabaseURL)), nil
		}
		if cfg.DBSecretARN == "" {
			return nil, eris.New("no database configured")
		}
		if secrets == nil {
			return nil, eris.New("database secret configured without a secrets provider")
		}
		return db.New(db.DSNFromCredentials(secretCredentials(secrets, cfg.DBSecretARN))), nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func secretCredentials(secrets awsutil.SecretsProvider, arn string) db.CredentialsFunc {
	return func(ctx context.Context) (map[string]string, error) {
		raw, err := secrets.GetSecret(ctx, arn)
		if err != nil {
			return nil, eris.Wrap(err, "get db secret")
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, eris.Wrap(err, "parse db secret")
		}
		creds := make(map[string]string, len(fields))
		for k, v := range fields {
			switch val := v.(type) {
			case string:
				creds[k] = val
			case float64:
				creds[k] = strconv.FormatFloat(val, 'f', -1, 64)
			}
		}
		return creds, nil
	}
}
