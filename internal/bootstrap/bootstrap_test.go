package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docuflow/intake-service/internal/auth"
	"github.com/docuflow/intake-service/internal/config"
	"github.com/docuflow/intake-service/internal/db"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "docuflow.db")
	cfg.Provider.Extraction = config.ProviderOpenAI
	cfg.Provider.Segmentation = config.ProviderGemini
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Gemini.APIKey = "gm-test"
	cfg.Auth.JWTSecret = "test-secret"
	return cfg
}

func TestNewProvider(t *testing.T) {
	cfg := localConfig(t)
	cfg.Anthropic.APIKey = "ak-test"

	for _, name := range []string{"openai", "gemini", "anthropic"} {
		p, err := NewProvider(context.Background(), cfg, name)
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Name())
	}

	_, err := NewProvider(context.Background(), cfg, "llama")
	assert.ErrorContains(t, err, "unknown provider")

	cfg.Anthropic.APIKey = ""
	_, err = NewProvider(context.Background(), cfg, "anthropic")
	assert.ErrorContains(t, err, "no API key")
}

func TestOpenDatabase(t *testing.T) {
	ctx := context.Background()

	sqlite, err := OpenDatabase(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "x.db")}, nil)
	require.NoError(t, err)
	sqlite.Close()

	pg, err := OpenDatabase(ctx, config.StoreConfig{Driver: "postgres", DatabaseURL: "postgres://localhost/docuflow"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &db.PgxDB{}, pg)

	_, err = OpenDatabase(ctx, config.StoreConfig{Driver: "postgres"}, nil)
	assert.ErrorContains(t, err, "no database configured")

	_, err = OpenDatabase(ctx, config.StoreConfig{Driver: "postgres", DBSecretARN: "arn:db"}, nil)
	assert.Error(t, err)

	_, err = OpenDatabase(ctx, config.StoreConfig{Driver: "mysql"}, nil)
	assert.ErrorContains(t, err, "unknown store driver")
}

type fakeSecrets struct {
	raw string
	err error
}

func (f fakeSecrets) GetSecret(ctx context.Context, arn string) (string, error) {
	return f.raw, f.err
}

func (f fakeSecrets) GetSecretField(ctx context.Context, arn, field string) (string, error) {
	return f.raw, f.err
}

func TestSecretCredentials(t *testing.T) {
	secret := `{"host":"db.internal","port":5432,"dbname":"docuflow","username":"svc","password":"pw","engine":"postgres"}`
	creds, err := secretCredentials(fakeSecrets{raw: secret}, "arn:db")(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5432", creds["port"])
	assert.Equal(t, "db.internal", creds["host"])

	dsn, err := db.DSNFromCredentials(secretCredentials(fakeSecrets{raw: secret}, "arn:db"))(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "postgres://svc:pw@db.internal:5432/docuflow?pool_max_conns=2&connect_timeout=10", dsn)

	_, err = secretCredentials(fakeSecrets{raw: "not json"}, "arn:db")(context.Background())
	assert.Error(t, err)

	_, err = secretCredentials(fakeSecrets{err: errors.New("denied")}, "arn:db")(context.Background())
	assert.Error(t, err)
}

func TestNew_AllComponents(t *testing.T) {
	cfg := localConfig(t)
	app, err := New(context.Background(), cfg, All)
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Extractor)
	assert.NotNil(t, app.Segmenter)
	assert.NotNil(t, app.Feedback)
	assert.NotNil(t, app.Analyses)
	require.NotNil(t, app.Handler)

	token, err := auth.NewVerifier(cfg.Auth.JWTSecret, "").Sign("user-1", time.Hour)
	require.NoError(t, err)

	event, _ := json.Marshal(map[string]any{
		"httpMethod": "POST",
		"path":       "/adaptive-extraction",
		"headers":    map[string]string{"Authorization": "Bearer " + token},
		"body":       `{"action":"record_feedback","original_extraction":{"A":"1","B":"2"},"user_corrections":{"B":"3"},"document_type":"Deed"}`,
	})
	resp, err := app.Handler.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode, resp.Body)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, true, body["success"])
	assert.InDelta(t, 0.5, body["success_rate"], 1e-9)
}

func TestNew_OptionalSkipsMissingProviders(t *testing.T) {
	cfg := localConfig(t)
	cfg.OpenAI.APIKey = ""
	cfg.Gemini.APIKey = ""

	opts := All
	opts.Optional = true
	app, err := New(context.Background(), cfg, opts)
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Extractor)
	assert.Nil(t, app.Segmenter)
	assert.NotNil(t, app.Feedback)
}

func TestNew_RequiredProviderMissing(t *testing.T) {
	cfg := localConfig(t)
	cfg.Gemini.APIKey = ""

	_, err := New(context.Background(), cfg, Options{Segmentation: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segmentation")
}

func TestNew_ExtractionOnlyNeedsNoDatabase(t *testing.T) {
	cfg := localConfig(t)
	cfg.Store.Driver = "postgres"

	app, err := New(context.Background(), cfg, Options{Extraction: true})
	require.NoError(t, err)
	assert.Nil(t, app.DB)
	assert.NotNil(t, app.Extractor)
}
