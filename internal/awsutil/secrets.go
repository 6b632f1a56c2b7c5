// Package awsutil wraps the AWS services the intake functions talk to:
// Secrets Manager for provider keys, SQS for usage records, and S3 for the
// original-document archive.
package awsutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rotisserie/eris"
)

// SecretsProvider retrieves and caches secrets from AWS Secrets Manager.
type SecretsProvider interface {
	GetSecret(ctx context.Context, secretARN string) (string, error)
	// GetSecretField returns one key of a JSON secret. When the secret is not
	// a JSON object the raw string is returned, so a plain-text API key and
	// {"OPENAI_API_KEY": "..."} both resolve.
	GetSecretField(ctx context.Context, secretARN, field string) (string, error)
}

// SecretsManagerAPI is the subset of the Secrets Manager client we use.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type secretsProvider struct {
	client SecretsManagerAPI
	mu     sync.Mutex
	cache  map[string]string
}

// NewSecretsProvider creates a SecretsProvider backed by Secrets Manager.
// Values are cached for the lifetime of the process (one Lambda container).
func NewSecretsProvider(client SecretsManagerAPI) SecretsProvider {
	return &secretsProvider{
		client: client,
		cache:  make(map[string]string),
	}
}

func (s *secretsProvider) GetSecret(ctx context.Context, secretARN string) (string, error) {
	s.mu.Lock()
	v, ok := s.cache[secretARN]
	s.mu.Unlock()
	if ok {
		return v, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return "", eris.Wrapf(err, "get secret %s", secretARN)
	}
	val := aws.ToString(out.SecretString)

	s.mu.Lock()
	s.cache[secretARN] = val
	s.mu.Unlock()
	return val, nil
}

func (s *secretsProvider) GetSecretField(ctx context.Context, secretARN, field string) (string, error) {
	raw, err := s.GetSecret(ctx, secretARN)
	if err != nil {
		return "", err
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return raw, nil
	}
	val, ok := fields[field]
	if !ok || val == "" {
		return "", eris.Errorf("secret %s has no field %q", secretARN, field)
	}
	return val, nil
}
