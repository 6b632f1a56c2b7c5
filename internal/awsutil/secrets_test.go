package awsutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSMClient struct {
	secrets   map[string]string
	callCount atomic.Int32
}

func (m *mockSMClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.callCount.Add(1)
	id := aws.ToString(params.SecretId)
	val, ok := m.secrets[id]
	if !ok {
		return nil, fmt.Errorf("secret %s not found", id)
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(val)}, nil
}

func TestSecretsProvider_CachesPerARN(t *testing.T) {
	mock := &mockSMClient{secrets: map[string]string{
		"arn:openai": "sk-test",
		"arn:jwt":    "jwt-secret",
	}}
	provider := NewSecretsProvider(mock)
	ctx := context.Background()

	for range 3 {
		v, err := provider.GetSecret(ctx, "arn:openai")
		require.NoError(t, err)
		assert.Equal(t, "sk-test", v)
	}
	v, err := provider.GetSecret(ctx, "arn:jwt")
	require.NoError(t, err)
	assert.Equal(t, "jwt-secret", v)

	assert.Equal(t, int32(2), mock.callCount.Load())
}

func TestSecretsProvider_NotFound(t *testing.T) {
	provider := NewSecretsProvider(&mockSMClient{secrets: map[string]string{}})

	_, err := provider.GetSecret(context.Background(), "arn:missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get secret arn:missing")
}

func TestSecretsProvider_GetSecretField(t *testing.T) {
	mock := &mockSMClient{secrets: map[string]string{
		"arn:app":   `{"OPENAI_API_KEY":"sk-123","GEMINI_API_KEY":"g-456"}`,
		"arn:plain": "raw-key",
	}}
	provider := NewSecretsProvider(mock)
	ctx := context.Background()

	v, err := provider.GetSecretField(ctx, "arn:app", "GEMINI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "g-456", v)

	v, err = provider.GetSecretField(ctx, "arn:plain", "OPENAI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "raw-key", v)

	_, err = provider.GetSecretField(ctx, "arn:app", "ANTHROPIC_API_KEY")
	assert.Error(t, err)
}
