package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySSM is an in-memory SSMClient keyed by parameter name.
type memorySSM struct {
	params   map[string]string
	types    map[string]ssmtypes.ParameterType
	getErr   error
	putErr   error
	putCalls []*ssm.PutParameterInput
}

func newMemorySSM(seed map[string]string) *memorySSM {
	m := &memorySSM{params: map[string]string{}, types: map[string]ssmtypes.ParameterType{}}
	for k, v := range seed {
		m.params[k] = v
	}
	return m
}

func (m *memorySSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.params[aws.ToString(in.Name)]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

func (m *memorySSM) PutParameter(_ context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	m.putCalls = append(m.putCalls, in)
	if m.putErr != nil {
		return nil, m.putErr
	}
	name := aws.ToString(in.Name)
	if _, exists := m.params[name]; exists && !aws.ToBool(in.Overwrite) {
		return nil, &ssmtypes.ParameterAlreadyExists{Message: aws.String("exists")}
	}
	m.params[name] = aws.ToString(in.Value)
	m.types[name] = in.Type
	return &ssm.PutParameterOutput{Version: 1}, nil
}

func newTestSSMManager(client SSMClient, env string) *SSMManager {
	return NewSSMManagerWithClient(client, env, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSSMPath(t *testing.T) {
	m := newTestSSMManager(newMemorySSM(nil), "staging")
	assert.Equal(t, "/staging/skyguard/database/url", m.SSMPath("database/url"))
	assert.Equal(t, "/staging/skyguard/auth/jwt_secret", m.SSMPath("auth/jwt_secret"))
}

func TestParameterExists(t *testing.T) {
	client := newMemorySSM(map[string]string{"/dev/skyguard/database/url": "postgres://x"})
	m := newTestSSMManager(client, "dev")
	ctx := context.Background()

	ok, err := m.ParameterExists(ctx, "/dev/skyguard/database/url")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ParameterExists(ctx, "/dev/skyguard/weather/api_key")
	require.NoError(t, err)
	assert.False(t, ok)

	client.getErr = errors.New("AccessDenied")
	_, err = m.ParameterExists(ctx, "/dev/skyguard/database/url")
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestGetParameterValue(t *testing.T) {
	client := newMemorySSM(map[string]string{"/dev/skyguard/auth/scheduler_token": "tok"})
	m := newTestSSMManager(client, "dev")

	v, err := m.GetParameterValue(context.Background(), "/dev/skyguard/auth/scheduler_token")
	require.NoError(t, err)
	assert.Equal(t, "tok", v)

	_, err = m.GetParameterValue(context.Background(), "/dev/skyguard/missing")
	assert.Error(t, err)
}

func TestPutSecretAndString(t *testing.T) {
	client := newMemorySSM(map[string]string{"/dev/skyguard/auth/jwt_secret": "old"})
	m := newTestSSMManager(client, "dev")
	ctx := context.Background()

	err := m.PutSecret(ctx, "/dev/skyguard/auth/jwt_secret", "new", false)
	assert.ErrorContains(t, err, "already exists")

	require.NoError(t, m.PutSecret(ctx, "/dev/skyguard/auth/jwt_secret", "new", true))
	assert.Equal(t, "new", client.params["/dev/skyguard/auth/jwt_secret"])
	assert.Equal(t, ssmtypes.ParameterTypeSecureString, client.types["/dev/skyguard/auth/jwt_secret"])

	require.NoError(t, m.PutString(ctx, "/dev/skyguard/weather/base_url", "https://api.openweathermap.org"))
	assert.Equal(t, ssmtypes.ParameterTypeString, client.types["/dev/skyguard/weather/base_url"])
	assert.True(t, aws.ToBool(client.putCalls[len(client.putCalls)-1].Overwrite))
}

func TestPutParameter_RejectsEmpty(t *testing.T) {
	client := newMemorySSM(nil)
	m := newTestSSMManager(client, "dev")

	assert.Error(t, m.PutSecret(context.Background(), "", "v", false))
	assert.Error(t, m.PutSecret(context.Background(), "/dev/skyguard/x", "", false))
	assert.Empty(t, client.putCalls)
}
