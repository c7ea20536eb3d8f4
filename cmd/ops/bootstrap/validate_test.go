package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
)

type fakeConnector struct {
	err error
	dsn string
}

func (f *fakeConnector) Connect(_ context.Context, dsn string) error {
	f.dsn = dsn
	return f.err
}

func TestValidateDatabaseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		connErr error
		valid   bool
	}{
		{"valid", "postgres://u:p@db.internal:5432/skyguard", nil, true},
		{"postgresql scheme", "postgresql://u:p@db.internal/skyguard", nil, true},
		{"wrong scheme", "mysql://u:p@db.internal/skyguard", nil, false},
		{"no host", "postgres:///skyguard", nil, false},
		{"unreachable", "postgres://u:p@db.internal:5432/skyguard", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidatorWithDeps(http.DefaultClient, &fakeConnector{err: tt.connErr}, defaultWeatherBaseURL)
			res := v.ValidateDatabaseURL(context.Background(), tt.url)
			assert.Equal(t, tt.valid, res.Valid, res.Message)
		})
	}
}

func TestValidateWeatherKey(t *testing.T) {
	const goodKey = "0123456789abcdef0123456789abcdef"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("appid") {
		case goodKey:
			w.WriteHeader(http.StatusOK)
		case "ffffffffffffffffffffffffffffffff":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"cod":429}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	v := NewValidatorWithDeps(srv.Client(), &fakeConnector{}, srv.URL+"/")

	tests := []struct {
		name  string
		key   string
		valid bool
		msg   string
	}{
		{"accepted", goodKey, true, "verified"},
		{"rejected", "00000000000000000000000000000000", false, "401"},
		{"throttled", "ffffffffffffffffffffffffffffffff", false, "429"},
		{"too short", "abc", false, "too short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateWeatherKey(context.Background(), tt.key)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Contains(t, res.Message, tt.msg)
		})
	}
}

func TestValidateRedisURL(t *testing.T) {
	mr := miniredis.RunT(t)
	v := NewValidator()

	res := v.ValidateRedisURL(context.Background(), "redis://"+mr.Addr()+"/0")
	assert.True(t, res.Valid, res.Message)
	assert.Contains(t, res.Message, mr.Addr())

	res = v.ValidateRedisURL(context.Background(), "not a url")
	assert.False(t, res.Valid)

	addr := mr.Addr()
	mr.Close()
	res = v.ValidateRedisURL(context.Background(), "redis://"+addr)
	assert.False(t, res.Valid)
}

func TestValidateMinLength(t *testing.T) {
	check := NewValidator().ValidateMinLength(16, "Push gateway API key")

	assert.True(t, check(context.Background(), "0123456789abcdef").Valid)
	assert.False(t, check(context.Background(), "  short  ").Valid)
}
