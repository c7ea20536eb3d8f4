package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyguard/internal/core"
	"skyguard/internal/types"
)

func probe(name string, err error) core.HealthProbe {
	return core.ProbeFunc{Label: name, Fn: func(context.Context) error { return err }}
}

func TestSystemHandler_Test(t *testing.T) {
	h := NewSystemHandler([]core.HealthProbe{
		probe(ProbeSMS, nil),
		probe(ProbeEmail, errors.New("ses: access denied")),
		probe(ProbeWeather, nil),
		probe(ProbeDatabase, nil),
	}, discardLogger())
	router, _ := testRouter(t, admin, func(r chi.Router, g Guards) { h.RegisterRoutes(r, g) })

	rec := serve(router, http.MethodGet, "/v1/system/test", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got map[string]bool
	dataOf(t, rec, &got)
	assert.Equal(t, map[string]bool{
		"sms":      true,
		"push":     false,
		"email":    false,
		"weather":  true,
		"database": true,
	}, got)
}

func TestSystemHandler_SlowProbeReportsFalse(t *testing.T) {
	h := NewSystemHandler([]core.HealthProbe{
		core.ProbeFunc{Label: ProbePush, Fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	}, discardLogger())
	h.timeout = 20 * time.Millisecond
	router, _ := testRouter(t, admin, func(r chi.Router, g Guards) { h.RegisterRoutes(r, g) })

	rec := serve(router, http.MethodGet, "/v1/system/test", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]bool
	dataOf(t, rec, &got)
	assert.False(t, got[ProbePush])
}

func TestSystemHandler_AdminOnly(t *testing.T) {
	h := NewSystemHandler(nil, discardLogger())
	router, auditor := testRouter(t, employee, func(r chi.Router, g Guards) { h.RegisterRoutes(r, g) })

	rec := serve(router, http.MethodGet, "/v1/system/test", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(types.ErrCodePermissionRole), errorCode(t, rec))
	assert.Len(t, auditor.Denied, 1)
}
