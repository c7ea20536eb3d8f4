package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyguard/internal/types"
)

func TestPrometheus_Recorder(t *testing.T) {
	p := NewPrometheus("skyguard")

	p.AlertSent(types.AlertTypeWeather, "weather_monitor", 12)
	p.AlertSent(types.AlertTypeWeather, "weather_monitor", 3)
	p.PartialFanout(types.AlertTypeEmergency)
	p.RateLimited()
	p.AuditWriteFailed()
	p.MonitorCycle(2, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.alertsSent.WithLabelValues("weather", "weather_monitor")))
	assert.Equal(t, 15.0, testutil.ToFloat64(p.recipients.WithLabelValues("weather")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.partialFanout.WithLabelValues("emergency")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.rateLimited))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.auditDropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.cycleAlerts))
}

func TestPrometheus_HandlerExposesRequests(t *testing.T) {
	p := NewPrometheus("skyguard")
	p.ObserveRequest("POST", "/v1/alerts", 201, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `skyguard_http_request_duration_seconds_count{method="POST",route="/v1/alerts",status="201"} 1`)
}

type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func dimension(dims []cwtypes.Dimension, name string) string {
	for _, d := range dims {
		if aws.ToString(d.Name) == name {
			return aws.ToString(d.Value)
		}
	}
	return ""
}

func TestCloudWatch_RecordDelivery(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatch(cw, "", nil)

	m.RecordDelivery(context.Background(), types.DeliverySMS, "success")

	require.Len(t, cw.calls, 1)
	assert.Equal(t, types.MetricNamespace, aws.ToString(cw.calls[0].Namespace))
	datum := cw.calls[0].MetricData[0]
	assert.Equal(t, types.MetricDeliveryAttempt, aws.ToString(datum.MetricName))
	assert.Equal(t, cwtypes.StandardUnitCount, datum.Unit)
	assert.Equal(t, "sms", dimension(datum.Dimensions, types.DimChannel))
	assert.Equal(t, "success", dimension(datum.Dimensions, types.DimResult))
}

func TestCloudWatch_RecordCycleSingleCall(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatch(cw, "SkyGuardDev", nil)

	m.RecordCycle(context.Background(), "scheduler", 3, 5, 1)

	require.Len(t, cw.calls, 1)
	assert.Equal(t, "SkyGuardDev", aws.ToString(cw.calls[0].Namespace))
	require.Len(t, cw.calls[0].MetricData, 3)
	assert.Equal(t, 5.0, aws.ToFloat64(cw.calls[0].MetricData[1].Value))
	assert.Equal(t, "scheduler", dimension(cw.calls[0].MetricData[2].Dimensions, types.DimSource))
}

func TestCloudWatch_QueueLagMilliseconds(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatch(cw, "", nil)

	m.RecordQueueLag(context.Background(), 1500*time.Millisecond)

	datum := cw.calls[0].MetricData[0]
	assert.Equal(t, 1500.0, aws.ToFloat64(datum.Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, datum.Unit)
}

func TestCloudWatch_ErrorIsSwallowed(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	m := NewCloudWatch(cw, "", nil)

	assert.NotPanics(t, func() { m.RecordArchived(context.Background(), 10) })
	assert.Len(t, cw.calls, 1)
}
