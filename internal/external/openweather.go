package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"skyguard/internal/types"
)

// OpenWeatherClient reads OpenWeatherMap-compatible endpoints.
type OpenWeatherClient struct {
	base    *BaseClient
	baseURL string
	apiKey  string
}

// NewOpenWeatherClient creates a client for the API at baseURL.
func NewOpenWeatherClient(base *BaseClient, baseURL, apiKey string) *OpenWeatherClient {
	return &OpenWeatherClient{base: base, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type owmCurrent struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Visibility float64 `json:"visibility"`
}

type owmOneCall struct {
	Alerts []struct {
		SenderName  string   `json:"sender_name"`
		Event       string   `json:"event"`
		Start       int64    `json:"start"`
		End         int64    `json:"end"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	} `json:"alerts"`
}

type owmPollution struct {
	List []struct {
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
		Components struct {
			PM25 float64 `json:"pm2_5"`
			PM10 float64 `json:"pm10"`
			O3   float64 `json:"o3"`
			NO2  float64 `json:"no2"`
		} `json:"components"`
	} `json:"list"`
}

// Current returns current conditions rounded the way they are displayed:
// whole degrees and mph, visibility in km.
func (c *OpenWeatherClient) Current(ctx context.Context, lat, lon float64) (*types.Conditions, error) {
	var raw owmCurrent
	if err := c.get(ctx, "/data/2.5/weather", lat, lon, url.Values{"units": {"imperial"}}, &raw); err != nil {
		return nil, err
	}

	out := &types.Conditions{
		Location:    raw.Name,
		Temperature: math.Round(raw.Main.Temp),
		FeelsLike:   math.Round(raw.Main.FeelsLike),
		Humidity:    raw.Main.Humidity,
		WindSpeed:   math.Round(raw.Wind.Speed),
		Visibility:  int(math.Round(raw.Visibility / 1000)),
	}
	if raw.Sys.Country != "" {
		out.Location = raw.Name + ", " + raw.Sys.Country
	}
	if len(raw.Weather) > 0 {
		out.Description = raw.Weather[0].Description
		out.Icon = raw.Weather[0].Icon
	}
	return out, nil
}

// Advisories returns official warnings for the point. Accounts without
// One Call access get an error; callers treat that as "no advisories".
func (c *OpenWeatherClient) Advisories(ctx context.Context, lat, lon float64) ([]types.Advisory, error) {
	var raw owmOneCall
	if err := c.get(ctx, "/data/3.0/onecall", lat, lon, url.Values{"exclude": {"minutely,hourly,daily"}}, &raw); err != nil {
		return nil, err
	}
	out := make([]types.Advisory, 0, len(raw.Alerts))
	for _, a := range raw.Alerts {
		out = append(out, types.Advisory{
			SenderName:  a.SenderName,
			Event:       a.Event,
			Start:       time.Unix(a.Start, 0).UTC(),
			End:         time.Unix(a.End, 0).UTC(),
			Description: a.Description,
			Tags:        a.Tags,
		})
	}
	return out, nil
}

// AirQuality returns the latest pollution reading, or nil when the
// upstream has none for the point.
func (c *OpenWeatherClient) AirQuality(ctx context.Context, lat, lon float64) (*types.AirQuality, error) {
	var raw owmPollution
	if err := c.get(ctx, "/data/2.5/air_pollution", lat, lon, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw.List) == 0 {
		return nil, nil
	}
	first := raw.List[0]
	return &types.AirQuality{
		AQI:  first.Main.AQI,
		PM25: first.Components.PM25,
		PM10: first.Components.PM10,
		O3:   first.Components.O3,
		NO2:  first.Components.NO2,
	}, nil
}

// Ping reports whether the API answers with the configured key.
func (c *OpenWeatherClient) Ping(ctx context.Context) error {
	_, err := c.Current(ctx, 0, 0)
	return err
}

func (c *OpenWeatherClient) get(ctx context.Context, path string, lat, lon float64, extra url.Values, dst any) error {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build weather request", err)
	}
	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamWeather,
			fmt.Sprintf("weather API returned %d", resp.StatusCode), nil,
			map[string]any{"path": path, "body": string(body)})
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamWeather, "failed to decode weather response", err)
	}
	return nil
}
