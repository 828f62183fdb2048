// weather - клиент прогноза погоды OpenWeatherMap (/forecast, шаг 3 часа).
// Не требует аутентификации бэкенда, но использует ту же цепочку интерсепторов.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pribylovaa/agricare-client/internal/clients/interceptors"
	"github.com/pribylovaa/agricare-client/internal/config"
	apierrors "github.com/pribylovaa/agricare-client/internal/errors"
	"github.com/pribylovaa/agricare-client/internal/models"
)

// ErrNoAPIKey - ключ OpenWeatherMap не сконфигурирован.
var ErrNoAPIKey = errors.New("weather api key is not configured")

const iconBaseURL = "https://openweathermap.org/img/wn/"

type Client struct {
	baseURL string
	apiKey  string
	invoke  interceptors.Invoker
}

// New собирает клиент с цепочкой metadata -> timeout -> logging.
func New(cfg config.WeatherConfig, timeout time.Duration, userAgent string, httpClient *http.Client, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		invoke: interceptors.Chain(interceptors.HTTPInvoker(httpClient),
			interceptors.ClientWithMetadata(userAgent),
			interceptors.ClientWithTimeout(timeout),
			interceptors.ClientLoggingInterceptor(log),
		),
	}
}

// Forecast возвращает 5-дневный прогноз для координат в метрических единицах.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (*models.WeatherData, error) {
	const op = "weather.Forecast"

	if c.apiKey == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoAPIKey)
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%s: coordinates out of range: %v,%v", op, lat, lon)
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	u := c.baseURL + "/forecast?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.invoke(ctx, req)
	if err != nil {
		// URL содержит appid, поэтому в ошибку попадает только путь.
		return nil, &apierrors.NetworkError{Method: http.MethodGet, URL: c.baseURL + "/forecast", Err: err}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %w", op, apierrors.FromResponse(resp.StatusCode, resp.Header, body))
	}

	var data models.WeatherData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}

	return &data, nil
}

// IconURL - адрес иконки погоды по коду из WeatherCondition.Icon.
func IconURL(code string) string {
	return iconBaseURL + code + "@2x.png"
}

// DaySummary - сводка прогноза за календарный день.
type DaySummary struct {
	Date        string  `json:"date"        yaml:"date"`
	TempMin     float64 `json:"temp_min"    yaml:"temp_min"`
	TempMax     float64 `json:"temp_max"    yaml:"temp_max"`
	Description string  `json:"description" yaml:"description"`
	Icon        string  `json:"icon"        yaml:"icon"`
	RainMM      float64 `json:"rain_mm"     yaml:"rain_mm"`
}

// Daily группирует 3-часовые точки по дате (dt_txt, UTC) в порядке следования.
// Описание и иконка берутся из точки, ближайшей к полудню.
func Daily(list []models.WeatherForecast) []DaySummary {
	var (
		out      []DaySummary
		noonDist []int
	)

	for _, f := range list {
		date, hour := splitDtTxt(f)
		if date == "" {
			continue
		}

		if len(out) == 0 || out[len(out)-1].Date != date {
			out = append(out, DaySummary{Date: date, TempMin: f.Main.TempMin, TempMax: f.Main.TempMax})
			noonDist = append(noonDist, 1<<30)
		}

		d := &out[len(out)-1]
		d.TempMin = min(d.TempMin, f.Main.TempMin)
		d.TempMax = max(d.TempMax, f.Main.TempMax)
		if f.Rain != nil {
			d.RainMM += f.Rain.ThreeHours
		}

		dist := hour - 12
		if dist < 0 {
			dist = -dist
		}

		if dist < noonDist[len(noonDist)-1] && len(f.Weather) > 0 {
			noonDist[len(noonDist)-1] = dist
			d.Description = f.Weather[0].Description
			d.Icon = f.Weather[0].Icon
		}
	}

	return out
}

func splitDtTxt(f models.WeatherForecast) (string, int) {
	if t, err := time.Parse(time.DateTime, f.DtTxt); err == nil {
		return t.Format(time.DateOnly), t.Hour()
	}

	if f.Dt > 0 {
		t := time.Unix(f.Dt, 0).UTC()
		return t.Format(time.DateOnly), t.Hour()
	}

	return "", 0
}
