package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
)

const OpenWeatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// DegreeSign is rendered by sinks that support it; LCD sinks map it to a
// custom glyph.
const DegreeSign = "°"

// OpenWeather fetches current conditions. The fetch key overrides the
// configured city when non-empty.
type OpenWeather struct {
	desc    Descriptor
	client  *Client
	apiKey  string
	city    string
	units   string
	baseURL string
}

func NewOpenWeather(desc Descriptor, client *Client, apiKey, city, units, baseURL string) *OpenWeather {
	if baseURL == "" {
		baseURL = OpenWeatherBaseURL
	}
	if units == "" {
		units = "imperial"
	}
	return &OpenWeather{desc: desc, client: client, apiKey: apiKey, city: city, units: units, baseURL: baseURL}
}

func (w *OpenWeather) Descriptor() Descriptor { return w.desc }

type weatherResponse struct {
	Main *struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
}

func (w *OpenWeather) Fetch(ctx context.Context, city string) (string, error) {
	if city == "" {
		city = w.city
	}

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", w.apiKey)
	q.Set("units", w.units)

	var data weatherResponse
	if err := w.client.GetJSON(ctx, w.desc.ID, w.baseURL+"?"+q.Encode(), nil, &data); err != nil {
		return "", err
	}
	if data.Main == nil || data.Main.Temp == nil {
		return "", NewFetchError(w.desc.ID, KindMissingField, errors.New("main.temp not found in response"))
	}
	if len(data.Weather) == 0 {
		return "", NewFetchError(w.desc.ID, KindMissingField, errors.New("weather conditions not found in response"))
	}

	return fmt.Sprintf("%d%s%s %s", int(math.Trunc(*data.Main.Temp)), DegreeSign, unitLetter(w.units), data.Weather[0].Main), nil
}

func unitLetter(units string) string {
	switch units {
	case "metric":
		return "C"
	case "standard":
		return "K"
	default:
		return "F"
	}
}
