package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
)

const (
	AlphaVantageBaseURL = "https://www.alphavantage.co/query"
	YahooRapidBaseURL   = "https://yahoo-finance127.p.rapidapi.com"
	yahooRapidHost      = "yahoo-finance127.p.rapidapi.com"
)

// FormatQuote renders "SYM: 123.45 +1.23".
func FormatQuote(symbol string, price, change decimal.Decimal) string {
	sign := "+"
	if change.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%s: %s %s%s", symbol, price.StringFixed(2), sign, change.Abs().StringFixed(2))
}

// AlphaVantage fetches GLOBAL_QUOTE prices.
type AlphaVantage struct {
	desc    Descriptor
	client  *Client
	apiKey  string
	baseURL string
}

func NewAlphaVantage(desc Descriptor, client *Client, apiKey, baseURL string) *AlphaVantage {
	if baseURL == "" {
		baseURL = AlphaVantageBaseURL
	}
	return &AlphaVantage{desc: desc, client: client, apiKey: apiKey, baseURL: baseURL}
}

func (a *AlphaVantage) Descriptor() Descriptor { return a.desc }

type globalQuoteResponse struct {
	GlobalQuote *struct {
		Price  string `json:"05. price"`
		Change string `json:"09. change"`
	} `json:"Global Quote"`
}

func (a *AlphaVantage) Fetch(ctx context.Context, symbol string) (string, error) {
	if symbol == "" {
		return "", NewFetchError(a.desc.ID, KindMissingField, errors.New("symbol is required"))
	}

	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", a.apiKey)

	var data globalQuoteResponse
	if err := a.client.GetJSON(ctx, a.desc.ID, a.baseURL+"?"+q.Encode(), nil, &data); err != nil {
		return "", err
	}
	if data.GlobalQuote == nil {
		return "", NewFetchError(a.desc.ID, KindMissingField, errors.New("Global Quote not found in response"))
	}

	price, err := decimal.NewFromString(data.GlobalQuote.Price)
	if err != nil {
		return "", NewFetchError(a.desc.ID, KindMalformed, fmt.Errorf("price: %w", err))
	}
	change, err := decimal.NewFromString(data.GlobalQuote.Change)
	if err != nil {
		return "", NewFetchError(a.desc.ID, KindMalformed, fmt.Errorf("change: %w", err))
	}
	return FormatQuote(symbol, price, change), nil
}

// YahooRapid fetches prices from the Yahoo Finance RapidAPI proxy.
type YahooRapid struct {
	desc    Descriptor
	client  *Client
	apiKey  string
	baseURL string
}

func NewYahooRapid(desc Descriptor, client *Client, apiKey, baseURL string) *YahooRapid {
	if baseURL == "" {
		baseURL = YahooRapidBaseURL
	}
	return &YahooRapid{desc: desc, client: client, apiKey: apiKey, baseURL: baseURL}
}

func (y *YahooRapid) Descriptor() Descriptor { return y.desc }

type rawValue struct {
	Raw *float64 `json:"raw"`
}

type yahooPriceResponse struct {
	RegularMarketPrice  *rawValue `json:"regularMarketPrice"`
	RegularMarketChange *rawValue `json:"regularMarketChange"`
}

func (y *YahooRapid) Fetch(ctx context.Context, symbol string) (string, error) {
	if symbol == "" {
		return "", NewFetchError(y.desc.ID, KindMissingField, errors.New("symbol is required"))
	}

	headers := map[string]string{
		"X-RapidAPI-Key":  y.apiKey,
		"X-RapidAPI-Host": yahooRapidHost,
	}

	var data yahooPriceResponse
	if err := y.client.GetJSON(ctx, y.desc.ID, y.baseURL+"/price/"+url.PathEscape(symbol), headers, &data); err != nil {
		return "", err
	}
	if data.RegularMarketPrice == nil || data.RegularMarketPrice.Raw == nil {
		return "", NewFetchError(y.desc.ID, KindMissingField, errors.New("regularMarketPrice not found in response"))
	}
	if data.RegularMarketChange == nil || data.RegularMarketChange.Raw == nil {
		return "", NewFetchError(y.desc.ID, KindMissingField, errors.New("regularMarketChange not found in response"))
	}

	return FormatQuote(symbol,
		decimal.NewFromFloat(*data.RegularMarketPrice.Raw),
		decimal.NewFromFloat(*data.RegularMarketChange.Raw)), nil
}
