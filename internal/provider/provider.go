package provider

import (
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const maxErrorBody = 512

// errorPaths are the places providers put a human readable error message
var errorPaths = []string{
	"error.message",
	"error",
	"detail.message",
	"detail",
	"message",
	"msg",
}

// ClientConfig holds shared HTTP settings for a provider client
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
	UserAgent  string
}

// NewClient creates a resty client that retries only transport
// failures, rate limits and server errors.
func NewClient(cfg ClientConfig) *resty.Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return IsRetryableStatus(resp.StatusCode())
		})

	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return client
}

// IsRetryableStatus reports whether a provider status code is worth retrying
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// NewError builds a ProviderError from a non-success response
func NewError(name string, resp *resty.Response) *domain.ProviderError {
	body := resp.Body()
	return &domain.ProviderError{
		Provider:   name,
		StatusCode: resp.StatusCode(),
		Message:    ErrorMessage(body),
		Body:       Truncate(string(body), maxErrorBody),
	}
}

// ErrorMessage extracts the first string error message found in a JSON body
func ErrorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range errorPaths {
		result := gjson.GetBytes(body, path)
		if result.Type == gjson.String && result.Str != "" {
			return result.Str
		}
	}
	return ""
}

// Truncate shortens s to at most n bytes without splitting a rune
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
