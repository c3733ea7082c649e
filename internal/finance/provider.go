package finance

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnavailable is returned when the provider cannot produce a usable record.
var ErrUnavailable = errors.New("financial data unavailable")

// ProviderConfig controls provider construction.
type ProviderConfig struct {
	Mode    string
	URL     string
	Timeout time.Duration
}

func NewProvider(cfg ProviderConfig) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "static"
	}

	switch mode {
	case "static", "mock":
		return NewStaticProvider(), nil
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("finance provider url is required for http mode")
		}
		return NewHTTPProvider(cfg.URL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported finance provider mode %q", cfg.Mode)
	}
}
