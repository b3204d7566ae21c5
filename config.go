package checkout

import (
	"fmt"
	"sync"
)

// Config holds process-wide defaults read by every subsequent checkout
// creation that does not supply its own values.
type Config struct {
	// OrgID is the organization identifier scoping every backend call.
	OrgID string
	// BaseURL overrides the billing backend base URL. Optional.
	BaseURL string
	// Region selects a regional backend endpoint when BaseURL is not set.
	// Optional.
	Region string
}

var (
	configMu      sync.RWMutex
	processConfig Config
)

// Configure sets the process-wide defaults. A later call overwrites the
// previous one; there is no explicit teardown.
func Configure(cfg Config) {
	configMu.Lock()
	defer configMu.Unlock()
	processConfig = cfg
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return processConfig
}

// resolveBaseURL picks the backend endpoint from an explicit URL, a region,
// or the default, in that order.
func resolveBaseURL(cfg Config) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	if cfg.Region != "" {
		return fmt.Sprintf("https://billing.%s.embilling.com", cfg.Region)
	}
	return defaultBaseURL
}
