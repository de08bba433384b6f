package configuration

import (
	"time"
)

type Configuration struct {
	HttpAddr          string        `usage:"HTTP address"`
	Items             int           `usage:"number of items generated on start"`
	AddDelay          time.Duration `usage:"batch window for new items"`
	UpdateDelay       time.Duration `usage:"batch window for select, deselect and reorder"`
	MaxRetries        int           `usage:"retries for a failed entry before it is dead lettered"`
	RetryDelay        time.Duration `usage:"first retry delay, doubled on every attempt"`
	MaxRetryDelay     time.Duration `usage:"retry delay upper bound"`
	DefaultLimit      int           `usage:"page size when none is requested"`
	MaxLimit          int           `usage:"maximum page size"`
	RateLimit         float64       `usage:"requests per second per client, 0 disables it"`
	RateBurst         int           `usage:"rate limit burst"`
	Statics           string        `usage:"statics directory"`
	EnableCompression bool          `usage:"enable gzip compression"`
	Version           bool          `usage:"show version and exit"`
	ShowBanner        bool          `usage:"show big banner"`
	ShowConfig        bool          `usage:"print config"`
}

func Default() Configuration {
	return Configuration{
		HttpAddr:          ":8080",
		Items:             1000000,
		AddDelay:          10 * time.Second,
		UpdateDelay:       1 * time.Second,
		MaxRetries:        3,
		RetryDelay:        1 * time.Second,
		MaxRetryDelay:     30 * time.Second,
		DefaultLimit:      20,
		MaxLimit:          1000,
		RateLimit:         0,
		RateBurst:         20,
		Statics:           "",
		EnableCompression: true,
		Version:           false,
		ShowBanner:        true,
		ShowConfig:        false,
	}
}
