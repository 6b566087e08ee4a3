package config

import (
	"net/url"
	"strings"
)

// Validate checks the configuration for errors and sets derived defaults.
// The returned error, if any, is a *ConfigError naming every problem found.
func (c *Config) Validate() error {
	ce := &ConfigError{}

	c.DART.APIKey = strings.TrimSpace(c.DART.APIKey)
	c.DART.CorpCode = strings.TrimSpace(c.DART.CorpCode)
	c.Telegram.Token = strings.TrimSpace(c.Telegram.Token)
	c.Telegram.ChatID = strings.TrimSpace(c.Telegram.ChatID)

	if c.DART.APIKey == "" {
		ce.Missing = append(ce.Missing, "dart.api_key")
	}
	if c.DART.CorpCode == "" {
		ce.Missing = append(ce.Missing, "dart.corp_code")
	}
	if c.Telegram.Token == "" {
		ce.Missing = append(ce.Missing, "telegram.token")
	}
	if c.Telegram.ChatID == "" {
		ce.Missing = append(ce.Missing, "telegram.chat_id")
	}

	mode, err := ParseMode(c.Mode)
	if err != nil {
		ce.Invalid = append(ce.Invalid, "mode: "+err.Error())
	}
	c.mode = mode

	if c.dartTimeout, err = ParseDurationOrDefault("dart.timeout", c.DART.Timeout, DefaultRequestTimeout); err != nil {
		ce.Invalid = append(ce.Invalid, err.Error())
	}
	if c.telegramTimeout, err = ParseDurationOrDefault("telegram.timeout", c.Telegram.Timeout, DefaultRequestTimeout); err != nil {
		ce.Invalid = append(ce.Invalid, err.Error())
	}
	if c.busyTimeout, err = ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		ce.Invalid = append(ce.Invalid, err.Error())
	}

	c.DART.BaseURL = normalizeURL(c.DART.BaseURL, DefaultDARTBaseURL)
	if !validHTTPURL(c.DART.BaseURL) {
		ce.Invalid = append(ce.Invalid, "dart.base_url: must be an http(s) URL")
	}
	c.Telegram.APIURL = normalizeURL(c.Telegram.APIURL, DefaultTelegramAPIURL)
	if !validHTTPURL(c.Telegram.APIURL) {
		ce.Invalid = append(ce.Invalid, "telegram.api_url: must be an http(s) URL")
	}
	if c.Telegram.RatePerSec <= 0 {
		c.Telegram.RatePerSec = 1
	}

	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "file"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStatePath
	}

	if ce.empty() {
		return nil
	}
	return ce
}

func normalizeURL(raw, def string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = def
	}
	return strings.TrimRight(s, "/")
}

func validHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
