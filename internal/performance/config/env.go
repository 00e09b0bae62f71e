package config

import "strings"

// Env holds the process environment values a run may use. It is read once
// at startup and passed down, so nothing below the CLI touches os.Getenv.
type Env struct {
	// BaseURL overrides TestConfig.BaseURL when set
	BaseURL string
}

// EnvFromLookup builds an Env from a lookup function such as os.LookupEnv.
func EnvFromLookup(lookup func(string) (string, bool)) Env {
	var env Env
	if v, ok := lookup("BASE_URL"); ok {
		env.BaseURL = strings.TrimSpace(v)
	}
	return env
}

// ApplyEnv overlays environment values onto the configuration.
func (c *TestConfig) ApplyEnv(env Env) {
	if env.BaseURL != "" {
		c.BaseURL = strings.TrimRight(env.BaseURL, "/")
	}
}
