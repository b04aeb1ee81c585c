// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// OPSBOARD_WS_URL and OPSBOARD_WS_TOKEN, when set, override realtime.ws_url and
// realtime.token regardless of the file contents.
package config
