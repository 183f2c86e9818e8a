// Package config provides configuration loading and validation for the voice
// translation service. Configuration is read from YAML, secrets may come from
// a .env file or the process environment, and every section validates itself.
package config
