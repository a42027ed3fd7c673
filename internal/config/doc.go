// Package config loads process configuration from the environment
// (optionally seeded from a .env file) and validates it at startup.
package config
