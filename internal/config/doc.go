// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the settings the agent and the calculation service need while
// keeping configuration details separate from business logic.
package config
