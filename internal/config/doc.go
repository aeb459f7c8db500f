// Package config owns the TOML configuration for the narration service.
//
// Load layers a config file over built-in defaults, expands tilde paths,
// pulls provider credentials from the environment when the file omits
// them, and validates the result in one pass. The daemon and every CLI
// command read settings exclusively through the Config type so path
// normalization and credential checks happen in exactly one place.
package config
