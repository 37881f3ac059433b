// Package config loads tether's settings.
//
// # Resolution Order
//
//  1. Built-in defaults
//  2. The TOML file given with -config, or ~/.config/tether/config.toml
//  3. A .env file in the working directory (never overrides variables
//     already set)
//  4. TETHER_* environment variables
//
// A missing config file is not an error. A present but malformed one is.
//
// # Default Values
//
//   - relay_url: 127.0.0.1:11972 (scheme defaults to http)
//   - password: empty
//   - max_lines_per_window: 3000, or 1000 with the compact preference
//   - poll_wait_seconds: 60 (at most 300)
//   - snapshot_timeout_seconds: 10
//   - action_timeout_seconds: 5
//   - backoff_floor_seconds: 1
//   - backoff_ceiling_seconds: 300
//   - log_file: ~/.local/state/tether/tether.log
//   - log_level: info
//   - metrics_addr: empty (no listener)
//
// # TOML Format
//
//	relay_url = "https://example.org/mamirc/"
//	password = "secret"
//	log_level = "debug"
//	metrics_addr = "127.0.0.1:9464"
//
// # Environment
//
//   - TETHER_RELAY_URL
//   - TETHER_PASSWORD
//   - TETHER_LOG_LEVEL
//   - TETHER_METRICS_ADDR
//
// Keeping the password in the environment or a .env file keeps it out of a
// config file that may be shared.
//
// # Path Expansion
//
// Paths beginning with ~ are expanded against the user's home directory and
// made absolute.
package config
