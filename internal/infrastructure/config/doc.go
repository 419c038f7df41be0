// Package config handles loading and validating Gray Logic Watchdog configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (WATCHDOG_ prefix)
//   - Validation of required fields and cross-section constraints
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens, JWT secret) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Without security.jwt.secret the HTTP API is read-only
//
// Usage:
//
//	cfg, err := config.Load("configs/watchdog.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Watchdog.PollPeriod)
package config
