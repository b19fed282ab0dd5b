// Package config handles loading and validating camcore configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Only the camera manager and the device-node enumerator are on by default.
// The database, MQTT, InfluxDB and HTTP API adapters each carry an
// "enabled" switch and are validated only when switched on.
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/camcore.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Enumerator.Dir)
package config
