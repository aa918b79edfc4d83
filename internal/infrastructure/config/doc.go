// Package config loads and validates MQTT Vault configuration.
//
// Configuration comes from three layers, later layers overriding earlier:
//
//  1. Hardcoded defaults
//  2. A YAML file (configs/config.yaml by default)
//  3. MQTTVAULT_* environment variables
//
// Validation runs after all layers are applied. Configuration errors are
// fatal at startup: the process reports them and exits rather than running
// with a partially valid configuration.
package config
