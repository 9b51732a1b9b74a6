// Package config handles configuration loading for the pagetap broker.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PAGETAP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/pagetap/gateway.yaml
//  3. ~/.config/pagetap/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	tailscale:
//	  auth_key: "${TS_AUTHKEY}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:3001"                  # WebSocket, scripts, API
//	  public_url: "https://debug.example.com"    # optional, for proxied setups
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "pagetap"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//	  funnel: false
//
// Session tuning:
//
//	session:
//	  log_buffer: 1000    # retained console events per session
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
