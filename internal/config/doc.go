// Package config handles configuration loading for ember-chat.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${EMBER_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  access_token_ttl: "15m"
//	  refresh_token_ttl: "720h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/ember/chat.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${EMBER_JWT_SECRET}"  # Required
//	  access_token_ttl: "15m"
//	  refresh_token_ttl: "720h"
//
// Assistant:
//
//	assistant:
//	  history_window: 20    # Messages of context per reply
//	  chunk_delay: "25ms"   # Pacing between streamed chunks
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
//	cfg, err := config.Load("/etc/ember/chat.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
