// Package config handles configuration loading for sten-gateway.
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
//  1. Path from STEN_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/sten/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	agent:
//	  url: "${STEN_AGENT_URL}"
//
// Syntax: ${VAR_NAME}. STEN_DB_PATH and STEN_HTTP_ADDR override the file.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	database:
//	  path: "/var/lib/sten/gateway.db"
//
//	agent:
//	  url: "http://localhost:9000/reply"  # empty: canned replies
//	  timeout: "30s"
//
//	limits:
//	  send_rps: 5      # per guest
//	  send_burst: 10
//
//	replay:
//	  ttl: "10m"       # Idempotency-Key memory
//	  max_size: 10000
//
//	cors:
//	  allowed_origins: ["https://shop.example.com"]
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Usage
//
//	cfg, err := config.Load("/etc/sten/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
