// Package config handles configuration loading for ticketd.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion. A missing file is not an error; defaults apply. A small set
// of TICKETD_* environment variables override file values.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from TICKETD_CONFIG environment variable
//  2. ./ticketd.yaml (current directory)
//  3. ~/.config/ticketd/config.yaml
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
// # Environment Overrides
//
// These override whatever the file says:
//
//	TICKETD_ADDR       listen address
//	TICKETD_DATA_DIR   data directory
//	TICKETD_DRIVER     storage driver (sqlite or file)
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  addr: ":8080"
//	  web_dir: ""        # index.html location, defaults to data dir
//
// Storage:
//
//	storage:
//	  driver: "sqlite"   # sqlite or file
//	  data_dir: "/var/lib/ticketd"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "ticketd"
//	  auth_key: "${TS_AUTHKEY}"
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
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
