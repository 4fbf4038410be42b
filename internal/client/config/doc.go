// Package config loads runtime configuration for the gophdrop CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the server
//	-d string   path of the local history database
//	-t int      request timeout (seconds)
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:8000",
//	  "history_path": "/home/me/.gophdrop.db",
//	  "request_timeout": "30s"
//	}
package config
