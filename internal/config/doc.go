// Package config loads domwire.json project files.
//
// The file sits at the project root. Every field is optional; durations
// use time.ParseDuration syntax.
//
// # Configuration File Structure
//
//	{
//	  "name": "inventory",
//	  "pages": "pages",
//	  "server": {
//	    "address": ":8080",
//	    "maxConnections": 500,
//	    "trustedProxies": ["10.0.0.0/8"],
//	    "allowedRedirectHosts": ["docs.example.com"],
//	    "userIdleTTL": "12h"
//	  },
//	  "connection": {
//	    "heartbeatInterval": "20s",
//	    "callTimeout": "2m"
//	  },
//	  "uploads": {
//	    "s3": {"bucket": "inventory-downloads", "region": "eu-west-1"},
//	    "maxAge": "30m"
//	  },
//	  "metrics": {"address": ":9090"}
//	}
//
// # Usage
//
//	cfg, err := config.LoadFromWorkingDir()
//	if err != nil {
//	    errors.PrintError(err)
//	    os.Exit(1)
//	}
//	srv := server.New(app, cfg.ServerConfig())
package config
