// Package logging provides structured logging for the FSMosquito client.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version, client_id) and the same level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version, cfg.Client.ID)
//	logger.Component("simconnect").Info("connected", "relay", url)
//
// Never log broker passwords or the InfluxDB token.
package logging
