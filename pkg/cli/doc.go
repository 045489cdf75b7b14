// Package cli implements the acarsrouter command line.
//
// Commands:
//   - serve: run the router until SIGINT or SIGTERM
//   - validate: load and validate the configuration, then print a summary
//   - version: show version information
//
// Configuration comes from a YAML file (--config or AR_CONFIG), a .env file
// (--env-file, default ./.env), AR_* environment variables and flags, with
// flags taking precedence.
package cli
