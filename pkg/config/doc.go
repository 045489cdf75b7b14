// Package config loads and validates the router configuration.
//
// Values are layered with the following precedence (highest first):
//
//  1. Command-line flags (applied by the CLI)
//  2. Environment variables, optionally seeded from a .env file
//  3. A YAML configuration file
//  4. Defaults
//
// Every destination list is keyed by message family:
//
//	acars:
//	  send_udp: ["127.0.0.1:5555"]
//	  serve_tcp: ["15550"]
//	vdlm2:
//	  receive_tcp: ["dumpvdl2:5050"]
//	  serve_pubsub: ["45555"]
//
// In the environment, lists are separated by ';' or ',':
//
//	AR_SEND_UDP_ACARS=127.0.0.1:5555;10.0.0.2:5555
package config
