// Package ingest implements the router's ingestion sources.
//
// A LineServer keeps one stubborn TCP connection to a remote feeder, frames
// the byte stream on newlines, parses each line as a JSON message and pushes
// it onto an ingestion queue. A PubSubSource does the same for frames
// received from a remote MQTT publish endpoint. TCPListener and UDPListener
// accept feeders that connect or send to the router instead; UDPListener
// reassembles values split across datagrams.
//
// Malformed input is logged and dropped; a full or closed ingestion queue
// drops the message. Neither ever stops a source.
package ingest
