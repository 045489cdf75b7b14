// Package egress delivers processed messages to their destinations.
//
// Three kinds of sink exist:
//
//   - UDPSender sends one datagram per destination from a single socket.
//   - Sender drains a queue into a Writer, either a TCPWriter (stubborn,
//     reconnecting stream) or a PubSubWriter (embedded MQTT broker).
//   - BroadcastServer accepts TCP clients and fans every message out to
//     all of them through a Registry of per-peer channels.
//
// Every sink is fed from its own bounded queue, so a slow destination only
// ever costs its own messages.
package egress
