// Package reconnect implements the router's reconnect strategy and the
// stubborn TCP connection built on it.
//
// A Schedule is an infinite, lazily produced sequence of wait durations:
// fourteen 5s waits for fast recovery from transient blips, then 10s, 20s,
// 30s, 40s, 50s, 60s, and 60s forever after. There is no jitter and no
// attempt limit.
//
// A Conn is an outbound TCP connection that looks like an ordinary stream
// to its owner. It connects lazily, retries forever when the first attempt
// fails, and reconnects transparently after the peer goes away. Every outage
// consumes a fresh Schedule; schedules are never shared or rewound.
package reconnect
