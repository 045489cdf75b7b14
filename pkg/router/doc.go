// Package router wires the configured sinks and sources together.
//
// For every message family a Monitor drains the processed queue and hands
// each message to every sink of that family: the UDP sender synchronously,
// every other sink through its own bounded queue. A sink whose queue is
// full loses that message and nothing else.
//
// Router builds the sink sets from a config.Config at startup. A sink that
// cannot bind or listen is logged and left out; the rest still start.
package router
