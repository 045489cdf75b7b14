// Package message defines the values that flow through the router: decoded
// ACARS and VDLM2 messages and the protocol family they belong to.
//
// A Message holds any JSON value, usually an object tree. It is treated as
// immutable once produced; every sink receives its own Clone so delivery to
// one sink can never affect another. Numbers are decoded as json.Number so
// large integers (timestamps, frequencies) survive a parse/encode round trip
// unchanged.
package message
