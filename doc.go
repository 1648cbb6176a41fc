// Package http2 implements a single-connection HTTP/2 client and server
// engine: frame codec, HPACK header compression, per-connection and
// per-stream flow control, and stream multiplexing over one TCP
// connection. Each connection runs two goroutines, a read loop and a
// write loop, coordinating through a small set of shared counters
// instead of a global lock.
package http2
