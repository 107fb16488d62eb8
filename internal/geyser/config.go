package geyser

import "time"

// DefaultMaxDecodingMessageSize is the largest server message accepted by default.
const DefaultMaxDecodingMessageSize = 16 * 1024 * 1024

// ConnectionConfig configures the gRPC transport. Every pointer field is
// optional; nil leaves the transport default in place.
type ConnectionConfig struct {
	// Endpoint is the server URI. https:// and bare host:port use TLS,
	// http:// uses plaintext.
	Endpoint string

	// CACertificate is a PEM file added to the system roots. When nil only
	// the system roots are used.
	CACertificate *string
	// XToken is sent as the x-token header on every call.
	XToken *string

	// MaxDecodingMessageSize limits the size of a received message in bytes.
	MaxDecodingMessageSize int
	// BufferSize sets the transport write buffer in bytes.
	BufferSize *int

	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout *time.Duration
	// Timeout is a deadline for unary calls. The subscribe stream is
	// long-lived and is bounded only by its context.
	Timeout *time.Duration

	// HTTP2AdaptiveWindow toggles BDP-based flow control windows. When true
	// the initial window sizes are ignored.
	HTTP2AdaptiveWindow *bool
	// HTTP2KeepAliveInterval is the interval between HTTP/2 keep-alive pings.
	HTTP2KeepAliveInterval *time.Duration
	// InitialConnectionWindowSize is the HTTP/2 connection window in bytes.
	InitialConnectionWindowSize *int32
	// InitialStreamWindowSize is the HTTP/2 stream window in bytes.
	InitialStreamWindowSize *int32

	// KeepAliveTimeout is how long to wait for a keep-alive ack.
	KeepAliveTimeout *time.Duration
	// KeepAliveWhileIdle sends keep-alive pings with no active calls.
	KeepAliveWhileIdle *bool
	// TCPKeepAlive is the TCP-level keep-alive period.
	TCPKeepAlive *time.Duration
	// TCPNoDelay toggles Nagle's algorithm on the socket.
	TCPNoDelay *bool
}

// DefaultConnectionConfig returns a config for endpoint with every optional
// knob unset.
func DefaultConnectionConfig(endpoint string) ConnectionConfig {
	return ConnectionConfig{
		Endpoint:               endpoint,
		MaxDecodingMessageSize: DefaultMaxDecodingMessageSize,
	}
}
