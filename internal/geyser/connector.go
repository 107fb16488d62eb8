package geyser

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// endpoint is a parsed server address.
type endpoint struct {
	target string // host:port
	host   string
	tls    bool
}

// Connect dials the server described by cfg and waits for the channel to
// become ready. extra options are applied after the ones derived from cfg.
func Connect(ctx context.Context, cfg ConnectionConfig, extra ...grpc.DialOption) (*Client, error) {
	ep, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	opts, err := dialOptions(cfg, ep)
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient("passthrough:///"+ep.target, opts...)
	if err != nil {
		return nil, &ConfigError{Field: "endpoint", Err: err}
	}

	if err := waitReady(ctx, conn, cfg.ConnectTimeout); err != nil {
		conn.Close()
		return nil, &ConnectError{Endpoint: cfg.Endpoint, Err: err}
	}

	client := &Client{
		conn:     conn,
		geyser:   pb.NewGeyserClient(conn),
		endpoint: cfg.Endpoint,
	}

	// The channel can be ready while the token is rejected; check the version
	// once so an auth failure surfaces here rather than on the first stream read.
	checkTimeout := defaultVersionCheckTimeout
	if cfg.ConnectTimeout != nil {
		checkTimeout = *cfg.ConnectTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	version, err := client.GetVersion(checkCtx)
	cancel()
	if err != nil {
		switch status.Code(err) {
		case codes.Unauthenticated, codes.PermissionDenied, codes.DeadlineExceeded, codes.Canceled:
			conn.Close()
			return nil, &ConnectError{Endpoint: cfg.Endpoint, Err: err}
		}
	}
	client.version = version

	return client, nil
}

// defaultVersionCheckTimeout bounds the version check when ConnectTimeout is unset.
const defaultVersionCheckTimeout = 10 * time.Second

// parseEndpoint accepts https://host[:port], http://host[:port] and host[:port].
func parseEndpoint(raw string) (endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return endpoint{}, &ConfigError{Field: "endpoint", Err: errors.New("empty endpoint")}
	}

	if strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "http://") {
		u, err := url.Parse(raw)
		if err != nil {
			return endpoint{}, &ConfigError{Field: "endpoint", Err: err}
		}
		if u.Hostname() == "" {
			return endpoint{}, &ConfigError{Field: "endpoint", Err: fmt.Errorf("missing host in %q", raw)}
		}

		useTLS := u.Scheme == "https"
		port := u.Port()
		if port == "" {
			port = "80"
			if useTLS {
				port = "443"
			}
		}
		return endpoint{
			target: net.JoinHostPort(u.Hostname(), port),
			host:   u.Hostname(),
			tls:    useTLS,
		}, nil
	}

	if strings.Contains(raw, "://") {
		return endpoint{}, &ConfigError{Field: "endpoint", Err: fmt.Errorf("unsupported scheme in %q", raw)}
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		host, port = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]"), "443"
	}
	if host == "" {
		return endpoint{}, &ConfigError{Field: "endpoint", Err: fmt.Errorf("missing host in %q", raw)}
	}
	return endpoint{
		target: net.JoinHostPort(host, port),
		host:   host,
		tls:    true,
	}, nil
}

// dialOptions maps each set field of cfg onto exactly one transport knob.
func dialOptions(cfg ConnectionConfig, ep endpoint) ([]grpc.DialOption, error) {
	var opts []grpc.DialOption

	creds, err := transportCredentials(cfg, ep)
	if err != nil {
		return nil, err
	}
	opts = append(opts, grpc.WithTransportCredentials(creds))

	if cfg.XToken != nil && *cfg.XToken != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(&tokenAuth{
			token:      *cfg.XToken,
			requireTLS: ep.tls,
		}))
	}

	maxRecv := cfg.MaxDecodingMessageSize
	if maxRecv <= 0 {
		maxRecv = DefaultMaxDecodingMessageSize
	}
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecv)))

	if cfg.BufferSize != nil {
		opts = append(opts, grpc.WithWriteBufferSize(*cfg.BufferSize))
	}

	if cfg.ConnectTimeout != nil {
		opts = append(opts, grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: *cfg.ConnectTimeout,
		}))
	}

	if cfg.Timeout != nil {
		opts = append(opts, grpc.WithChainUnaryInterceptor(timeoutUnaryInterceptor(*cfg.Timeout)))
	}

	opts = append(opts, windowOptions(cfg)...)

	if kp, ok := keepaliveParams(cfg); ok {
		opts = append(opts, grpc.WithKeepaliveParams(kp))
	}

	if cfg.TCPKeepAlive != nil || cfg.TCPNoDelay != nil {
		opts = append(opts, grpc.WithContextDialer(tcpDialer(cfg.TCPKeepAlive, cfg.TCPNoDelay)))
	}

	return opts, nil
}

// transportCredentials loads TLS trust material. A configured CA file is
// added on top of the system roots.
func transportCredentials(cfg ConnectionConfig, ep endpoint) (credentials.TransportCredentials, error) {
	var pool *x509.CertPool
	if cfg.CACertificate != nil {
		pem, err := os.ReadFile(*cfg.CACertificate)
		if err != nil {
			return nil, &ConfigError{Field: "ca_certificate", Err: err}
		}

		pool, err = x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, &ConfigError{
				Field: "ca_certificate",
				Err:   fmt.Errorf("no PEM certificates in %s", *cfg.CACertificate),
			}
		}
	}

	if !ep.tls {
		return insecure.NewCredentials(), nil
	}

	return credentials.NewTLS(&tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: ep.host,
		RootCAs:    pool, // nil selects the system roots
	}), nil
}

// windowOptions maps the flow control settings. grpc-go turns BDP estimation
// off whenever an initial window is set, so an explicit adaptive window
// ignores the window sizes.
func windowOptions(cfg ConnectionConfig) []grpc.DialOption {
	if cfg.HTTP2AdaptiveWindow != nil && *cfg.HTTP2AdaptiveWindow {
		return nil
	}
	static := cfg.HTTP2AdaptiveWindow != nil

	var opts []grpc.DialOption
	if cfg.InitialStreamWindowSize != nil {
		if static {
			opts = append(opts, grpc.WithStaticStreamWindowSize(*cfg.InitialStreamWindowSize))
		} else {
			opts = append(opts, grpc.WithInitialWindowSize(*cfg.InitialStreamWindowSize))
		}
	} else if static {
		opts = append(opts, grpc.WithStaticStreamWindowSize(defaultWindowSize))
	}

	if cfg.InitialConnectionWindowSize != nil {
		if static {
			opts = append(opts, grpc.WithStaticConnWindowSize(*cfg.InitialConnectionWindowSize))
		} else {
			opts = append(opts, grpc.WithInitialConnWindowSize(*cfg.InitialConnectionWindowSize))
		}
	} else if static {
		opts = append(opts, grpc.WithStaticConnWindowSize(defaultWindowSize))
	}

	return opts
}

// defaultWindowSize is the HTTP/2 initial window from RFC 7540.
const defaultWindowSize = 65535

func keepaliveParams(cfg ConnectionConfig) (keepalive.ClientParameters, bool) {
	var kp keepalive.ClientParameters
	set := false
	if cfg.HTTP2KeepAliveInterval != nil {
		kp.Time = *cfg.HTTP2KeepAliveInterval
		set = true
	}
	if cfg.KeepAliveTimeout != nil {
		kp.Timeout = *cfg.KeepAliveTimeout
		set = true
	}
	if cfg.KeepAliveWhileIdle != nil {
		kp.PermitWithoutStream = *cfg.KeepAliveWhileIdle
		set = true
	}
	return kp, set
}

func tcpDialer(keepAlive *time.Duration, noDelay *bool) func(context.Context, string) (net.Conn, error) {
	dialer := &net.Dialer{}
	if keepAlive != nil {
		dialer.KeepAlive = *keepAlive
	}

	return func(ctx context.Context, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		if noDelay != nil {
			if tcp, ok := conn.(*net.TCPConn); ok {
				if err := tcp.SetNoDelay(*noDelay); err != nil {
					conn.Close()
					return nil, fmt.Errorf("set tcp nodelay: %w", err)
				}
			}
		}
		return conn, nil
	}
}

func timeoutUnaryInterceptor(d time.Duration) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// waitReady starts connecting and blocks until the channel is ready or fails.
func waitReady(ctx context.Context, conn *grpc.ClientConn, timeout *time.Duration) error {
	if timeout != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			return fmt.Errorf("connection state %s", state)
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("waiting for connection (state %s): %w", state, ctx.Err())
		}
	}
}

// tokenAuth implements grpc.PerRPCCredentials for x-token authentication.
type tokenAuth struct {
	token      string
	requireTLS bool
}

// GetRequestMetadata returns the authentication metadata.
func (t *tokenAuth) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{
		"x-token": t.token,
	}, nil
}

// RequireTransportSecurity returns whether TLS is required.
func (t *tokenAuth) RequireTransportSecurity() bool {
	return t.requireTLS
}
