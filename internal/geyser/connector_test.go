package geyser

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// testGeyserServer answers GetVersion and replays canned updates on Subscribe.
type testGeyserServer struct {
	pb.UnimplementedGeyserServer

	token    string
	updates  []*pb.SubscribeUpdate
	received chan *pb.SubscribeRequest
}

func (s *testGeyserServer) checkToken(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	if vals := md.Get("x-token"); len(vals) == 0 || vals[0] != s.token {
		return status.Error(codes.Unauthenticated, "invalid x-token")
	}
	return nil
}

func (s *testGeyserServer) GetVersion(ctx context.Context, _ *pb.GetVersionRequest) (*pb.GetVersionResponse, error) {
	if err := s.checkToken(ctx); err != nil {
		return nil, err
	}
	return &pb.GetVersionResponse{Version: "test-1.0"}, nil
}

func (s *testGeyserServer) GetSlot(ctx context.Context, _ *pb.GetSlotRequest) (*pb.GetSlotResponse, error) {
	return &pb.GetSlotResponse{Slot: 1234}, nil
}

func (s *testGeyserServer) Ping(ctx context.Context, req *pb.PingRequest) (*pb.PongResponse, error) {
	return &pb.PongResponse{Count: req.Count}, nil
}

func (s *testGeyserServer) Subscribe(stream pb.Geyser_SubscribeServer) error {
	if err := s.checkToken(stream.Context()); err != nil {
		return err
	}
	req, err := stream.Recv()
	if err != nil {
		return err
	}
	if s.received != nil {
		s.received <- req
	}
	for _, u := range s.updates {
		if err := stream.Send(u); err != nil {
			return err
		}
	}
	return nil
}

// stalledVersionServer never answers GetVersion.
type stalledVersionServer struct {
	testGeyserServer
}

func (s *stalledVersionServer) GetVersion(ctx context.Context, _ *pb.GetVersionRequest) (*pb.GetVersionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// startTestServer serves srv on a loopback port and returns its http:// endpoint.
func startTestServer(t *testing.T, srv pb.GeyserServer) string {
	t.Helper()
	return "http://" + serve(t, srv)
}

// startTLSTestServer serves srv over TLS with a self-signed certificate for
// 127.0.0.1. It returns the https:// endpoint and the path of the
// certificate in PEM form.
func startTLSTestServer(t *testing.T, srv pb.GeyserServer) (string, string) {
	t.Helper()

	cert, certPEM := selfSignedCert(t)
	caPath := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caPath, certPEM, 0o600))

	addr := serve(t, srv, grpc.Creds(credentials.NewServerTLSFromCert(&cert)))
	return "https://" + addr, caPath
}

func serve(t *testing.T, srv pb.GeyserServer, opts ...grpc.ServerOption) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer(opts...)
	pb.RegisterGeyserServer(server, srv)
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	return lis.Addr().String()
}

func selfSignedCert(t *testing.T) (tls.Certificate, []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "geyser-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	return cert, certPEM
}

func ptr[T any](v T) *T {
	return &v
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw    string
		target string
		tls    bool
	}{
		{"https://solana-yellowstone-grpc.publicnode.com:443", "solana-yellowstone-grpc.publicnode.com:443", true},
		{"https://example.com", "example.com:443", true},
		{"http://localhost:10000", "localhost:10000", false},
		{"http://localhost", "localhost:80", false},
		{"example.com:8443", "example.com:8443", true},
		{"example.com", "example.com:443", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ep, err := parseEndpoint(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.target, ep.target)
			assert.Equal(t, tt.tls, ep.tls)
		})
	}
}

func TestParseEndpoint_BareIPv6(t *testing.T) {
	for _, raw := range []string{"[::1]", "::1"} {
		ep, err := parseEndpoint(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, "[::1]:443", ep.target, raw)
		assert.Equal(t, "::1", ep.host, raw)
		assert.True(t, ep.tls, raw)
	}

	ep, err := parseEndpoint("[::1]:10000")
	require.NoError(t, err)
	assert.Equal(t, "[::1]:10000", ep.target)
}

func TestParseEndpoint_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "https://", "ftp://example.com", ":443"} {
		_, err := parseEndpoint(raw)
		var cfgErr *ConfigError
		assert.True(t, errors.As(err, &cfgErr), "endpoint %q: expected ConfigError, got %v", raw, err)
	}
}

func TestConnect_MissingCACertificate(t *testing.T) {
	cfg := DefaultConnectionConfig("https://example.com")
	cfg.CACertificate = ptr(filepath.Join(t.TempDir(), "missing.pem"))

	_, err := Connect(context.Background(), cfg)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "ca_certificate", cfgErr.Field)
}

func TestConnect_MalformedCACertificate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

	cfg := DefaultConnectionConfig("https://example.com")
	cfg.CACertificate = &path

	_, err := Connect(context.Background(), cfg)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "ca_certificate", cfgErr.Field)
}

func TestConnect_TLSWithCACertificate(t *testing.T) {
	endpoint, caPath := startTLSTestServer(t, &testGeyserServer{token: "secret"})

	cfg := DefaultConnectionConfig(endpoint)
	cfg.CACertificate = &caPath
	cfg.XToken = ptr("secret")
	cfg.ConnectTimeout = ptr(5 * time.Second)

	client, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "test-1.0", client.Version())
}

func TestConnect_TLSUntrustedCertificate(t *testing.T) {
	endpoint, _ := startTLSTestServer(t, &testGeyserServer{})

	cfg := DefaultConnectionConfig(endpoint)
	cfg.ConnectTimeout = ptr(2 * time.Second)

	_, err := Connect(context.Background(), cfg)

	var connErr *ConnectError
	assert.ErrorAs(t, err, &connErr)
}

func TestConnect_VersionCheckBoundedByConnectTimeout(t *testing.T) {
	endpoint := startTestServer(t, &stalledVersionServer{})

	cfg := DefaultConnectionConfig(endpoint)
	cfg.ConnectTimeout = ptr(500 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := Connect(context.Background(), cfg)
		done <- err
	}()

	select {
	case err := <-done:
		var connErr *ConnectError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, codes.DeadlineExceeded, status.Code(errors.Unwrap(err)))
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after the connect timeout")
	}
}

func TestConnect_OnlyMaxDecodingMessageSize(t *testing.T) {
	endpoint := startTestServer(t, &testGeyserServer{})

	cfg := ConnectionConfig{
		Endpoint:               endpoint,
		MaxDecodingMessageSize: DefaultMaxDecodingMessageSize,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "test-1.0", client.Version())
	assert.Equal(t, endpoint, client.Endpoint())

	slot, err := client.GetSlot(ctx, CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), slot)

	count, err := client.Ping(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), count)
}

func TestConnect_AllTuningOptions(t *testing.T) {
	endpoint := startTestServer(t, &testGeyserServer{token: "secret"})

	cfg := ConnectionConfig{
		Endpoint:                    endpoint,
		XToken:                      ptr("secret"),
		MaxDecodingMessageSize:      1 << 20,
		BufferSize:                  ptr(64 * 1024),
		ConnectTimeout:              ptr(2 * time.Second),
		Timeout:                     ptr(5 * time.Second),
		HTTP2AdaptiveWindow:         ptr(true),
		HTTP2KeepAliveInterval:      ptr(30 * time.Second),
		InitialConnectionWindowSize: ptr(int32(8 << 20)),
		InitialStreamWindowSize:     ptr(int32(4 << 20)),
		KeepAliveTimeout:            ptr(5 * time.Second),
		KeepAliveWhileIdle:          ptr(true),
		TCPKeepAlive:                ptr(15 * time.Second),
		TCPNoDelay:                  ptr(true),
	}

	client, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "test-1.0", client.Version())
}

func TestConnect_StaticWindows(t *testing.T) {
	endpoint := startTestServer(t, &testGeyserServer{})

	cfg := DefaultConnectionConfig(endpoint)
	cfg.HTTP2AdaptiveWindow = ptr(false)

	client, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	client.Close()
}

func TestWindowOptions(t *testing.T) {
	sizes := ConnectionConfig{
		InitialConnectionWindowSize: ptr(int32(8 << 20)),
		InitialStreamWindowSize:     ptr(int32(4 << 20)),
	}

	adaptive := sizes
	adaptive.HTTP2AdaptiveWindow = ptr(true)
	assert.Empty(t, windowOptions(adaptive), "adaptive window must leave BDP estimation on")

	static := sizes
	static.HTTP2AdaptiveWindow = ptr(false)
	assert.Len(t, windowOptions(static), 2)

	assert.Len(t, windowOptions(sizes), 2)
	assert.Empty(t, windowOptions(ConnectionConfig{}))
	assert.Len(t, windowOptions(ConnectionConfig{HTTP2AdaptiveWindow: ptr(false)}), 2)
}

func TestConnect_Unauthenticated(t *testing.T) {
	endpoint := startTestServer(t, &testGeyserServer{token: "secret"})

	cfg := DefaultConnectionConfig(endpoint)
	cfg.XToken = ptr("wrong")

	_, err := Connect(context.Background(), cfg)

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, codes.Unauthenticated, status.Code(errors.Unwrap(err)))
}

func TestConnect_Unreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()

	cfg := DefaultConnectionConfig("http://" + addr)
	cfg.ConnectTimeout = ptr(2 * time.Second)

	_, err = Connect(context.Background(), cfg)

	var connErr *ConnectError
	assert.ErrorAs(t, err, &connErr)
}

func TestClient_SubscribeRoundTrip(t *testing.T) {
	received := make(chan *pb.SubscribeRequest, 1)
	srv := &testGeyserServer{
		received: received,
		updates: []*pb.SubscribeUpdate{
			{UpdateOneof: &pb.SubscribeUpdate_Ping{Ping: &pb.SubscribeUpdatePing{}}},
		},
	}
	endpoint := startTestServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, DefaultConnectionConfig(endpoint))
	require.NoError(t, err)
	defer client.Close()

	stream, err := client.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, stream.Send(BuildSubscription([]string{"ACC1"}, "P", true).Proto()))

	select {
	case req := <-received:
		require.Contains(t, req.Transactions, DefaultFilterName)
		assert.Equal(t, []string{"ACC1"}, req.Transactions[DefaultFilterName].AccountInclude)
	case <-ctx.Done():
		t.Fatal("server never received subscribe request")
	}

	update, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, PingEvent{}, DecodeUpdate(update))

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}
