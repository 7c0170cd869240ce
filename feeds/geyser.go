package feeds

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

// ═══════════════════════════════════════════════════════════════════════════════
// GEYSER STREAM CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Thin wrapper around the Yellowstone geyser gRPC subscribe API. The one
// design constraint worth knowing: filter changes are pushed as a new
// SubscribeRequest on the already-open stream, never by reconnecting. The
// Subscription type serializes Send calls so the event loop and the ping
// keepalive can share the stream safely.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	connectTimeout = 10 * time.Second

	// Geyser account updates for busy programs can be large.
	maxRecvMsgSize = 64 * 1024 * 1024
)

// Client owns the gRPC connection to a geyser endpoint.
type Client struct {
	conn   *grpc.ClientConn
	geyser pb.GeyserClient
	xToken string
}

// ParseCommitment maps the config string to the geyser commitment level.
// Defaults to processed.
func ParseCommitment(s string) (pb.CommitmentLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "processed":
		return pb.CommitmentLevel_PROCESSED, nil
	case "confirmed":
		return pb.CommitmentLevel_CONFIRMED, nil
	case "finalized":
		return pb.CommitmentLevel_FINALIZED, nil
	default:
		return pb.CommitmentLevel_PROCESSED, fmt.Errorf("unknown commitment level %q", s)
	}
}

// Dial opens the gRPC connection. TLS is selected from the endpoint scheme.
func Dial(endpoint, xToken string) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse geyser endpoint: %w", err)
	}

	port := u.Port()
	var creds grpc.DialOption
	if u.Scheme == "https" {
		if port == "" {
			port = "443"
		}
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		if port == "" {
			port = "80"
		}
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	conn, err := grpc.NewClient(u.Hostname()+":"+port,
		creds,
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             connectTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvMsgSize)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial geyser endpoint: %w", err)
	}

	return &Client{conn: conn, geyser: pb.NewGeyserClient(conn), xToken: xToken}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Subscribe opens the account stream and sends the initial request.
func (c *Client) Subscribe(ctx context.Context, req *pb.SubscribeRequest) (*Subscription, error) {
	if c.xToken != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-token", c.xToken)
	}
	stream, err := c.geyser.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("open subscribe stream: %w", err)
	}
	sub := &Subscription{stream: stream}
	if err := sub.Send(req); err != nil {
		return nil, fmt.Errorf("send initial subscription: %w", err)
	}
	log.Info().Msg("📡 geyser stream opened")
	return sub, nil
}

// Subscription is a live subscribe stream with serialized writes.
type Subscription struct {
	sendMu sync.Mutex
	stream pb.Geyser_SubscribeClient
}

// Send pushes a replacement subscribe request on the open stream.
func (s *Subscription) Send(req *pb.SubscribeRequest) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.stream.Send(req)
}

// Recv blocks for the next update. Transport errors surface here and are
// retryable by the supervisor.
func (s *Subscription) Recv() (*pb.SubscribeUpdate, error) {
	return s.stream.Recv()
}

// KeepAlive pings the stream on a fixed cadence until ctx is cancelled. The
// server answers pings even when no watched account changes, which keeps
// idle scheduler ticks coming.
func (s *Subscription) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var id int32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id++
			if err := s.Send(&pb.SubscribeRequest{Ping: &pb.SubscribeRequestPing{Id: id}}); err != nil {
				log.Warn().Err(err).Msg("stream ping failed")
				return
			}
		}
	}
}
