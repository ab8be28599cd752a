package platforms

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/xrpc"
)

const (
	BlueskyPublicHost = "https://public.api.bsky.app"
	BlueskyPDSHost    = "https://bsky.social"
)

// BlueskyPlatform owns the xrpc client. Without credentials it reads from the
// public AppView; with them it logs in to the PDS and proxies through it.
type BlueskyPlatform struct {
	host       string
	identifier string
	password   string
	client     *xrpc.Client
}

func NewBlueskyPlatform(host, identifier, password string) (*BlueskyPlatform, error) {
	if (identifier == "") != (password == "") {
		return nil, fmt.Errorf("bluesky platform: identifier and password must be set together")
	}

	if host == "" {
		host = BlueskyPublicHost
		if identifier != "" {
			host = BlueskyPDSHost
		}
	}

	return &BlueskyPlatform{
		host:       host,
		identifier: identifier,
		password:   password,
	}, nil
}

func (p *BlueskyPlatform) Initialize(ctx context.Context) error {
	client := &xrpc.Client{
		Host:   p.host,
		Client: &http.Client{Timeout: 30 * time.Second},
	}

	if p.identifier != "" {
		auth, err := atproto.ServerCreateSession(ctx, client, &atproto.ServerCreateSession_Input{
			Identifier: p.identifier,
			Password:   p.password,
		})
		if err != nil {
			return fmt.Errorf("failed to authenticate with bluesky: %w", err)
		}

		client.Auth = &xrpc.AuthInfo{
			AccessJwt:  auth.AccessJwt,
			RefreshJwt: auth.RefreshJwt,
			Handle:     auth.Handle,
			Did:        auth.Did,
		}
		slog.Info("Authenticated with bluesky", "handle", auth.Handle, "host", p.host)
	}

	p.client = client
	return nil
}

func (p *BlueskyPlatform) Client() *xrpc.Client {
	return p.client
}

func (p *BlueskyPlatform) Close(ctx context.Context) error {
	return nil
}
