package srpchttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tv42/httpunix"

	"github.com/scatter-engine/scatter/srpc"
	"github.com/scatter-engine/scatter/sshard"
)

// Resolver maps a node ID to its base address. TCP hosts use plain
// "http://host:port" addresses; local daemons may use "unix:///path.sock".
type Resolver func(nodeID string) (string, error)

// Client implements [srpc.HostClient] over HTTP.
type Client struct {
	log     *slog.Logger
	resolve Resolver

	httpc *http.Client

	// unixMu guards registration of unix-socket locations, which the
	// httpunix transport keys by node ID.
	unixMu     sync.Mutex
	unixT      *httpunix.Transport
	registered map[string]bool
}

// NewClient returns a client resolving node addresses through resolve.
// Per-call deadlines come from the caller's context; the transport itself
// imposes none.
func NewClient(log *slog.Logger, resolve Resolver) *Client {
	if log == nil {
		log = slog.Default()
	}

	unixT := &httpunix.Transport{
		DialTimeout:           time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
	// http+unix URLs are routed to the unix transport; everything else uses
	// the default stack.
	rt := &schemeMux{fallback: &http.Transport{}, unix: unixT}

	return &Client{
		log:        log,
		resolve:    resolve,
		httpc:      &http.Client{Transport: rt},
		unixT:      unixT,
		registered: make(map[string]bool),
	}
}

// schemeMux routes http+unix requests to the unix transport.
type schemeMux struct {
	fallback http.RoundTripper
	unix     http.RoundTripper
}

func (m *schemeMux) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == httpunix.Scheme {
		return m.unix.RoundTrip(req)
	}
	return m.fallback.RoundTrip(req)
}

// baseURL resolves the node and returns the base URL to build routes on,
// registering unix-socket locations on first use.
func (c *Client) baseURL(nodeID string) (string, error) {
	addr, err := c.resolve(nodeID)
	if err != nil {
		return "", fmt.Errorf("resolve node %s: %w", nodeID, err)
	}

	if path, ok := strings.CutPrefix(addr, "unix://"); ok {
		c.unixMu.Lock()
		if !c.registered[nodeID] {
			c.unixT.RegisterLocation(nodeID, path)
			c.registered[nodeID] = true
		}
		c.unixMu.Unlock()
		return httpunix.Scheme + "://" + nodeID, nil
	}
	return addr, nil
}

// doJSON issues one JSON request and decodes the JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, nodeID, route string, in, out any) error {
	base, err := c.baseURL(nodeID)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+route, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("node %s: %w", nodeID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("node %s: %s: %s", nodeID, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response from node %s: %w", nodeID, err)
		}
	}
	return nil
}

// StoreFragment satisfies [srpc.StoreClient].
func (c *Client) StoreFragment(ctx context.Context, req srpc.StoreFragmentRequest) (srpc.StoreFragmentResponse, error) {
	var resp srpc.StoreFragmentResponse
	err := c.doJSON(ctx, http.MethodPost, req.NodeID, "/v1/fragments", req, &resp)
	return resp, err
}

// FetchFragments satisfies [srpc.FetchClient].
func (c *Client) FetchFragments(ctx context.Context, req srpc.FetchFragmentsRequest) (srpc.FetchFragmentsResponse, error) {
	var resp srpc.FetchFragmentsResponse
	route := "/v1/shards/" + url.PathEscape(req.ParentShardID) + "/fragments"
	err := c.doJSON(ctx, http.MethodGet, req.NodeID, route, nil, &resp)
	return resp, err
}

// CheckLiveness satisfies [srpc.ProbeClient].
func (c *Client) CheckLiveness(ctx context.Context, req srpc.LivenessRequest) (srpc.LivenessResponse, error) {
	var resp srpc.LivenessResponse
	err := c.doJSON(ctx, http.MethodGet, req.NodeID, "/v1/liveness", nil, &resp)
	return resp, err
}

// RequestAttestation satisfies [srpc.WitnessClient].
func (c *Client) RequestAttestation(ctx context.Context, req srpc.AttestationRequest) (sshard.WitnessProof, error) {
	var proof sshard.WitnessProof
	err := c.doJSON(ctx, http.MethodPost, req.NodeID, "/v1/attestations", req, &proof)
	return proof, err
}

// VerifyAttestation satisfies [srpc.WitnessClient].
func (c *Client) VerifyAttestation(ctx context.Context, req srpc.VerifyAttestationRequest) (srpc.VerifyAttestationResponse, error) {
	var resp srpc.VerifyAttestationResponse
	err := c.doJSON(ctx, http.MethodPost, req.NodeID, "/v1/attestations/verify", req, &resp)
	return resp, err
}
