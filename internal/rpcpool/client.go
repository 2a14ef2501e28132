// internal/rpcpool/client.go
package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	defaultMaxTries        = 3
	defaultInitialInterval = 1 * time.Second

	// defaultMaxInterval caps waits after 5xx and connection errors. Rate
	// limited responses wait up to twice as long before any endpoint is
	// retried.
	defaultMaxInterval  = 5 * time.Second
	defaultProbeTimeout = 5 * time.Second

	confirmPollInterval   = 2 * time.Second
	defaultConfirmTimeout = 60 * time.Second

	// feeRefreshProbability is the chance a successful call triggers an
	// opportunistic priority fee refresh.
	feeRefreshProbability = 0.1
)

// ErrTransactionFailed occurs when a confirmed transaction carries an
// on-chain error.
var ErrTransactionFailed = errors.New("transaction failed on chain")

// Probe checks the liveness of an RPC endpoint.
type Probe func(ctx context.Context, cl *solanarpc.Client) error

// Client routes RPC calls through the endpoint chain with health-checked
// failover and retry. The last working endpoint is sticky: the full list is
// scanned only when the current one fails or runs out of budget.
type Client struct {
	endpoints []Endpoint
	registry  *Registry
	logger    *zap.Logger

	probe           Probe
	probeTimeout    time.Duration
	maxTries        uint
	initialInterval time.Duration
	maxInterval     time.Duration
	confirmTimeout  time.Duration

	mu         sync.Mutex
	clients    map[string]*solanarpc.Client
	current    *Endpoint
	feeRefresh func()
}

// Option customizes a Client.
type Option func(*Client)

// WithRetryPolicy overrides the retry attempt count and backoff intervals.
// max caps waits for general transient errors; rate limited waits cap at
// twice that.
func WithRetryPolicy(maxTries uint, initial, max time.Duration) Option {
	return func(c *Client) {
		c.maxTries = maxTries
		c.initialInterval = initial
		c.maxInterval = max
	}
}

// WithLivenessProbe overrides the endpoint liveness check.
func WithLivenessProbe(probe Probe) Option {
	return func(c *Client) { c.probe = probe }
}

// WithConfirmTimeout overrides the transaction confirmation deadline.
func WithConfirmTimeout(d time.Duration) Option {
	return func(c *Client) { c.confirmTimeout = d }
}

// NewClient creates a pool-backed RPC client.
func NewClient(endpoints []Endpoint, registry *Registry, logger *zap.Logger, opts ...Option) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no RPC endpoints provided")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		endpoints:       endpoints,
		registry:        registry,
		logger:          logger.Named("rpc-client"),
		probeTimeout:    defaultProbeTimeout,
		maxTries:        defaultMaxTries,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		confirmTimeout:  defaultConfirmTimeout,
		clients:         make(map[string]*solanarpc.Client),
	}
	c.probe = c.defaultProbe

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetFeeRefresher registers a hook invoked on a small fraction of
// successful calls to opportunistically refresh the priority fee estimate.
func (c *Client) SetFeeRefresher(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeRefresh = fn
}

func (c *Client) defaultProbe(ctx context.Context, cl *solanarpc.Client) error {
	health, err := cl.GetHealth(ctx)
	if err != nil {
		return err
	}
	if health != solanarpc.HealthOk {
		return fmt.Errorf("endpoint reported health %q", health)
	}
	return nil
}

func (c *Client) rpcClient(url string) *solanarpc.Client {
	if cl, ok := c.clients[url]; ok {
		return cl
	}
	cl := solanarpc.New(url)
	c.clients[url] = cl
	return cl
}

// acquire returns a live endpoint, preferring the sticky current one and
// scanning the full chain only when it is unusable.
func (c *Client) acquire(ctx context.Context) (Endpoint, *solanarpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.registry.CanMakeRequest(*c.current) {
		if healthy, fresh := c.registry.Health(c.current.URL); fresh && healthy {
			return *c.current, c.rpcClient(c.current.URL), nil
		}
	}

	for _, ep := range c.endpoints {
		if !c.registry.CanMakeRequest(ep) {
			continue
		}

		healthy, fresh := c.registry.Health(ep.URL)
		if fresh && !healthy {
			continue
		}
		if !fresh {
			probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
			err := c.probe(probeCtx, c.rpcClient(ep.URL))
			cancel()
			c.registry.RecordRequest(ep)
			c.registry.RecordHealth(ep.URL, err == nil)
			if err != nil {
				c.logger.Debug("Endpoint failed liveness probe",
					zap.String("url", ep.URL), zap.Error(err))
				continue
			}
		}

		selected := ep
		c.current = &selected
		c.logger.Debug("Selected RPC endpoint",
			zap.String("url", ep.URL), zap.String("kind", string(ep.Kind)))
		return selected, c.rpcClient(ep.URL), nil
	}

	return Endpoint{}, nil, ErrNoEndpointAvailable
}

// invalidate drops the sticky endpoint so the next attempt rescans.
func (c *Client) invalidate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.URL == url {
		c.current = nil
	}
}

func (c *Client) maybeRefreshFees() {
	c.mu.Lock()
	fn := c.feeRefresh
	c.mu.Unlock()
	if fn != nil && rand.Float64() < feeRefreshProbability {
		go fn()
	}
}

// splitBackOff picks a wait policy per failure class: rate limited
// responses back off on a longer curve than other transient errors.
type splitBackOff struct {
	general        backoff.BackOff
	rateLimited    backoff.BackOff
	wasRateLimited func() bool
}

func (b *splitBackOff) NextBackOff() time.Duration {
	if b.wasRateLimited() {
		return b.rateLimited.NextBackOff()
	}
	return b.general.NextBackOff()
}

func (b *splitBackOff) Reset() {
	b.general.Reset()
	b.rateLimited.Reset()
}

// Execute runs an RPC operation with endpoint failover and exponential
// backoff. Rate limited endpoints go on cooldown and a server Retry-After
// hint is honored; exhausted retries surface the last error.
func (c *Client) Execute(ctx context.Context, method string, fn func(ctx context.Context, cl *solanarpc.Client) error) error {
	var rateLimited bool

	operation := func() (struct{}, error) {
		var zero struct{}

		ep, cl, err := c.acquire(ctx)
		if err != nil {
			return zero, err
		}

		c.registry.RecordRequest(ep)
		err = fn(ctx, cl)
		if err == nil {
			c.maybeRefreshFees()
			return zero, nil
		}

		wrapped := NewError(err, ep.URL, method)
		rateLimited = IsRateLimitError(err)

		if rateLimited {
			c.registry.RecordRateLimited(ep.URL)
			c.invalidate(ep.URL)
			if hint, ok := RetryAfterHint(err); ok {
				return zero, backoff.RetryAfter(int(hint.Seconds()))
			}
			return zero, wrapped
		}

		if IsCriticalError(err) {
			return zero, backoff.Permanent(wrapped)
		}

		c.registry.RecordHealth(ep.URL, false)
		c.invalidate(ep.URL)
		return zero, wrapped
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.initialInterval
	expo.MaxInterval = c.maxInterval

	rateExpo := backoff.NewExponentialBackOff()
	rateExpo.InitialInterval = c.initialInterval
	rateExpo.MaxInterval = 2 * c.maxInterval

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&splitBackOff{
			general:        expo,
			rateLimited:    rateExpo,
			wasRateLimited: func() bool { return rateLimited },
		}),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return fmt.Errorf("rpc %s failed: %w", method, err)
	}
	return nil
}

// Balance returns the wallet's lamport balance at confirmed commitment.
func (c *Client) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var balance uint64
	err := c.Execute(ctx, "getBalance", func(ctx context.Context, cl *solanarpc.Client) error {
		out, err := cl.GetBalance(ctx, account, solanarpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		balance = out.Value
		return nil
	})
	return balance, err
}

// LatestBlockhash fetches a recent blockhash for transaction assembly.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	var (
		blockhash       solana.Hash
		lastValidHeight uint64
	)
	err := c.Execute(ctx, "getLatestBlockhash", func(ctx context.Context, cl *solanarpc.Client) error {
		out, err := cl.GetLatestBlockhash(ctx, solanarpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		blockhash = out.Value.Blockhash
		lastValidHeight = out.Value.LastValidBlockHeight
		return nil
	})
	return blockhash, lastValidHeight, err
}

// SendTransaction submits a signed transaction with preflight checks.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	err := c.Execute(ctx, "sendTransaction", func(ctx context.Context, cl *solanarpc.Client) error {
		out, err := cl.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: solanarpc.CommitmentConfirmed,
		})
		if err != nil {
			return err
		}
		sig = out
		return nil
	})
	return sig, err
}

// RecentPrioritizationFees samples recent priority fees across the cluster.
func (c *Client) RecentPrioritizationFees(ctx context.Context) ([]uint64, error) {
	var fees []uint64
	err := c.Execute(ctx, "getRecentPrioritizationFees", func(ctx context.Context, cl *solanarpc.Client) error {
		out, err := cl.GetRecentPrioritizationFees(ctx, nil)
		if err != nil {
			return err
		}
		fees = fees[:0]
		for _, item := range out {
			fees = append(fees, item.PrioritizationFee)
		}
		return nil
	})
	return fees, err
}

// ConfirmTransaction polls the signature status until it reaches confirmed
// or finalized commitment. An on-chain error in the status is a failure
// even though the transaction landed.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	deadline := time.Now().Add(c.confirmTimeout)
	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		var status *solanarpc.SignatureStatusesResult
		err := c.Execute(ctx, "getSignatureStatuses", func(ctx context.Context, cl *solanarpc.Client) error {
			out, err := cl.GetSignatureStatuses(ctx, false, sig)
			if err != nil {
				return err
			}
			if len(out.Value) > 0 {
				status = out.Value[0]
			}
			return nil
		})
		if err != nil {
			return err
		}

		if status != nil {
			if status.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
			}
			switch status.ConfirmationStatus {
			case solanarpc.ConfirmationStatusConfirmed, solanarpc.ConfirmationStatusFinalized:
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: confirmation timed out for %s", ErrTimeout, sig)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
