// internal/fees/fees.go
package fees

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultFee is the fallback priority fee in microlamports.
	DefaultFee uint64 = 5000

	// feeCeiling caps the recommendation regardless of network conditions.
	feeCeiling = 50000

	avgMultiplier = 1.2
	maxMultiplier = 1.5

	sampleTimeout = 10 * time.Second
)

// Sampler provides recent prioritization fee observations.
type Sampler interface {
	RecentPrioritizationFees(ctx context.Context) ([]uint64, error)
}

// Estimator recommends a compute unit price from recent network fees.
// Estimation never fails: an empty sample or an RPC error falls back to
// the default fee.
type Estimator struct {
	sampler Sampler
	logger  *zap.Logger

	mu      sync.RWMutex
	current uint64
}

// NewEstimator creates a fee estimator seeded with the default fee.
func NewEstimator(sampler Sampler, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{
		sampler: sampler,
		logger:  logger.Named("fees"),
		current: DefaultFee,
	}
}

// Current returns the last computed recommendation.
func (e *Estimator) Current() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Refresh samples the network and updates the recommendation. A failed or
// empty sample leaves the default in place; Refresh never returns an error.
func (e *Estimator) Refresh(ctx context.Context) uint64 {
	ctx, cancel := context.WithTimeout(ctx, sampleTimeout)
	defer cancel()

	sample, err := e.sampler.RecentPrioritizationFees(ctx)
	if err != nil {
		e.logger.Warn("Priority fee sampling failed, keeping default", zap.Error(err))
		e.set(DefaultFee)
		return DefaultFee
	}
	if len(sample) == 0 {
		e.logger.Debug("No recent prioritization fees, using default")
		e.set(DefaultFee)
		return DefaultFee
	}

	fee := Recommend(sample)
	e.logger.Debug("Priority fee updated",
		zap.Uint64("fee_microlamports", fee),
		zap.Int("sample_size", len(sample)))
	e.set(fee)
	return fee
}

func (e *Estimator) set(fee uint64) {
	e.mu.Lock()
	e.current = fee
	e.mu.Unlock()
}

// Recommend computes the fee from a non-empty sample: the average scaled up
// with a floor of the default fee, capped by 1.5x the observed maximum and
// the absolute ceiling.
func Recommend(sample []uint64) uint64 {
	var sum, maxFee uint64
	for _, f := range sample {
		sum += f
		if f > maxFee {
			maxFee = f
		}
	}
	avg := float64(sum) / float64(len(sample))

	fee := math.Max(avg*avgMultiplier, float64(DefaultFee))
	fee = math.Min(fee, float64(maxFee)*maxMultiplier)
	fee = math.Min(fee, feeCeiling)
	return uint64(math.Round(fee))
}
