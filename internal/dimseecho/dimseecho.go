// Package dimseecho adapts the teacher's pkg/dimse association pool
// into a verification-only C-ECHO requester, used by the /health check
// to confirm connectivity to a configured remote AE
// (spec.md §1 "DIMSE is used only as a consumed library, never
// implemented as a standalone SCP/SCU service").
package dimseecho

import (
	"context"
	"fmt"

	"github.com/dicomkit/dicomweb-server/pkg/dimse"
)

// Config names the remote AE a C-ECHO verification check targets.
type Config struct {
	Host       string
	Port       int
	CallingAET string
	CalledAET  string
}

// Checker runs C-ECHO verification against one remote AE, pooling
// associations the same way pkg/dimse callers elsewhere in the corpus do.
type Checker struct {
	pool *dimse.ConnectionPool
}

// NewChecker builds a checker, or returns nil when cfg.Host is empty.
// A nil Checker is valid: its Verify and Close return nil.
func NewChecker(cfg Config) *Checker {
	if cfg.Host == "" {
		return nil
	}
	pool := dimse.NewConnectionPool(dimse.PoolConfig{
		AssociationConfig: dimse.AssociationConfig{
			Host:       cfg.Host,
			Port:       cfg.Port,
			CallingAET: cfg.CallingAET,
			CalledAET:  cfg.CalledAET,
		},
		MaxPoolSize: 2,
	})
	return &Checker{pool: pool}
}

// Verify performs one C-ECHO round trip, returning an error describing
// why connectivity failed.
func (c *Checker) Verify(ctx context.Context) error {
	if c == nil {
		return nil
	}
	assoc, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("dimseecho: acquiring association: %w", err)
	}
	defer c.pool.Put(assoc)

	if err := assoc.CEcho(ctx); err != nil {
		return fmt.Errorf("dimseecho: C-ECHO failed: %w", err)
	}
	return nil
}

// Close releases pooled associations.
func (c *Checker) Close() error {
	if c == nil {
		return nil
	}
	return c.pool.Close()
}
