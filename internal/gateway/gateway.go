// Package gateway fans significant world events out to chat platforms.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Gateway manages the platform notifiers.
type Gateway struct {
	notifiers map[string]Notifier
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewGateway creates a gateway manager.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		notifiers: make(map[string]Notifier),
		logger:    logger,
	}
}

// Register adds a notifier, replacing any previous one for the platform.
func (g *Gateway) Register(n Notifier) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notifiers[n.Platform()] = n
	g.logger.Info("registered gateway notifier", zap.String("platform", n.Platform()))
}

// ConnectAll connects every registered notifier. A platform that fails to
// connect is unregistered so the others keep working.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var failed []string
	for platform, n := range g.notifiers {
		if err := n.Connect(ctx); err != nil {
			g.logger.Error("notifier connect failed",
				zap.String("platform", platform), zap.Error(err))
			failed = append(failed, platform)
			delete(g.notifiers, platform)
			continue
		}
		g.logger.Info("notifier connected", zap.String("platform", platform))
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return fmt.Errorf("connect %v", failed)
	}
	return nil
}

// Notify sends a notice to all matching notifiers.
func (g *Gateway) Notify(ctx context.Context, n *Notice) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	targets := g.notifiers
	if len(n.Platforms) > 0 {
		targets = make(map[string]Notifier)
		for _, p := range n.Platforms {
			if t, ok := g.notifiers[p]; ok {
				targets[p] = t
			}
		}
	}

	var errs int
	for platform, t := range targets {
		if err := t.Notify(ctx, n); err != nil {
			g.logger.Warn("notify failed",
				zap.String("platform", platform), zap.Error(err))
			errs++
		}
	}
	if errs > 0 {
		return fmt.Errorf("notify failed on %d platform(s)", errs)
	}
	return nil
}

// Close shuts down all notifiers.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, n := range g.notifiers {
		if err := n.Close(); err != nil {
			g.logger.Error("notifier close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}

// Platforms returns the registered platform names, sorted.
func (g *Gateway) Platforms() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.notifiers))
	for p := range g.notifiers {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// Status reports every notifier, sorted by platform.
func (g *Gateway) Status() []AdapterStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]AdapterStatus, 0, len(g.notifiers))
	for _, n := range g.notifiers {
		out = append(out, n.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}
