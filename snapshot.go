/*
Copyright 2025 Leadroute Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package leadroute

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/leadroutehq/leadroute/config"
	"github.com/leadroutehq/leadroute/database"
	"github.com/leadroutehq/leadroute/model"
)

const snapshotCacheKey = "leadroute:rules:snapshot"

// localSnapshotCacheSize bounds the TinyLFU local cache that fronts Redis.
const localSnapshotCacheSize = 64

// RuleSnapshot is an immutable, versioned view of the active rule set. The
// engine never mutates rules; every evaluation reads one snapshot end-to-end
// so candidate ordering is reproducible. The version is a content hash of the
// rules in the snapshot.
type RuleSnapshot struct {
	Version string                 `json:"version"`
	TakenAt time.Time              `json:"taken_at"`
	Rules   []model.AssignmentRule `json:"rules"`
}

// IsEmpty reports whether the snapshot carries no rules.
func (s *RuleSnapshot) IsEmpty() bool {
	return len(s.Rules) == 0
}

// SnapshotProvider loads rule snapshots from the store and caches them in
// Redis with a TinyLFU local layer. Refresh policy lives here, not in the
// evaluation path: callers get whatever snapshot is current and never wait on
// a rule edit.
type SnapshotProvider struct {
	datasource database.IDataSource
	cache      *cache.Cache
	ttl        time.Duration
}

// NewSnapshotProvider creates a snapshot provider backed by the given store
// and Redis client.
func NewSnapshotProvider(ds database.IDataSource, client redis.UniversalClient, conf *config.Configuration) *SnapshotProvider {
	ttl := time.Duration(conf.Snapshot.CacheTTLSeconds) * time.Second
	c := cache.New(&cache.Options{
		Redis:      client,
		LocalCache: cache.NewTinyLFU(localSnapshotCacheSize, ttl),
	})
	return &SnapshotProvider{datasource: ds, cache: c, ttl: ttl}
}

// Current returns the current rule snapshot. An unreachable rule store yields
// an empty snapshot, never an error: the engine treats "no rules" as a valid
// routing state (every lead goes unassigned with no_matching_rule) rather
// than a fatal condition.
func (p *SnapshotProvider) Current(ctx context.Context) *RuleSnapshot {
	var snap RuleSnapshot
	err := p.cache.Get(ctx, snapshotCacheKey, &snap)
	if err == nil && snap.Version != "" {
		return &snap
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		logrus.Warnf("snapshot cache read failed, falling through to store: %v", err)
	}

	return p.refresh(ctx)
}

// refresh loads the active rules from the store, versions them, and caches
// the result. Failed loads produce an empty snapshot and are not cached, so
// the next evaluation retries the store.
func (p *SnapshotProvider) refresh(ctx context.Context) *RuleSnapshot {
	rules, err := p.datasource.GetActiveRules(ctx)
	if err != nil {
		logrus.Errorf("rule snapshot load failed, routing with empty snapshot: %v", err)
		return &RuleSnapshot{Version: "", TakenAt: time.Now(), Rules: []model.AssignmentRule{}}
	}

	snap := &RuleSnapshot{
		Version: snapshotVersion(rules),
		TakenAt: time.Now(),
		Rules:   rules,
	}

	if err := p.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   snapshotCacheKey,
		Value: snap,
		TTL:   p.ttl,
	}); err != nil {
		logrus.Warnf("snapshot cache write failed: %v", err)
	}

	return snap
}

// snapshotVersion hashes rule identity and modification times into a stable
// version string. GetActiveRules orders by rule ID, so the same rule set
// always hashes to the same version.
func snapshotVersion(rules []model.AssignmentRule) string {
	h := sha256.New()
	for _, r := range rules {
		fmt.Fprintf(h, "%s:%d", r.RuleID, r.UpdatedAt.UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
