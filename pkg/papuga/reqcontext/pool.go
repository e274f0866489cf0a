// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package reqcontext

import (
	"time"

	"github.com/papuga-go/papuga/pkg/lrucache"
)

// Pool caches fully set-up base RequestContexts (classes registered,
// global variables bound) keyed by a caller-chosen profile name, so a
// service handling many requests against the same binding profile does
// not repeat that setup on every request. Get forks a fresh,
// independent context off the cached base via copy-on-write, so callers
// never see another request's mutations.
type Pool struct {
	cache *lrucache.Cache
	ttl   time.Duration
}

// BuildFunc constructs the base RequestContext for a profile the first
// time it is requested.
type BuildFunc func() (*RequestContext, error)

// NewPool creates a Pool backed by an in-memory LRU cache bounded by
// maxmemory bytes (interpreted the same way as lrucache.New: a byte
// budget, not an entry count), with base contexts kept for ttl before
// being rebuilt.
func NewPool(maxmemory int, ttl time.Duration) *Pool {
	return &Pool{cache: lrucache.New(maxmemory), ttl: ttl}
}

// Get returns a Fork()'d RequestContext for profile, building (and
// caching) the base context via build if it is not already cached or
// has expired.
func (p *Pool) Get(profile string, build BuildFunc) (*RequestContext, error) {
	var buildErr error
	v := p.cache.Get(profile, func() (interface{}, time.Duration, int) {
		base, err := build()
		if err != nil {
			buildErr = err
			return nil, 0, 0
		}
		return base, p.ttl, estimateSize(base)
	})
	if buildErr != nil {
		return nil, buildErr
	}
	base, _ := v.(*RequestContext)
	if base == nil {
		return nil, buildErr
	}
	return base.Fork(), nil
}

// Invalidate evicts profile's cached base context, forcing the next Get
// to rebuild it.
func (p *Pool) Invalidate(profile string) {
	p.cache.Del(profile)
}

// estimateSize gives lrucache a rough per-entry cost so a pool of many
// profiles still respects its memory budget; exact accounting is not
// worth the complexity for what is, in practice, a handful of resident
// class tables.
func estimateSize(c *RequestContext) int {
	const baseOverhead = 512
	return baseOverhead + len(c.classes)*128 + len(c.vars.vars)*64
}
