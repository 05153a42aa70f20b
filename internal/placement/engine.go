/*******************************************************************************
*
* Copyright 2024 SAP SE
*
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
*
*     http://www.apache.org/licenses/LICENSE-2.0
*
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
*
*******************************************************************************/

package placement

import (
	"context"
	"errors"
	"time"

	"github.com/sapcc/go-bits/errext"

	"github.com/sapcc/placement/internal/core"
)

// Engine is the single constructed object a host process holds (spec.md
// section 4.7). It chains trait/class resolution, matching, and assembly
// behind the one query entry point named in section 6. An Engine holds no
// mutable state of its own beyond the two registries' caches, so it may be
// shared across concurrently running queries (spec.md section 5).
type Engine struct {
	store           Store
	resourceClasses *core.ResourceClassRegistry
	traits          *core.TraitRegistry
	config          Config
}

// New constructs an Engine backed by the given store.
func New(store Store, config Config) *Engine {
	return &Engine{
		store:           store,
		resourceClasses: core.NewResourceClassRegistry(store),
		traits:          core.NewTraitRegistry(store),
		config:          config,
	}
}

// AllocationCandidates is the one query entry point required by spec.md
// section 6. limit, if positive, overrides the engine's configured default
// candidate limit for this call only.
func (e *Engine) AllocationCandidates(ctx context.Context, requestGroups []RequestGroup, limit int) ([]AllocationRequest, []ProviderSummary, error) {
	start := time.Now()
	path := queryPath(requestGroups)

	requests, summaries, err := e.allocationCandidates(ctx, requestGroups, limit)
	if err != nil {
		queryErrorsCounter.WithLabelValues(errorKind(err)).Inc()
		return nil, nil, err
	}

	queryDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	candidatesReturnedGauge.WithLabelValues(path).Observe(float64(len(requests)))
	return requests, summaries, nil
}

func (e *Engine) allocationCandidates(ctx context.Context, requestGroups []RequestGroup, limit int) ([]AllocationRequest, []ProviderSummary, error) {
	if len(requestGroups) == 0 {
		return nil, nil, BadRequestError{Reason: "at least one request group is required"}
	}

	effectiveLimit := e.config.DefaultCandidateLimit
	if limit > 0 {
		effectiveLimit = limit
	}

	m := newMatcher(e.store, e.resourceClasses, e.traits)
	order, perGroup, records, err := m.match(ctx, requestGroups)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, nil, context.DeadlineExceeded
		}
		return nil, nil, err
	}

	combined := combineGroups(order, perGroup)

	asm := &assembler{resourceClasses: e.resourceClasses, traits: e.traits}
	cfg := e.config
	cfg.DefaultCandidateLimit = effectiveLimit
	requests, summaries, err := asm.assemble(ctx, combined, records, cfg)
	if err != nil {
		return nil, nil, err
	}
	return requests, summaries, nil
}

// queryPath labels a query for metrics purposes: "single_provider" if every
// group is pinned to one provider, "mixed" otherwise.
func queryPath(groups []RequestGroup) string {
	for _, g := range groups {
		if !g.UseSameProvider && g.Key == "" {
			return "mixed"
		}
	}
	return "single_provider"
}

func errorKind(err error) string {
	switch {
	case errext.IsOfType[BadRequestError](err):
		return "bad_request"
	case errext.IsOfType[TraitNotFoundError](err):
		return "trait_not_found"
	case errext.IsOfType[ResourceClassNotFoundError](err):
		return "resource_class_not_found"
	case errext.IsOfType[ConcurrentUpdateError](err):
		return "concurrent_update"
	case errext.IsOfType[InternalError](err):
		return "internal"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "backend"
	}
}
