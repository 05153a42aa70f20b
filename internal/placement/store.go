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

	. "github.com/majewsky/gg/option"

	"github.com/sapcc/placement/internal/db"
)

// ProviderRootPair, SharingProviderRef, ProviderRecord, InventoryInput, and
// AllocationInput — the result and payload shapes below — live in
// internal/db rather than here, so that internal/db.Store can implement
// this interface without importing this package (which already imports
// internal/db for the id types).
type (
	ProviderRootPair   = db.ProviderRootPair
	SharingProviderRef = db.SharingProviderRef
	ProviderRecord     = db.ProviderRecord
	InventoryInput     = db.InventoryInput
	AllocationInput    = db.AllocationInput
)

// Store is the persistence interface consumed by the engine (spec.md
// section 6). internal/db.Store is its Postgres-backed implementation;
// tests use an in-memory fake satisfying the same interface.
type Store interface {
	// ListCustomResourceClasses and ListCustomTraits back the two registry
	// caches of internal/core (spec.md sections 4.1-4.2); Store satisfies
	// core.CustomResourceClassReader and core.CustomTraitReader directly.
	ListCustomResourceClasses(ctx context.Context) ([]db.ResourceClassRow, error)
	ListCustomTraits(ctx context.Context) ([]db.TraitRow, error)

	// ListProvidersMatching enumerates non-sharing providers whose own
	// inventory can satisfy every (class, amount) pair in resources,
	// optionally restricted by required/forbidden trait ids and a
	// member_of constraint. A nil or empty requiredTraitIDs/forbiddenTraitIDs/
	// memberOf argument means "no constraint of this kind" — callers that
	// only want a per-class candidate set (the mixed path's resource-source
	// partition) pass a single-entry resources map and nil for the rest.
	ListProvidersMatching(ctx context.Context, resources map[db.ResourceClassID]uint64, requiredTraitIDs, forbiddenTraitIDs []db.TraitID, memberOf [][]db.AggregateID) ([]ProviderRootPair, error)

	// ListProvidersWithAnyTrait returns providers bearing at least one of
	// the given traits.
	ListProvidersWithAnyTrait(ctx context.Context, traitIDs []db.TraitID) ([]db.ProviderID, error)

	// ListProvidersHavingAllTraits returns providers bearing every given
	// trait. Fails on empty input (spec.md section 6).
	ListProvidersHavingAllTraits(ctx context.Context, traitIDs []db.TraitID) ([]db.ProviderID, error)

	// GetTreeProviders returns every provider in each tree rooted at one of
	// rootIDs, each with its inventories, traits, and aggregates. Only
	// providers whose root is one of rootIDs are returned: an id that is not
	// a tree root matches nothing by itself. A sharing provider with no
	// parent is the root of its own tree, so passing its id hydrates it.
	GetTreeProviders(ctx context.Context, rootIDs []db.ProviderID) ([]ProviderRecord, error)

	// GetSharingProviders enumerates sharing providers (those bearing
	// MISC_SHARES_VIA_AGGREGATE) that hold inventory of classID, grouped by
	// aggregate. It does not itself check satisfiability for any particular
	// amount; that is the Inventory Accountant's job once the caller has
	// hydrated full ProviderRecords via GetTreeProviders.
	GetSharingProviders(ctx context.Context, classID db.ResourceClassID) ([]SharingProviderRef, error)

	// TreesWithTraits returns, per tree, the providers whose union of
	// traits across the tree satisfies required and excludes forbidden.
	// Per spec.md section 4.3, the result may be approximate — trait
	// satisfaction can be split across providers in the same tree — so
	// callers must re-verify per-candidate (this is why the matcher never
	// treats this as a free lookup; see spec.md section 4.5.4).
	TreesWithTraits(ctx context.Context, candidateProviderIDs []db.ProviderID, required, forbidden []db.TraitID) ([]ProviderRootPair, error)

	// ListProviderRootsInAggregates returns the roots of non-sharing trees
	// that have at least one member in any of the given aggregates. This
	// is what lets a root that itself supplies no requested resource still
	// be discovered as a bridging anchor between two sharing providers
	// (spec.md section 8.1, "indirect sharing reachability").
	ListProviderRootsInAggregates(ctx context.Context, aggregateIDs []db.AggregateID) ([]db.ProviderID, error)

	// CreateProvider creates a new resource provider, optionally as a child
	// of parentID.
	CreateProvider(ctx context.Context, name string, parentID Option[db.ProviderID]) (ProviderRecord, error)

	// DestroyProvider removes a provider. generation must match the
	// currently stored value or ConcurrentUpdateError is returned.
	DestroyProvider(ctx context.Context, providerID db.ProviderID, generation int64) error

	// SetAggregates replaces a provider's aggregate membership.
	SetAggregates(ctx context.Context, providerID db.ProviderID, generation int64, aggregateIDs []db.AggregateID) error

	// SetTraits replaces a provider's trait set.
	SetTraits(ctx context.Context, providerID db.ProviderID, generation int64, traitIDs []db.TraitID) error

	// AddInventory adds or replaces a provider's inventory record for one
	// resource class. A second inventory record for the same
	// (provider, resource_class) must never coexist (spec.md section 4.4).
	AddInventory(ctx context.Context, providerID db.ProviderID, generation int64, inv InventoryInput) error

	// RecordAllocation records consumption of a provider's inventory by a
	// consumer.
	RecordAllocation(ctx context.Context, alloc AllocationInput) error
}
