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

package db

import (
	. "github.com/majewsky/gg/option"

	"github.com/sapcc/placement/internal/datamodel"
)

// These types are the shape of the Provider Graph Store read predicates
// (spec.md section 4.3). They live here, rather than in internal/placement,
// so that this package's Postgres-backed Store can return them without
// importing internal/placement (which already imports this package for the
// id types above).

// ProviderRootPair is the result shape of the provider-matching and
// trait-matching read predicates: a provider together with the root of the
// tree it belongs to.
type ProviderRootPair struct {
	ProviderID ProviderID
	RootID     ProviderID
}

// SharingProviderRef names a sharing provider that holds inventory of a
// particular resource class, together with one aggregate it belongs to.
// get_sharing_providers groups its results by (resource_class, aggregate),
// so a sharing provider in several aggregates appears once per aggregate.
type SharingProviderRef struct {
	ProviderID  ProviderID
	AggregateID AggregateID
}

// ProviderRecord is the full detail the matcher and assembler need about a
// single provider: its place in the tree, its aggregates, its traits, and
// its inventories with current usage. get_tree_providers returns one of
// these per provider in the requested trees (spec.md section 4.3, third
// bullet); a sharing provider's "tree" is itself alone.
type ProviderRecord struct {
	ID          ProviderID
	UUID        string
	Name        string
	ParentID    Option[ProviderID]
	RootID      ProviderID
	Generation  int64
	Aggregates  map[AggregateID]struct{}
	Traits      map[TraitID]struct{}
	Inventories map[ResourceClassID]datamodel.Inventory
	Used        map[ResourceClassID]uint64
}

// HasAggregate reports whether the provider is a member of the given
// aggregate.
func (p ProviderRecord) HasAggregate(id AggregateID) bool {
	_, ok := p.Aggregates[id]
	return ok
}

// HasTrait reports whether the provider bears the given trait.
func (p ProviderRecord) HasTrait(id TraitID) bool {
	_, ok := p.Traits[id]
	return ok
}

// InventoryInput is the payload for Store.AddInventory.
type InventoryInput struct {
	ResourceClassID ResourceClassID
	Inventory       datamodel.Inventory
}

// AllocationInput is the payload for Store.RecordAllocation.
type AllocationInput struct {
	ConsumerID      string
	ProviderID      ProviderID
	ResourceClassID ResourceClassID
	Used            uint64
}
