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
	"sort"

	. "github.com/majewsky/gg/option"

	"github.com/sapcc/placement/internal/datamodel"
	"github.com/sapcc/placement/internal/db"
)

// fakeProvider is the in-memory representation of one provider used by
// fakeStore, independent of any Postgres schema.
type fakeProvider struct {
	id         db.ProviderID
	uuid       string
	name       string
	parentID   Option[db.ProviderID]
	rootID     db.ProviderID
	generation int64
	aggregates map[db.AggregateID]struct{}
	traits     map[db.TraitID]struct{}
	inventory  map[db.ResourceClassID]datamodel.Inventory
	used       map[db.ResourceClassID]uint64
}

// fakeStore is a hand-written in-memory Store used by the scenario tests
// below. It implements the same read predicates as internal/db.Store would,
// over plain Go maps instead of SQL, which is what lets the matcher tests
// run without a database (spec.md section 8, scenarios S1-S6).
type fakeStore struct {
	nextID    db.ProviderID
	providers map[db.ProviderID]*fakeProvider
	classes   []db.ResourceClassRow
	traits    []db.TraitRow

	sharingTraitID db.TraitID
}

func newFakeStore(sharingTraitID db.TraitID) *fakeStore {
	return &fakeStore{
		providers:      map[db.ProviderID]*fakeProvider{},
		sharingTraitID: sharingTraitID,
	}
}

// addProvider is a test helper: it creates a non-sharing, root-of-itself
// provider with no inventories, no usage and no traits; the with* helpers
// add those.
func (f *fakeStore) addProvider(name string) *fakeProvider {
	f.nextID++
	p := &fakeProvider{
		id:         f.nextID,
		uuid:       name,
		name:       name,
		rootID:     f.nextID,
		aggregates: map[db.AggregateID]struct{}{},
		traits:     map[db.TraitID]struct{}{},
		inventory:  map[db.ResourceClassID]datamodel.Inventory{},
		used:       map[db.ResourceClassID]uint64{},
	}
	f.providers[p.id] = p
	return p
}

func (p *fakeProvider) withInventory(classID db.ResourceClassID, total uint64, opts ...func(*datamodel.Inventory)) *fakeProvider {
	inv := datamodel.Inventory{Total: total, MinUnit: 1, MaxUnit: total, StepSize: 1, AllocationRatio: 1.0}
	for _, opt := range opts {
		opt(&inv)
	}
	p.inventory[classID] = inv
	return p
}

func (p *fakeProvider) withUsed(classID db.ResourceClassID, used uint64) *fakeProvider {
	p.used[classID] = used
	return p
}

func (p *fakeProvider) withAggregates(aggs ...db.AggregateID) *fakeProvider {
	for _, a := range aggs {
		p.aggregates[a] = struct{}{}
	}
	return p
}

func (p *fakeProvider) withTraits(traits ...db.TraitID) *fakeProvider {
	for _, t := range traits {
		p.traits[t] = struct{}{}
	}
	return p
}

func (p *fakeProvider) asSharing(sharingTraitID db.TraitID) *fakeProvider {
	p.traits[sharingTraitID] = struct{}{}
	return p
}

func withReservation(reserved uint64) func(*datamodel.Inventory) {
	return func(inv *datamodel.Inventory) { inv.Reserved = reserved }
}

func withAllocationRatio(ratio float64) func(*datamodel.Inventory) {
	return func(inv *datamodel.Inventory) { inv.AllocationRatio = ratio }
}

func (f *fakeStore) ListCustomResourceClasses(ctx context.Context) ([]db.ResourceClassRow, error) {
	return f.classes, nil
}

func (f *fakeStore) ListCustomTraits(ctx context.Context) ([]db.TraitRow, error) {
	return f.traits, nil
}

func (f *fakeStore) ListProvidersMatching(ctx context.Context, resources map[db.ResourceClassID]uint64, requiredTraitIDs, forbiddenTraitIDs []db.TraitID, memberOf [][]db.AggregateID) ([]ProviderRootPair, error) {
	var out []ProviderRootPair
	for _, p := range f.sortedProviders() {
		if _, sharing := p.traits[f.sharingTraitID]; sharing {
			continue // sharing providers never satisfy this predicate directly
		}
		ok := true
		for classID, amount := range resources {
			inv, hasInv := p.inventory[classID]
			if !hasInv || !inv.Satisfiable(amount, p.used[classID]) {
				ok = false
				break
			}
		}
		if ok {
			for _, t := range requiredTraitIDs {
				if _, has := p.traits[t]; !has {
					ok = false
					break
				}
			}
		}
		if ok {
			for _, t := range forbiddenTraitIDs {
				if _, has := p.traits[t]; has {
					ok = false
					break
				}
			}
		}
		if ok && !aggregatesSatisfyAndOfOrs(p.aggregates, memberOf) {
			ok = false
		}
		if ok {
			out = append(out, ProviderRootPair{ProviderID: p.id, RootID: p.rootID})
		}
	}
	return out, nil
}

func (f *fakeStore) ListProvidersWithAnyTrait(ctx context.Context, traitIDs []db.TraitID) ([]db.ProviderID, error) {
	var out []db.ProviderID
	for _, p := range f.sortedProviders() {
		for _, t := range traitIDs {
			if _, has := p.traits[t]; has {
				out = append(out, p.id)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListProvidersHavingAllTraits(ctx context.Context, traitIDs []db.TraitID) ([]db.ProviderID, error) {
	if len(traitIDs) == 0 {
		return nil, BadRequestError{Reason: "trait set must not be empty"}
	}
	var out []db.ProviderID
	for _, p := range f.sortedProviders() {
		all := true
		for _, t := range traitIDs {
			if _, has := p.traits[t]; !has {
				all = false
				break
			}
		}
		if all {
			out = append(out, p.id)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTreeProviders(ctx context.Context, rootIDs []db.ProviderID) ([]ProviderRecord, error) {
	wanted := make(map[db.ProviderID]struct{}, len(rootIDs))
	for _, id := range rootIDs {
		wanted[id] = struct{}{}
	}
	var out []ProviderRecord
	for _, p := range f.sortedProviders() {
		if _, ok := wanted[p.rootID]; !ok {
			continue
		}
		out = append(out, f.toRecord(p))
	}
	return out, nil
}

func (f *fakeStore) GetSharingProviders(ctx context.Context, classID db.ResourceClassID) ([]SharingProviderRef, error) {
	var out []SharingProviderRef
	for _, p := range f.sortedProviders() {
		if _, sharing := p.traits[f.sharingTraitID]; !sharing {
			continue
		}
		if _, hasInv := p.inventory[classID]; !hasInv {
			continue
		}
		aggIDs := make([]db.AggregateID, 0, len(p.aggregates))
		for a := range p.aggregates {
			aggIDs = append(aggIDs, a)
		}
		sort.Slice(aggIDs, func(i, j int) bool { return aggIDs[i] < aggIDs[j] })
		for _, a := range aggIDs {
			out = append(out, SharingProviderRef{ProviderID: p.id, AggregateID: a})
		}
	}
	return out, nil
}

func (f *fakeStore) TreesWithTraits(ctx context.Context, candidateProviderIDs []db.ProviderID, required, forbidden []db.TraitID) ([]ProviderRootPair, error) {
	if len(required) == 0 && len(forbidden) == 0 {
		return nil, BadRequestError{Reason: "at least one trait constraint is required"}
	}
	byRoot := map[db.ProviderID][]db.TraitID{}
	for _, id := range candidateProviderIDs {
		p, ok := f.providers[id]
		if !ok {
			continue
		}
		for t := range p.traits {
			byRoot[p.rootID] = append(byRoot[p.rootID], t)
		}
	}
	var out []ProviderRootPair
	for _, id := range candidateProviderIDs {
		p, ok := f.providers[id]
		if !ok {
			continue
		}
		union := map[db.TraitID]struct{}{}
		for _, t := range byRoot[p.rootID] {
			union[t] = struct{}{}
		}
		ok = true
		for _, t := range required {
			if _, has := union[t]; !has {
				ok = false
				break
			}
		}
		for _, t := range forbidden {
			if _, has := union[t]; has {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, ProviderRootPair{ProviderID: p.id, RootID: p.rootID})
		}
	}
	return out, nil
}

func (f *fakeStore) ListProviderRootsInAggregates(ctx context.Context, aggregateIDs []db.AggregateID) ([]db.ProviderID, error) {
	wanted := make(map[db.AggregateID]struct{}, len(aggregateIDs))
	for _, a := range aggregateIDs {
		wanted[a] = struct{}{}
	}
	rootSet := map[db.ProviderID]struct{}{}
	for _, p := range f.providers {
		if _, sharing := p.traits[f.sharingTraitID]; sharing {
			continue
		}
		for a := range p.aggregates {
			if _, ok := wanted[a]; ok {
				rootSet[p.rootID] = struct{}{}
				break
			}
		}
	}
	out := make([]db.ProviderID, 0, len(rootSet))
	for id := range rootSet {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *fakeStore) CreateProvider(ctx context.Context, name string, parentID Option[db.ProviderID]) (ProviderRecord, error) {
	p := f.addProvider(name)
	p.parentID = parentID
	if parent, ok := parentID.Unpack(); ok {
		if parentRec, ok := f.providers[parent]; ok {
			p.rootID = parentRec.rootID
		}
	}
	return f.toRecord(p), nil
}

func (f *fakeStore) DestroyProvider(ctx context.Context, providerID db.ProviderID, generation int64) error {
	p, ok := f.providers[providerID]
	if !ok {
		return InternalError{Reason: "no such provider"}
	}
	if p.generation != generation {
		return ConcurrentUpdateError{ProviderUUID: p.uuid}
	}
	delete(f.providers, providerID)
	return nil
}

func (f *fakeStore) SetAggregates(ctx context.Context, providerID db.ProviderID, generation int64, aggregateIDs []db.AggregateID) error {
	p, ok := f.providers[providerID]
	if !ok {
		return InternalError{Reason: "no such provider"}
	}
	if p.generation != generation {
		return ConcurrentUpdateError{ProviderUUID: p.uuid}
	}
	p.aggregates = map[db.AggregateID]struct{}{}
	for _, a := range aggregateIDs {
		p.aggregates[a] = struct{}{}
	}
	p.generation++
	return nil
}

func (f *fakeStore) SetTraits(ctx context.Context, providerID db.ProviderID, generation int64, traitIDs []db.TraitID) error {
	p, ok := f.providers[providerID]
	if !ok {
		return InternalError{Reason: "no such provider"}
	}
	if p.generation != generation {
		return ConcurrentUpdateError{ProviderUUID: p.uuid}
	}
	p.traits = map[db.TraitID]struct{}{}
	for _, t := range traitIDs {
		p.traits[t] = struct{}{}
	}
	p.generation++
	return nil
}

func (f *fakeStore) AddInventory(ctx context.Context, providerID db.ProviderID, generation int64, inv InventoryInput) error {
	p, ok := f.providers[providerID]
	if !ok {
		return InternalError{Reason: "no such provider"}
	}
	if p.generation != generation {
		return ConcurrentUpdateError{ProviderUUID: p.uuid}
	}
	p.inventory[inv.ResourceClassID] = inv.Inventory
	p.generation++
	return nil
}

func (f *fakeStore) RecordAllocation(ctx context.Context, alloc AllocationInput) error {
	p, ok := f.providers[alloc.ProviderID]
	if !ok {
		return InternalError{Reason: "no such provider"}
	}
	p.used[alloc.ResourceClassID] += alloc.Used
	return nil
}

func (f *fakeStore) sortedProviders() []*fakeProvider {
	ids := make([]db.ProviderID, 0, len(f.providers))
	for id := range f.providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*fakeProvider, len(ids))
	for i, id := range ids {
		out[i] = f.providers[id]
	}
	return out
}

func (f *fakeStore) toRecord(p *fakeProvider) ProviderRecord {
	aggregates := make(map[db.AggregateID]struct{}, len(p.aggregates))
	for a := range p.aggregates {
		aggregates[a] = struct{}{}
	}
	traits := make(map[db.TraitID]struct{}, len(p.traits))
	for t := range p.traits {
		traits[t] = struct{}{}
	}
	inventories := make(map[db.ResourceClassID]datamodel.Inventory, len(p.inventory))
	for c, inv := range p.inventory {
		inventories[c] = inv
	}
	used := make(map[db.ResourceClassID]uint64, len(p.used))
	for c, u := range p.used {
		used[c] = u
	}
	return ProviderRecord{
		ID:          p.id,
		UUID:        p.uuid,
		Name:        p.name,
		ParentID:    p.parentID,
		RootID:      p.rootID,
		Generation:  p.generation,
		Aggregates:  aggregates,
		Traits:      traits,
		Inventories: inventories,
		Used:        used,
	}
}
