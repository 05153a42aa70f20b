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
	"context"
	"fmt"
	"sort"

	"github.com/gofrs/uuid"
	gorp "github.com/go-gorp/gorp/v3"
	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/placement/internal/datamodel"
)

// sharingTraitID mirrors internal/core's standard trait catalogue entry for
// MISC_SHARES_VIA_AGGREGATE (index 0 there, so ID 1). It is duplicated
// here rather than imported because internal/core depends on this package,
// not the other way around.
const sharingTraitID TraitID = 1

// Store is the Postgres-backed implementation of placement.Store.
type Store struct {
	DB *gorp.DbMap
}

// NewStore wraps an initialized gorp.DbMap (see InitORM) into a Store.
func NewStore(dbMap *gorp.DbMap) *Store {
	return &Store{DB: dbMap}
}

func (s *Store) ListCustomResourceClasses(ctx context.Context) ([]ResourceClassRow, error) {
	var rows []ResourceClassRow
	_, err := s.DB.Select(&rows, `SELECT * FROM resource_classes ORDER BY id`)
	return rows, err
}

func (s *Store) ListCustomTraits(ctx context.Context) ([]TraitRow, error) {
	var rows []TraitRow
	_, err := s.DB.Select(&rows, `SELECT * FROM traits ORDER BY id`)
	return rows, err
}

// providerGraph is the whole provider/aggregate/trait/inventory/usage graph
// for the cluster, loaded in bulk and then filtered the same way
// internal/placement/fakestore_test.go's in-memory double filters it. A
// deployment with a much larger provider count would push ListProvidersMatching's
// filters into SQL instead; the bulk-load-then-filter-in-Go approach indexes
// flat query results in Go (indexRowsByProvider) rather than using ad-hoc
// multi-way joins.
type providerGraph struct {
	providers  map[ProviderID]ResourceProvider
	aggregates map[ProviderID]map[AggregateID]struct{}
	traits     map[ProviderID]map[TraitID]struct{}
	inventory  map[ProviderID]map[ResourceClassID]Inventory
	used       map[ProviderID]map[ResourceClassID]uint64
}

func (s *Store) loadGraph(ctx context.Context) (*providerGraph, error) {
	var providers []ResourceProvider
	if _, err := s.DB.Select(&providers, `SELECT * FROM resource_providers`); err != nil {
		return nil, err
	}

	aggRows, err := indexRowsByProvider(s.DB, func(r ResourceProviderAggregate) ProviderID { return r.ProviderID },
		`SELECT * FROM resource_provider_aggregates`)
	if err != nil {
		return nil, err
	}

	traitRows, err := indexRowsByProvider(s.DB, func(r ResourceProviderTrait) ProviderID { return r.ProviderID },
		`SELECT * FROM resource_provider_traits`)
	if err != nil {
		return nil, err
	}

	invRows, err := indexRowsByProvider(s.DB, func(r Inventory) ProviderID { return r.ProviderID },
		`SELECT * FROM inventories`)
	if err != nil {
		return nil, err
	}

	type usageRow struct {
		ProviderID      ProviderID      `db:"resource_provider_id"`
		ResourceClassID ResourceClassID `db:"resource_class_id"`
		Used            uint64          `db:"used"`
	}
	var usageRows []usageRow
	if _, err := s.DB.Select(&usageRows, sqlext.SimplifyWhitespace(`
		SELECT resource_provider_id, resource_class_id, SUM(used) AS used
		  FROM allocations
		 GROUP BY resource_provider_id, resource_class_id
	`)); err != nil {
		return nil, err
	}

	g := &providerGraph{
		providers:  make(map[ProviderID]ResourceProvider, len(providers)),
		aggregates: make(map[ProviderID]map[AggregateID]struct{}, len(providers)),
		traits:     make(map[ProviderID]map[TraitID]struct{}, len(providers)),
		inventory:  make(map[ProviderID]map[ResourceClassID]Inventory, len(providers)),
		used:       make(map[ProviderID]map[ResourceClassID]uint64, len(providers)),
	}
	for _, p := range providers {
		g.providers[p.ID] = p
	}
	for pid, rows := range aggRows {
		set := make(map[AggregateID]struct{}, len(rows))
		for _, r := range rows {
			set[r.AggregateID] = struct{}{}
		}
		g.aggregates[pid] = set
	}
	for pid, rows := range traitRows {
		set := make(map[TraitID]struct{}, len(rows))
		for _, r := range rows {
			set[r.TraitID] = struct{}{}
		}
		g.traits[pid] = set
	}
	for pid, rows := range invRows {
		m := make(map[ResourceClassID]Inventory, len(rows))
		for _, r := range rows {
			m[r.ResourceClassID] = r
		}
		g.inventory[pid] = m
	}
	for _, r := range usageRows {
		m := g.used[r.ProviderID]
		if m == nil {
			m = map[ResourceClassID]uint64{}
			g.used[r.ProviderID] = m
		}
		m[r.ResourceClassID] = r.Used
	}

	return g, nil
}

// rootOf returns the root of pid's tree. A stored RootID is trusted when
// present; legacy rows that predate nested provider trees may have a NULL
// RootID, in which case the parent chain is walked (models.go).
func (g *providerGraph) rootOf(pid ProviderID) ProviderID {
	p, ok := g.providers[pid]
	if !ok {
		return pid
	}
	if p.RootID != nil {
		return *p.RootID
	}
	if p.ParentID == nil {
		return pid
	}
	return g.rootOf(*p.ParentID)
}

func (g *providerGraph) isSharing(pid ProviderID) bool {
	_, ok := g.traits[pid][sharingTraitID]
	return ok
}

func (g *providerGraph) hasTrait(pid ProviderID, t TraitID) bool {
	_, ok := g.traits[pid][t]
	return ok
}

func (g *providerGraph) hasAggregate(pid ProviderID, a AggregateID) bool {
	_, ok := g.aggregates[pid][a]
	return ok
}

func (g *providerGraph) satisfiable(pid ProviderID, classID ResourceClassID, amount uint64) bool {
	inv, ok := g.inventory[pid][classID]
	if !ok {
		return false
	}
	return toDatamodelInventory(inv).Satisfiable(amount, g.used[pid][classID])
}

func toDatamodelInventory(inv Inventory) datamodel.Inventory {
	return datamodel.Inventory{
		Total:           inv.Total,
		Reserved:        inv.Reserved,
		MinUnit:         inv.MinUnit,
		MaxUnit:         inv.MaxUnit,
		StepSize:        inv.StepSize,
		AllocationRatio: inv.AllocationRatio,
	}
}

func (g *providerGraph) sortedProviderIDs() []ProviderID {
	ids := make([]ProviderID, 0, len(g.providers))
	for id := range g.providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (g *providerGraph) aggregatesSatisfyAndOfOrs(pid ProviderID, memberOf [][]AggregateID) bool {
	for _, orSet := range memberOf {
		matched := false
		for _, a := range orSet {
			if g.hasAggregate(pid, a) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func (s *Store) ListProvidersMatching(ctx context.Context, resources map[ResourceClassID]uint64, requiredTraitIDs, forbiddenTraitIDs []TraitID, memberOf [][]AggregateID) ([]ProviderRootPair, error) {
	g, err := s.loadGraph(ctx)
	if err != nil {
		return nil, err
	}

	var out []ProviderRootPair
	for _, pid := range g.sortedProviderIDs() {
		if g.isSharing(pid) {
			continue
		}
		ok := true
		for classID, amount := range resources {
			if !g.satisfiable(pid, classID, amount) {
				ok = false
				break
			}
		}
		if ok {
			for _, t := range requiredTraitIDs {
				if !g.hasTrait(pid, t) {
					ok = false
					break
				}
			}
		}
		if ok {
			for _, t := range forbiddenTraitIDs {
				if g.hasTrait(pid, t) {
					ok = false
					break
				}
			}
		}
		if ok && !g.aggregatesSatisfyAndOfOrs(pid, memberOf) {
			ok = false
		}
		if ok {
			out = append(out, ProviderRootPair{ProviderID: pid, RootID: g.rootOf(pid)})
		}
	}
	return out, nil
}

func (s *Store) ListProvidersWithAnyTrait(ctx context.Context, traitIDs []TraitID) ([]ProviderID, error) {
	g, err := s.loadGraph(ctx)
	if err != nil {
		return nil, err
	}
	var out []ProviderID
	for _, pid := range g.sortedProviderIDs() {
		for _, t := range traitIDs {
			if g.hasTrait(pid, t) {
				out = append(out, pid)
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ListProvidersHavingAllTraits(ctx context.Context, traitIDs []TraitID) ([]ProviderID, error) {
	if len(traitIDs) == 0 {
		return nil, BadRequestError{Reason: "trait set must not be empty"}
	}
	g, err := s.loadGraph(ctx)
	if err != nil {
		return nil, err
	}
	var out []ProviderID
	for _, pid := range g.sortedProviderIDs() {
		all := true
		for _, t := range traitIDs {
			if !g.hasTrait(pid, t) {
				all = false
				break
			}
		}
		if all {
			out = append(out, pid)
		}
	}
	return out, nil
}

func (s *Store) GetTreeProviders(ctx context.Context, rootIDs []ProviderID) ([]ProviderRecord, error) {
	g, err := s.loadGraph(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[ProviderID]struct{}, len(rootIDs))
	for _, id := range rootIDs {
		wanted[id] = struct{}{}
	}

	var out []ProviderRecord
	for _, pid := range g.sortedProviderIDs() {
		if _, ok := wanted[g.rootOf(pid)]; !ok {
			continue
		}
		out = append(out, g.toRecord(pid))
	}
	return out, nil
}

func (g *providerGraph) toRecord(pid ProviderID) ProviderRecord {
	p := g.providers[pid]

	var parentID Option[ProviderID]
	if p.ParentID != nil {
		parentID = Some(*p.ParentID)
	}

	aggregates := make(map[AggregateID]struct{}, len(g.aggregates[pid]))
	for a := range g.aggregates[pid] {
		aggregates[a] = struct{}{}
	}
	traits := make(map[TraitID]struct{}, len(g.traits[pid]))
	for t := range g.traits[pid] {
		traits[t] = struct{}{}
	}
	inventories := make(map[ResourceClassID]datamodel.Inventory, len(g.inventory[pid]))
	for classID, inv := range g.inventory[pid] {
		inventories[classID] = toDatamodelInventory(inv)
	}
	used := make(map[ResourceClassID]uint64, len(g.used[pid]))
	for classID, u := range g.used[pid] {
		used[classID] = u
	}

	return ProviderRecord{
		ID:          pid,
		UUID:        p.UUID,
		Name:        p.Name,
		ParentID:    parentID,
		RootID:      g.rootOf(pid),
		Generation:  p.Generation,
		Aggregates:  aggregates,
		Traits:      traits,
		Inventories: inventories,
		Used:        used,
	}
}

func (s *Store) GetSharingProviders(ctx context.Context, classID ResourceClassID) ([]SharingProviderRef, error) {
	g, err := s.loadGraph(ctx)
	if err != nil {
		return nil, err
	}
	var out []SharingProviderRef
	for _, pid := range g.sortedProviderIDs() {
		if !g.isSharing(pid) {
			continue
		}
		if _, hasInv := g.inventory[pid][classID]; !hasInv {
			continue
		}
		aggIDs := make([]AggregateID, 0, len(g.aggregates[pid]))
		for a := range g.aggregates[pid] {
			aggIDs = append(aggIDs, a)
		}
		sort.Slice(aggIDs, func(i, j int) bool { return aggIDs[i] < aggIDs[j] })
		for _, a := range aggIDs {
			out = append(out, SharingProviderRef{ProviderID: pid, AggregateID: a})
		}
	}
	return out, nil
}

func (s *Store) TreesWithTraits(ctx context.Context, candidateProviderIDs []ProviderID, required, forbidden []TraitID) ([]ProviderRootPair, error) {
	if len(required) == 0 && len(forbidden) == 0 {
		return nil, BadRequestError{Reason: "at least one trait constraint is required"}
	}
	g, err := s.loadGraph(ctx)
	if err != nil {
		return nil, err
	}

	byRoot := map[ProviderID]map[TraitID]struct{}{}
	for _, pid := range candidateProviderIDs {
		if _, ok := g.providers[pid]; !ok {
			continue
		}
		root := g.rootOf(pid)
		union := byRoot[root]
		if union == nil {
			union = map[TraitID]struct{}{}
			byRoot[root] = union
		}
		for t := range g.traits[pid] {
			union[t] = struct{}{}
		}
	}

	var out []ProviderRootPair
	for _, pid := range candidateProviderIDs {
		if _, ok := g.providers[pid]; !ok {
			continue
		}
		union := byRoot[g.rootOf(pid)]
		ok := true
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
			out = append(out, ProviderRootPair{ProviderID: pid, RootID: g.rootOf(pid)})
		}
	}
	return out, nil
}

func (s *Store) ListProviderRootsInAggregates(ctx context.Context, aggregateIDs []AggregateID) ([]ProviderID, error) {
	g, err := s.loadGraph(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[AggregateID]struct{}, len(aggregateIDs))
	for _, a := range aggregateIDs {
		wanted[a] = struct{}{}
	}
	rootSet := map[ProviderID]struct{}{}
	for pid := range g.providers {
		if g.isSharing(pid) {
			continue
		}
		for a := range g.aggregates[pid] {
			if _, ok := wanted[a]; ok {
				rootSet[g.rootOf(pid)] = struct{}{}
				break
			}
		}
	}
	out := make([]ProviderID, 0, len(rootSet))
	for id := range rootSet {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) CreateProvider(ctx context.Context, name string, parentID Option[ProviderID]) (ProviderRecord, error) {
	tx, err := s.DB.Begin()
	if err != nil {
		return ProviderRecord{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	providerUUID, err := uuid.NewV4()
	if err != nil {
		return ProviderRecord{}, err
	}

	p := &ResourceProvider{
		UUID: providerUUID.String(),
		Name: name,
	}
	if pid, ok := parentID.Unpack(); ok {
		var parent ResourceProvider
		err = tx.SelectOne(&parent, `SELECT * FROM resource_providers WHERE id = $1`, pid)
		if err != nil {
			return ProviderRecord{}, err
		}
		p.ParentID = &pid
		root := pid
		if parent.RootID != nil {
			root = *parent.RootID
		}
		p.RootID = &root
	} else {
		// a provider with no parent is its own root; RootID is filled in below
		// once the id is known (it cannot reference itself before insertion).
	}

	err = tx.Insert(p)
	if err != nil {
		return ProviderRecord{}, err
	}
	if p.RootID == nil {
		p.RootID = &p.ID
		_, err = tx.Update(p)
		if err != nil {
			return ProviderRecord{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return ProviderRecord{}, err
	}

	return ProviderRecord{
		ID:          p.ID,
		UUID:        p.UUID,
		Name:        p.Name,
		ParentID:    parentID,
		RootID:      *p.RootID,
		Generation:  p.Generation,
		Aggregates:  map[AggregateID]struct{}{},
		Traits:      map[TraitID]struct{}{},
		Inventories: map[ResourceClassID]datamodel.Inventory{},
		Used:        map[ResourceClassID]uint64{},
	}, nil
}

func (s *Store) DestroyProvider(ctx context.Context, providerID ProviderID, generation int64) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	res, err := tx.Exec(`DELETE FROM resource_providers WHERE id = $1 AND generation = $2`, providerID, generation)
	if err != nil {
		return err
	}
	if err := checkGenerationMatch(tx, res, providerID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) SetAggregates(ctx context.Context, providerID ProviderID, generation int64, aggregateIDs []AggregateID) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	if err := bumpGeneration(tx, providerID, generation); err != nil {
		return err
	}

	var existing []ResourceProviderAggregate
	if _, err := tx.Select(&existing, `SELECT * FROM resource_provider_aggregates WHERE resource_provider_id = $1`, providerID); err != nil {
		return err
	}

	update := SetUpdate[ResourceProviderAggregate, AggregateID]{
		ExistingRecords: existing,
		WantedKeys:      aggregateIDs,
		KeyForRecord:    func(r ResourceProviderAggregate) AggregateID { return r.AggregateID },
		Create: func(a AggregateID) (ResourceProviderAggregate, error) {
			return ResourceProviderAggregate{ProviderID: providerID, AggregateID: a}, nil
		},
		Update: func(*ResourceProviderAggregate) error { return nil },
	}
	if _, err := update.Execute(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) SetTraits(ctx context.Context, providerID ProviderID, generation int64, traitIDs []TraitID) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	if err := bumpGeneration(tx, providerID, generation); err != nil {
		return err
	}

	var existing []ResourceProviderTrait
	if _, err := tx.Select(&existing, `SELECT * FROM resource_provider_traits WHERE resource_provider_id = $1`, providerID); err != nil {
		return err
	}

	update := SetUpdate[ResourceProviderTrait, TraitID]{
		ExistingRecords: existing,
		WantedKeys:      traitIDs,
		KeyForRecord:    func(r ResourceProviderTrait) TraitID { return r.TraitID },
		Create: func(t TraitID) (ResourceProviderTrait, error) {
			return ResourceProviderTrait{ProviderID: providerID, TraitID: t}, nil
		},
		Update: func(*ResourceProviderTrait) error { return nil },
	}
	if _, err := update.Execute(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) AddInventory(ctx context.Context, providerID ProviderID, generation int64, inv InventoryInput) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	if err := bumpGeneration(tx, providerID, generation); err != nil {
		return err
	}

	row := Inventory{
		ProviderID:      providerID,
		ResourceClassID: inv.ResourceClassID,
		Total:           inv.Inventory.Total,
		Reserved:        inv.Inventory.Reserved,
		MinUnit:         inv.Inventory.MinUnit,
		MaxUnit:         inv.Inventory.MaxUnit,
		StepSize:        inv.Inventory.StepSize,
		AllocationRatio: inv.Inventory.AllocationRatio,
	}
	if _, err := tx.Exec(`DELETE FROM inventories WHERE resource_provider_id = $1 AND resource_class_id = $2`,
		providerID, inv.ResourceClassID); err != nil {
		return err
	}
	if err := tx.Insert(&row); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) RecordAllocation(ctx context.Context, alloc AllocationInput) error {
	return s.DB.Insert(&Allocation{
		ConsumerID:      alloc.ConsumerID,
		ProviderID:      alloc.ProviderID,
		ResourceClassID: alloc.ResourceClassID,
		Used:            alloc.Used,
	})
}

// bumpGeneration is the optimistic-concurrency guard shared by
// SetAggregates, SetTraits and AddInventory: the caller's generation must
// match the stored value, and the stored value is incremented in the same
// statement so concurrent writers cannot both succeed. DestroyProvider
// checks the generation in its DELETE statement instead. RecordAllocation
// takes no generation and neither checks nor bumps it.
func bumpGeneration(tx *gorp.Transaction, providerID ProviderID, generation int64) error {
	res, err := tx.Exec(`UPDATE resource_providers SET generation = generation + 1 WHERE id = $1 AND generation = $2`,
		providerID, generation)
	if err != nil {
		return err
	}
	return checkGenerationMatch(tx, res, providerID)
}

// checkGenerationMatch turns a zero-rows-affected write into a
// ConcurrentUpdateError naming the provider's UUID, which is what callers
// outside this package identify providers by.
func checkGenerationMatch(tx *gorp.Transaction, res interface {
	RowsAffected() (int64, error)
}, providerID ProviderID) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	providerUUID, lookupErr := tx.SelectStr(`SELECT uuid FROM resource_providers WHERE id = $1`, providerID)
	if lookupErr != nil || providerUUID == "" {
		providerUUID = fmt.Sprintf("id:%d", providerID)
	}
	return ConcurrentUpdateError{ProviderUUID: providerUUID}
}
