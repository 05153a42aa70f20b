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
	"fmt"
	"sort"

	"github.com/sapcc/go-bits/errext"

	"github.com/sapcc/placement/internal/core"
	"github.com/sapcc/placement/internal/db"
)

// resolvedGroup is a RequestGroup with every name resolved to a storage id,
// per spec.md section 4.5.1.
type resolvedGroup struct {
	key             string
	resources       map[db.ResourceClassID]uint64
	requiredTraits  []db.TraitID
	forbiddenTraits []db.TraitID
	memberOf        [][]db.AggregateID
	useSameProvider bool
}

// rawEntry is one (provider, class, amount) triple produced by the matcher,
// before projection into an AllocationEntry (which names the provider by
// UUID rather than internal id).
type rawEntry struct {
	providerID db.ProviderID
	classID    db.ResourceClassID
	amount     uint64
}

// groupCandidate is one way of satisfying a single request group's
// resources, traits, and member_of constraint.
type groupCandidate struct {
	entries []rawEntry
}

// providerSource is one candidate supplier of a resource class within a
// mixed-path anchor's resource-source partition (spec.md section 4.5.3
// step 2).
type providerSource struct {
	providerID db.ProviderID
	sharing    bool
}

// matcher implements the Candidate Matcher (spec.md section 4.5).
type matcher struct {
	store           Store
	resourceClasses *core.ResourceClassRegistry
	traits          *core.TraitRegistry
}

func newMatcher(store Store, resourceClasses *core.ResourceClassRegistry, traits *core.TraitRegistry) *matcher {
	return &matcher{store: store, resourceClasses: resourceClasses, traits: traits}
}

// matchSession is the per-query scratch state of one match call: every
// ProviderRecord loaded while matching any request group, keyed by id. It
// exists so the assembler can build provider summaries from the same
// fully-hydrated records the matcher already fetched, rather than issuing
// further GetTreeProviders calls with ids that are not necessarily tree
// roots. A session is local to one call to match and is never shared
// across queries, so it adds no shared mutable state to the matcher
// itself (spec.md section 5, "no global singletons").
type matchSession struct {
	m       *matcher
	records map[db.ProviderID]ProviderRecord
}

// match resolves and matches every request group, returning per-group
// candidate lists keyed by the group's key, the groups' original key order
// (request groups have no natural ordering of their own otherwise), and
// every ProviderRecord touched while matching.
func (m *matcher) match(ctx context.Context, groups []RequestGroup) (order []string, candidates map[string][]groupCandidate, records map[db.ProviderID]ProviderRecord, err error) {
	s := &matchSession{m: m, records: map[db.ProviderID]ProviderRecord{}}
	order = make([]string, 0, len(groups))
	candidates = make(map[string][]groupCandidate, len(groups))
	for _, g := range groups {
		resolved, err := m.resolveGroup(ctx, g)
		if err != nil {
			return nil, nil, nil, err
		}
		groupCandidates, err := s.matchGroup(ctx, resolved)
		if err != nil {
			return nil, nil, nil, err
		}
		order = append(order, g.Key)
		candidates[g.Key] = groupCandidates
	}
	return order, candidates, s.records, nil
}

// resolveGroup implements spec.md section 4.5.1 (trait resolution prelude)
// plus the malformed-input checks of section 4.5.5.
func (m *matcher) resolveGroup(ctx context.Context, g RequestGroup) (resolvedGroup, error) {
	if len(g.Resources) == 0 {
		return resolvedGroup{}, BadRequestError{Reason: fmt.Sprintf("request group %q has no resources", g.Key)}
	}

	resources := make(map[db.ResourceClassID]uint64, len(g.Resources))
	for name, amount := range g.Resources {
		if amount == 0 {
			return resolvedGroup{}, BadRequestError{Reason: fmt.Sprintf("request group %q: amount for %s must be positive", g.Key, name)}
		}
		id, err := m.resourceClasses.IDFromName(ctx, name)
		if err != nil {
			if errext.IsOfType[core.ResourceClassNotFoundError](err) {
				return resolvedGroup{}, ResourceClassNotFoundError{Name: name}
			}
			return resolvedGroup{}, err
		}
		resources[id] = amount
	}

	requiredIDs, err := m.resolveTraitNames(ctx, g.RequiredTraits)
	if err != nil {
		return resolvedGroup{}, err
	}
	forbiddenIDs, err := m.resolveTraitNames(ctx, g.ForbiddenTraits)
	if err != nil {
		return resolvedGroup{}, err
	}

	memberOf := make([][]db.AggregateID, len(g.MemberOf))
	for i, orSet := range g.MemberOf {
		if len(orSet) == 0 {
			return resolvedGroup{}, BadRequestError{Reason: fmt.Sprintf("request group %q: member_of inner set must not be empty", g.Key)}
		}
		ids := make([]db.AggregateID, len(orSet))
		for j, uuid := range orSet {
			ids[j] = db.AggregateID(uuid)
		}
		memberOf[i] = ids
	}

	return resolvedGroup{
		key:             g.Key,
		resources:       resources,
		requiredTraits:  requiredIDs,
		forbiddenTraits: forbiddenIDs,
		memberOf:        memberOf,
		useSameProvider: g.UseSameProvider || g.Key != "",
	}, nil
}

func (m *matcher) resolveTraitNames(ctx context.Context, names []string) ([]db.TraitID, error) {
	if len(names) == 0 {
		return nil, nil
	}
	ids := make([]db.TraitID, len(names))
	for i, name := range names {
		id, err := m.traits.IDFromName(ctx, name)
		if err != nil {
			if errext.IsOfType[core.TraitNotFoundError](err) {
				return nil, TraitNotFoundError{Name: name}
			}
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (s *matchSession) matchGroup(ctx context.Context, g resolvedGroup) ([]groupCandidate, error) {
	if g.useSameProvider {
		return s.matchSingleProvider(ctx, g)
	}
	return s.matchMixed(ctx, g)
}

// matchSingleProvider implements spec.md section 4.5.2.
func (s *matchSession) matchSingleProvider(ctx context.Context, g resolvedGroup) ([]groupCandidate, error) {
	pairs, err := s.m.store.ListProvidersMatching(ctx, g.resources, g.requiredTraits, g.forbiddenTraits, g.memberOf)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	records, err := s.loadProviders(ctx, uniqueRootIDs(pairs))
	if err != nil {
		return nil, err
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ProviderID < pairs[j].ProviderID })
	classIDs := sortedClassIDs(g.resources)

	var candidates []groupCandidate
	for _, pair := range pairs {
		rec, ok := records[pair.ProviderID]
		if !ok {
			continue
		}

		entries := make([]rawEntry, 0, len(classIDs))
		satisfiable := true
		for _, classID := range classIDs {
			amount := g.resources[classID]
			inv, hasInv := rec.Inventories[classID]
			if !hasInv || !inv.Satisfiable(amount, rec.Used[classID]) {
				satisfiable = false
				break
			}
			entries = append(entries, rawEntry{providerID: pair.ProviderID, classID: classID, amount: amount})
		}
		if !satisfiable {
			continue
		}
		if !providerHasTraits(rec, g.requiredTraits, g.forbiddenTraits) {
			continue
		}
		if !aggregatesSatisfyAndOfOrs(rec.Aggregates, g.memberOf) {
			continue
		}
		candidates = append(candidates, groupCandidate{entries: entries})
	}
	return candidates, nil
}

// matchMixed implements spec.md section 4.5.3.
func (s *matchSession) matchMixed(ctx context.Context, g resolvedGroup) ([]groupCandidate, error) {
	classIDs := sortedClassIDs(g.resources)

	rootsByClass := make(map[db.ResourceClassID][]ProviderRootPair, len(classIDs))
	sharingByClass := make(map[db.ResourceClassID][]SharingProviderRef, len(classIDs))
	relevantAggregates := map[db.AggregateID]struct{}{}

	for _, classID := range classIDs {
		pairs, err := s.m.store.ListProvidersMatching(ctx, map[db.ResourceClassID]uint64{classID: g.resources[classID]}, nil, nil, nil)
		if err != nil {
			return nil, err
		}
		rootsByClass[classID] = pairs

		refs, err := s.m.store.GetSharingProviders(ctx, classID)
		if err != nil {
			return nil, err
		}
		sharingByClass[classID] = refs
		for _, ref := range refs {
			relevantAggregates[ref.AggregateID] = struct{}{}
		}
	}

	// Step 1: anchors. A root qualifies either because some member of its
	// tree can directly supply a requested class, or because its tree
	// bridges to a sharing provider through a shared aggregate (spec.md
	// section 8.1, "indirect sharing reachability") — in that second case
	// the root itself may supply none of the requested classes at all.
	anchorRootSet := map[db.ProviderID]struct{}{}
	for _, pairs := range rootsByClass {
		for _, p := range pairs {
			anchorRootSet[p.RootID] = struct{}{}
		}
	}
	if len(relevantAggregates) > 0 {
		aggregateIDs := make([]db.AggregateID, 0, len(relevantAggregates))
		for id := range relevantAggregates {
			aggregateIDs = append(aggregateIDs, id)
		}
		bridgeRoots, err := s.m.store.ListProviderRootsInAggregates(ctx, aggregateIDs)
		if err != nil {
			return nil, err
		}
		for _, r := range bridgeRoots {
			anchorRootSet[r] = struct{}{}
		}
	}

	// A sharing provider may itself be the anchor, when it (together with
	// other sharing providers it happens to share an aggregate with) can
	// satisfy the whole request with no non-sharing tree involved at all.
	sharingProviderSet := map[db.ProviderID]struct{}{}
	for _, refs := range sharingByClass {
		for _, ref := range refs {
			sharingProviderSet[ref.ProviderID] = struct{}{}
		}
	}
	for p := range sharingProviderSet {
		anchorRootSet[p] = struct{}{}
	}

	toLoad := make([]db.ProviderID, 0, len(anchorRootSet))
	for id := range anchorRootSet {
		toLoad = append(toLoad, id)
	}
	sort.Slice(toLoad, func(i, j int) bool { return toLoad[i] < toLoad[j] })

	records, err := s.loadProviders(ctx, toLoad)
	if err != nil {
		return nil, err
	}

	anchorIDs := make([]db.ProviderID, 0, len(anchorRootSet))
	for id := range anchorRootSet {
		anchorIDs = append(anchorIDs, id)
	}
	sort.Slice(anchorIDs, func(i, j int) bool { return anchorIDs[i] < anchorIDs[j] })

	var allCandidates []groupCandidate
	for _, anchorID := range anchorIDs {
		anchorRec, ok := records[anchorID]
		if !ok {
			continue
		}
		members := treeMembers(records, anchorID)
		if len(members) == 0 {
			continue
		}

		treeAggregates := map[db.AggregateID]struct{}{}
		for _, member := range members {
			for agg := range member.Aggregates {
				treeAggregates[agg] = struct{}{}
			}
		}

		// Step 2: resource-source partition.
		sources := make(map[db.ResourceClassID][]providerSource, len(classIDs))
		complete := true
		for _, classID := range classIDs {
			amount := g.resources[classID]
			var list []providerSource
			for _, member := range members {
				inv, hasInv := member.Inventories[classID]
				if hasInv && inv.Satisfiable(amount, member.Used[classID]) {
					list = append(list, providerSource{providerID: member.ID})
				}
			}
			for _, ref := range sharingByClass[classID] {
				if _, reachable := treeAggregates[ref.AggregateID]; !reachable {
					continue
				}
				sharingRec, ok := records[ref.ProviderID]
				if !ok {
					continue
				}
				inv, hasInv := sharingRec.Inventories[classID]
				if hasInv && inv.Satisfiable(amount, sharingRec.Used[classID]) {
					list = append(list, providerSource{providerID: ref.ProviderID, sharing: true})
				}
			}
			list = dedupSources(list)
			if len(list) == 0 {
				complete = false
				break
			}
			sort.Slice(list, func(i, j int) bool { return list[i].providerID < list[j].providerID })
			sources[classID] = list
		}
		if !complete {
			continue
		}

		// Step 3-5: enumerate, then filter by member_of and traits.
		for _, combo := range cartesianProductSources(classIDs, sources) {
			entries := make([]rawEntry, 0, len(classIDs))
			referenced := map[db.ProviderID]struct{}{}
			for _, classID := range classIDs {
				src := combo[classID]
				entries = append(entries, rawEntry{providerID: src.providerID, classID: classID, amount: g.resources[classID]})
				referenced[src.providerID] = struct{}{}
			}

			if !mixedCandidateSatisfiesMemberOf(records, anchorRec, combo, classIDs, g.memberOf) {
				continue
			}
			if !candidateSatisfiesTraits(records, referenced, g.requiredTraits, g.forbiddenTraits) {
				continue
			}

			allCandidates = append(allCandidates, groupCandidate{entries: entries})
		}
	}
	return allCandidates, nil
}

func (s *matchSession) loadProviders(ctx context.Context, rootIDs []db.ProviderID) (map[db.ProviderID]ProviderRecord, error) {
	if len(rootIDs) == 0 {
		return map[db.ProviderID]ProviderRecord{}, nil
	}
	recs, err := s.m.store.GetTreeProviders(ctx, rootIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[db.ProviderID]ProviderRecord, len(recs))
	for _, r := range recs {
		s.records[r.ID] = r
		out[r.ID] = r
	}
	return out, nil
}

func treeMembers(records map[db.ProviderID]ProviderRecord, anchorID db.ProviderID) []ProviderRecord {
	var out []ProviderRecord
	for _, r := range records {
		if r.RootID == anchorID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func uniqueRootIDs(pairs []ProviderRootPair) []db.ProviderID {
	seen := map[db.ProviderID]struct{}{}
	var out []db.ProviderID
	for _, p := range pairs {
		if _, ok := seen[p.RootID]; !ok {
			seen[p.RootID] = struct{}{}
			out = append(out, p.RootID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func dedupSources(in []providerSource) []providerSource {
	seen := map[db.ProviderID]struct{}{}
	var out []providerSource
	for _, s := range in {
		if _, ok := seen[s.providerID]; ok {
			continue
		}
		seen[s.providerID] = struct{}{}
		out = append(out, s)
	}
	return out
}

func sortedClassIDs(resources map[db.ResourceClassID]uint64) []db.ResourceClassID {
	ids := make([]db.ResourceClassID, 0, len(resources))
	for id := range resources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// cartesianProductSources takes the Cartesian product across classIDs of
// the per-class source lists (spec.md section 4.5.3 step 3).
func cartesianProductSources(classIDs []db.ResourceClassID, sources map[db.ResourceClassID][]providerSource) []map[db.ResourceClassID]providerSource {
	result := []map[db.ResourceClassID]providerSource{{}}
	for _, classID := range classIDs {
		var next []map[db.ResourceClassID]providerSource
		for _, partial := range result {
			for _, src := range sources[classID] {
				combo := make(map[db.ResourceClassID]providerSource, len(partial)+1)
				for k, v := range partial {
					combo[k] = v
				}
				combo[classID] = src
				next = append(next, combo)
			}
		}
		result = next
	}
	return result
}

func providerHasTraits(rec ProviderRecord, required, forbidden []db.TraitID) bool {
	for _, t := range required {
		if !rec.HasTrait(t) {
			return false
		}
	}
	for _, t := range forbidden {
		if rec.HasTrait(t) {
			return false
		}
	}
	return true
}

func aggregatesSatisfyAndOfOrs(aggs map[db.AggregateID]struct{}, memberOf [][]db.AggregateID) bool {
	for _, orSet := range memberOf {
		matched := false
		for _, a := range orSet {
			if _, ok := aggs[a]; ok {
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

// mixedCandidateSatisfiesMemberOf implements spec.md section 4.5.3 step 5:
// the anchor and every non-sharing provider referenced must independently
// satisfy the AND-of-ORs; a sharing provider must be reachable from the
// anchor's tree by an aggregate within each inner set.
func mixedCandidateSatisfiesMemberOf(records map[db.ProviderID]ProviderRecord, anchor ProviderRecord, combo map[db.ResourceClassID]providerSource, classIDs []db.ResourceClassID, memberOf [][]db.AggregateID) bool {
	if len(memberOf) == 0 {
		return true
	}
	if !aggregatesSatisfyAndOfOrs(anchor.Aggregates, memberOf) {
		return false
	}
	for _, classID := range classIDs {
		src := combo[classID]
		rec, ok := records[src.providerID]
		if !ok {
			return false
		}
		if !src.sharing {
			if !aggregatesSatisfyAndOfOrs(rec.Aggregates, memberOf) {
				return false
			}
			continue
		}
		for _, orSet := range memberOf {
			if !sharingReachableWithinSet(records, anchor, rec, orSet) {
				return false
			}
		}
	}
	return true
}

func sharingReachableWithinSet(records map[db.ProviderID]ProviderRecord, anchor, sharingRec ProviderRecord, orSet []db.AggregateID) bool {
	for _, a := range orSet {
		if _, ok := sharingRec.Aggregates[a]; !ok {
			continue
		}
		for _, rec := range records {
			if rec.RootID == anchor.RootID {
				if _, ok := rec.Aggregates[a]; ok {
					return true
				}
			}
		}
	}
	return false
}

// candidateSatisfiesTraits implements spec.md section 4.5.3 step 4: the
// union of traits across every provider referenced by the candidate must
// contain every required trait and none of the forbidden ones.
func candidateSatisfiesTraits(records map[db.ProviderID]ProviderRecord, referenced map[db.ProviderID]struct{}, required, forbidden []db.TraitID) bool {
	union := map[db.TraitID]struct{}{}
	for pid := range referenced {
		rec, ok := records[pid]
		if !ok {
			continue
		}
		for t := range rec.Traits {
			union[t] = struct{}{}
		}
	}
	for _, t := range required {
		if _, ok := union[t]; !ok {
			return false
		}
	}
	for _, t := range forbidden {
		if _, ok := union[t]; ok {
			return false
		}
	}
	return true
}
