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
	"math/rand"
	"sort"

	"github.com/sapcc/placement/internal/core"
	"github.com/sapcc/placement/internal/db"
)

// combineGroups takes the Cartesian product, across request groups in
// order, of each group's own candidate list. A group with zero candidates
// makes the whole query unsatisfiable (spec.md section 4.5, every group's
// resources must be satisfied).
func combineGroups(order []string, perGroup map[string][]groupCandidate) []groupCandidate {
	if len(order) == 0 {
		return nil
	}
	result := []groupCandidate{{}}
	for _, key := range order {
		list := perGroup[key]
		if len(list) == 0 {
			return nil
		}
		next := make([]groupCandidate, 0, len(result)*len(list))
		for _, partial := range result {
			for _, gc := range list {
				merged := make([]rawEntry, 0, len(partial.entries)+len(gc.entries))
				merged = append(merged, partial.entries...)
				merged = append(merged, gc.entries...)
				next = append(next, groupCandidate{entries: merged})
			}
		}
		result = next
	}
	return result
}

// candidateTuple is one (provider, class, amount) fact used to compute the
// deduplication key of a combined candidate, independent of request group
// membership or entry order (spec.md section 4.5.3 step 6).
type candidateTuple struct {
	providerID db.ProviderID
	classID    db.ResourceClassID
	amount     uint64
}

func dedupCandidates(candidates []groupCandidate) []groupCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]groupCandidate, 0, len(candidates))
	for _, c := range candidates {
		tuples := make([]candidateTuple, len(c.entries))
		for i, e := range c.entries {
			tuples[i] = candidateTuple{providerID: e.providerID, classID: e.classID, amount: e.amount}
		}
		sort.Slice(tuples, func(i, j int) bool {
			if tuples[i].providerID != tuples[j].providerID {
				return tuples[i].providerID < tuples[j].providerID
			}
			return tuples[i].classID < tuples[j].classID
		})
		key := candidateSetKey(tuples)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func candidateSetKey(tuples []candidateTuple) string {
	b := make([]byte, 0, 32*len(tuples))
	for _, t := range tuples {
		b = appendUint(b, uint64(t.providerID))
		b = append(b, ':')
		b = appendUint(b, uint64(t.classID))
		b = append(b, ':')
		b = appendUint(b, t.amount)
		b = append(b, ';')
	}
	return string(b)
}

func appendUint(b []byte, v uint64) []byte {
	start := len(b)
	if v == 0 {
		return append(b, '0')
	}
	for v > 0 {
		b = append(b, byte('0'+v%10))
		v /= 10
	}
	// reverse the digits just appended
	for i, j := start, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}

// assembler implements the Candidate Assembler (spec.md section 4.6).
type assembler struct {
	resourceClasses *core.ResourceClassRegistry
	traits          *core.TraitRegistry
}

// assemble projects the matcher's raw, deduplicated candidates into
// AllocationRequests and builds the ProviderSummary list. config controls
// ordering (randomize_allocation_candidates) and the candidate limit.
func (a *assembler) assemble(ctx context.Context, raw []groupCandidate, records map[db.ProviderID]ProviderRecord, config Config) ([]AllocationRequest, []ProviderSummary, error) {
	deduped := dedupCandidates(raw)

	if config.RandomizeAllocationCandidates {
		rand.Shuffle(len(deduped), func(i, j int) { deduped[i], deduped[j] = deduped[j], deduped[i] })
	}

	limit := config.DefaultCandidateLimit
	if limit > 0 && len(deduped) > limit {
		deduped = deduped[:limit]
	}

	requests := make([]AllocationRequest, 0, len(deduped))
	referenced := map[db.ProviderID]struct{}{}
	for _, c := range deduped {
		entries := make([]AllocationEntry, 0, len(c.entries))
		for _, e := range c.entries {
			rec, ok := records[e.providerID]
			if !ok {
				return nil, nil, InternalError{Reason: "candidate references a provider that was never loaded"}
			}
			className, err := a.resourceClasses.NameFromID(ctx, e.classID)
			if err != nil {
				return nil, nil, err
			}
			entries = append(entries, AllocationEntry{
				ProviderUUID:      rec.UUID,
				ResourceClassName: className,
				Amount:            e.amount,
			})
			referenced[e.providerID] = struct{}{}
		}
		requests = append(requests, AllocationRequest{Entries: entries})
	}

	summaries, err := a.buildSummaries(ctx, referenced, records)
	if err != nil {
		return nil, nil, err
	}
	return requests, summaries, nil
}

// buildSummaries implements spec.md section 4.6 step 2-3: one summary per
// distinct referenced provider, covering its full inventory (not only the
// requested classes) and its complete trait set, each provider appearing
// at most once.
func (a *assembler) buildSummaries(ctx context.Context, referenced map[db.ProviderID]struct{}, records map[db.ProviderID]ProviderRecord) ([]ProviderSummary, error) {
	ids := make([]db.ProviderID, 0, len(referenced))
	for id := range referenced {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	summaries := make([]ProviderSummary, 0, len(ids))
	for _, id := range ids {
		rec, ok := records[id]
		if !ok {
			return nil, InternalError{Reason: "provider summary requested for an unloaded provider"}
		}

		classIDs := make([]db.ResourceClassID, 0, len(rec.Inventories))
		for classID := range rec.Inventories {
			classIDs = append(classIDs, classID)
		}
		sort.Slice(classIDs, func(i, j int) bool { return classIDs[i] < classIDs[j] })

		resources := make([]ProviderResource, 0, len(classIDs))
		for _, classID := range classIDs {
			name, err := a.resourceClasses.NameFromID(ctx, classID)
			if err != nil {
				return nil, err
			}
			inv := rec.Inventories[classID]
			resources = append(resources, ProviderResource{
				ResourceClassName: name,
				Capacity:          inv.EffectiveCapacity(),
				Used:              rec.Used[classID],
			})
		}

		traitIDs := make([]db.TraitID, 0, len(rec.Traits))
		for traitID := range rec.Traits {
			traitIDs = append(traitIDs, traitID)
		}
		sort.Slice(traitIDs, func(i, j int) bool { return traitIDs[i] < traitIDs[j] })
		traitNames := make([]string, 0, len(traitIDs))
		for _, traitID := range traitIDs {
			name, err := a.traits.NameFromID(ctx, traitID)
			if err != nil {
				return nil, err
			}
			traitNames = append(traitNames, name)
		}

		summaries = append(summaries, ProviderSummary{
			ProviderUUID: rec.UUID,
			Resources:    resources,
			Traits:       traitNames,
		})
	}
	return summaries, nil
}
