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

// Package placement implements the allocation candidate engine: given a set
// of request groups describing resource and trait needs, it enumerates the
// ways those needs could be satisfied by the provider graph (spec.md
// sections 4.5 and 4.6).
package placement

import "github.com/sapcc/placement/internal/db"

// RequestGroup is one named slice of a caller's request (spec.md section
// 4.5). The unsuffixed group (Key == "") may draw resources from several
// providers linked by aggregate; every other group is pinned to a single
// provider.
type RequestGroup struct {
	Key              string
	Resources        map[string]uint64 // resource class name -> amount
	RequiredTraits   []string
	ForbiddenTraits  []string
	MemberOf         [][]string // AND of ORs over aggregate UUIDs
	UseSameProvider  bool
}

// AllocationEntry is one (provider, class, amount) triple within an
// AllocationRequest.
type AllocationEntry struct {
	ProviderUUID      string
	ResourceClassName string
	Amount            uint64
}

// AllocationRequest is one way of satisfying all of the caller's request
// groups. Within one request, a given resource class name appears at most
// once per request group (spec.md section 6).
type AllocationRequest struct {
	Entries []AllocationEntry
}

// ProviderResource is one line of a ProviderSummary: the capacity and usage
// of a single resource class on a single provider, independent of whether
// that class was requested.
type ProviderResource struct {
	ResourceClassName string
	Capacity          uint64
	Used              uint64
}

// ProviderSummary describes one provider referenced by any retained
// AllocationRequest: its full inventory (not only the requested classes)
// and its complete trait set (spec.md section 4.6).
type ProviderSummary struct {
	ProviderUUID string
	Resources    []ProviderResource
	Traits       []string
}

// Config carries the engine-wide options named in spec.md section 6.
type Config struct {
	RandomizeAllocationCandidates bool
	DefaultCandidateLimit         int // 0 means unlimited
}
