/*******************************************************************************
*
* Copyright 2017-2020 SAP SE
*
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You should have received a copy of the License along with this
* program. If not, you may obtain a copy of the License at
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
	gorp "github.com/go-gorp/gorp/v3"
)

// ResourceProvider contains a record from the `resource_providers` table.
//
// A provider with no parent is its own root. RootID is nullable to tolerate
// legacy records that predate nested provider trees; callers must treat a
// NULL RootID as "this provider is its own root".
type ResourceProvider struct {
	ID         ProviderID `db:"id"`
	UUID       string     `db:"uuid"`
	Name       string     `db:"name"`
	ParentID   *ProviderID `db:"parent_id"`
	RootID     *ProviderID `db:"root_id"`
	Generation int64      `db:"generation"`
}

// ResourceProviderAggregate contains a record from the
// `resource_provider_aggregates` table, a many-to-many relation between
// providers and aggregates.
type ResourceProviderAggregate struct {
	ProviderID  ProviderID  `db:"resource_provider_id"`
	AggregateID AggregateID `db:"aggregate_id"`
}

// Inventory contains a record from the `inventories` table. There must
// never be two inventory rows for the same (ProviderID, ResourceClassID)
// pair.
type Inventory struct {
	ProviderID      ProviderID      `db:"resource_provider_id"`
	ResourceClassID ResourceClassID `db:"resource_class_id"`
	Total           uint64          `db:"total"`
	Reserved        uint64          `db:"reserved"`
	MinUnit         uint64          `db:"min_unit"`
	MaxUnit         uint64          `db:"max_unit"`
	StepSize        uint64          `db:"step_size"`
	AllocationRatio float64         `db:"allocation_ratio"`
}

// Allocation contains a record from the `allocations` table. UsedTotal for
// a (ProviderID, ResourceClassID) pair is the sum of Used across all
// allocation rows naming that pair.
type Allocation struct {
	ID              int64           `db:"id"`
	ConsumerID      string          `db:"consumer_id"`
	ProviderID      ProviderID      `db:"resource_provider_id"`
	ResourceClassID ResourceClassID `db:"resource_class_id"`
	Used            uint64          `db:"used"`
}

// ResourceProviderTrait contains a record from the
// `resource_provider_traits` table, a many-to-many relation between
// providers and traits.
type ResourceProviderTrait struct {
	ProviderID ProviderID `db:"resource_provider_id"`
	TraitID    TraitID    `db:"trait_id"`
}

// initGorp registers all table mappings used by this package. Called once
// from InitORM.
func initGorp(dbm *gorp.DbMap) {
	dbm.AddTableWithName(ResourceClassRow{}, "resource_classes").SetKeys(true, "id")
	dbm.AddTableWithName(TraitRow{}, "traits").SetKeys(true, "id")
	dbm.AddTableWithName(ResourceProvider{}, "resource_providers").SetKeys(true, "id")
	dbm.AddTableWithName(ResourceProviderAggregate{}, "resource_provider_aggregates").SetKeys(false, "resource_provider_id", "aggregate_id")
	dbm.AddTableWithName(Inventory{}, "inventories").SetKeys(false, "resource_provider_id", "resource_class_id")
	dbm.AddTableWithName(Allocation{}, "allocations").SetKeys(true, "id")
	dbm.AddTableWithName(ResourceProviderTrait{}, "resource_provider_traits").SetKeys(false, "resource_provider_id", "trait_id")
}
