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

// ProviderID is an ID into the resource_providers table. This typedef is
// used to distinguish it from IDs of other tables or raw int64 values.
type ProviderID int64

// ResourceClassID is the integer identifier of a resource class, either a
// fixed ID from the standard catalogue or an ID assigned on creation of a
// custom resource class (persisted in the resource_classes table).
type ResourceClassID int64

// TraitID is the integer identifier of a trait, either a fixed ID from the
// standard catalogue or an ID assigned on creation of a custom trait
// (persisted in the traits table).
type TraitID int64

// AggregateID is the opaque identifier shared between providers to express
// aggregate membership. It has no independent lifecycle beyond the
// memberships that reference it.
type AggregateID string

// ResourceClassRow contains a record from the `resource_classes` table
// (custom resource classes only; standard classes never appear here).
type ResourceClassRow struct {
	ID   ResourceClassID `db:"id"`
	Name string          `db:"name"`
}

// TraitRow contains a record from the `traits` table (custom traits only;
// standard traits never appear here).
type TraitRow struct {
	ID   TraitID `db:"id"`
	Name string  `db:"name"`
}
