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

var sqlMigrations = map[string]string{
	"001_initial.down.sql": `
		DROP TABLE resource_provider_traits;
		DROP TABLE allocations;
		DROP TABLE inventories;
		DROP TABLE resource_provider_aggregates;
		DROP TABLE resource_providers;
		DROP TABLE traits;
		DROP TABLE resource_classes;
	`,
	"001_initial.up.sql": `
		CREATE TABLE resource_classes (
			id    BIGSERIAL  NOT NULL PRIMARY KEY,
			name  TEXT       NOT NULL UNIQUE
		);
		ALTER SEQUENCE resource_classes_id_seq RESTART WITH 10000;

		CREATE TABLE traits (
			id    BIGSERIAL  NOT NULL PRIMARY KEY,
			name  TEXT       NOT NULL UNIQUE
		);
		ALTER SEQUENCE traits_id_seq RESTART WITH 10000;

		CREATE TABLE resource_providers (
			id          BIGSERIAL  NOT NULL PRIMARY KEY,
			uuid        TEXT       NOT NULL UNIQUE,
			name        TEXT       NOT NULL UNIQUE,
			parent_id   BIGINT     REFERENCES resource_providers ON DELETE CASCADE,
			root_id     BIGINT     REFERENCES resource_providers ON DELETE CASCADE,
			generation  BIGINT     NOT NULL DEFAULT 0
		);

		CREATE INDEX resource_providers_parent_idx ON resource_providers (parent_id);
		CREATE INDEX resource_providers_root_idx ON resource_providers (root_id);

		CREATE TABLE resource_provider_aggregates (
			resource_provider_id  BIGINT  NOT NULL REFERENCES resource_providers ON DELETE CASCADE,
			aggregate_id          TEXT    NOT NULL,
			PRIMARY KEY (resource_provider_id, aggregate_id)
		);

		CREATE INDEX resource_provider_aggregates_aggregate_idx ON resource_provider_aggregates (aggregate_id);

		CREATE TABLE inventories (
			resource_provider_id  BIGINT   NOT NULL REFERENCES resource_providers ON DELETE CASCADE,
			resource_class_id     BIGINT   NOT NULL,
			total                 BIGINT   NOT NULL,
			reserved              BIGINT   NOT NULL DEFAULT 0,
			min_unit              BIGINT   NOT NULL DEFAULT 1,
			max_unit              BIGINT   NOT NULL,
			step_size             BIGINT   NOT NULL DEFAULT 1,
			allocation_ratio      REAL     NOT NULL DEFAULT 1.0,
			PRIMARY KEY (resource_provider_id, resource_class_id)
		);

		CREATE INDEX inventories_class_idx ON inventories (resource_class_id);

		CREATE TABLE allocations (
			id                    BIGSERIAL  NOT NULL PRIMARY KEY,
			consumer_id           TEXT       NOT NULL,
			resource_provider_id  BIGINT     NOT NULL REFERENCES resource_providers ON DELETE CASCADE,
			resource_class_id     BIGINT     NOT NULL,
			used                  BIGINT     NOT NULL
		);

		CREATE INDEX allocations_provider_class_idx ON allocations (resource_provider_id, resource_class_id);
		CREATE INDEX allocations_consumer_idx ON allocations (consumer_id);

		CREATE TABLE resource_provider_traits (
			resource_provider_id  BIGINT  NOT NULL REFERENCES resource_providers ON DELETE CASCADE,
			trait_id              BIGINT  NOT NULL,
			PRIMARY KEY (resource_provider_id, trait_id)
		);

		CREATE INDEX resource_provider_traits_trait_idx ON resource_provider_traits (trait_id);
	`,
}
