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

package core

import (
	"context"
	"errors"
	"testing"

	"github.com/sapcc/placement/internal/db"
)

type fakeTraitReader struct {
	rows      []db.TraitRow
	callCount int
}

func (f *fakeTraitReader) ListCustomTraits(ctx context.Context) ([]db.TraitRow, error) {
	f.callCount++
	return f.rows, nil
}

func TestTraitRegistryStandardBypassesStorage(t *testing.T) {
	reader := &fakeTraitReader{}
	registry := NewTraitRegistry(reader)

	id, err := registry.IDFromName(context.Background(), SharingTraitName)
	if err != nil {
		t.Fatal(err)
	}
	name, err := registry.NameFromID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if name != SharingTraitName {
		t.Errorf("expected round-trip to %s, got %q", SharingTraitName, name)
	}
	if reader.callCount != 0 {
		t.Errorf("expected standard lookups to never touch storage, got %d calls", reader.callCount)
	}
}

func TestTraitRegistryIDsForNamesFailsOnUnknown(t *testing.T) {
	reader := &fakeTraitReader{
		rows: []db.TraitRow{{ID: 10000, Name: "CUSTOM_GOLD_PLATED"}},
	}
	registry := NewTraitRegistry(reader)

	_, err := registry.IDsForNames(context.Background(), []string{"CUSTOM_GOLD_PLATED", "CUSTOM_UNKNOWN"})
	var notFound TraitNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected TraitNotFoundError, got %v", err)
	}
}

func TestTraitRegistryRecordFromName(t *testing.T) {
	reader := &fakeTraitReader{
		rows: []db.TraitRow{{ID: 10001, Name: "CUSTOM_LIQUID_COOLED"}},
	}
	registry := NewTraitRegistry(reader)

	record, err := registry.RecordFromName(context.Background(), "CUSTOM_LIQUID_COOLED")
	if err != nil {
		t.Fatal(err)
	}
	if record.ID != 10001 || record.Name != "CUSTOM_LIQUID_COOLED" {
		t.Errorf("expected record {10001 CUSTOM_LIQUID_COOLED}, got %+v", record)
	}

	_, err = registry.RecordFromName(context.Background(), "CUSTOM_UNKNOWN")
	var notFound TraitNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected TraitNotFoundError, got %v", err)
	}
}

func TestTraitRegistryIDsForNamesSucceeds(t *testing.T) {
	reader := &fakeTraitReader{
		rows: []db.TraitRow{{ID: 10000, Name: "CUSTOM_GOLD_PLATED"}},
	}
	registry := NewTraitRegistry(reader)

	result, err := registry.IDsForNames(context.Background(), []string{SharingTraitName, "CUSTOM_GOLD_PLATED"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 resolved IDs, got %d", len(result))
	}
}
