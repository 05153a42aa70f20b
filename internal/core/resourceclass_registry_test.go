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

type fakeResourceClassReader struct {
	rows      []db.ResourceClassRow
	callCount int
}

func (f *fakeResourceClassReader) ListCustomResourceClasses(ctx context.Context) ([]db.ResourceClassRow, error) {
	f.callCount++
	return f.rows, nil
}

func TestResourceClassRegistryStandardBypassesStorage(t *testing.T) {
	reader := &fakeResourceClassReader{}
	registry := NewResourceClassRegistry(reader)

	id, err := registry.IDFromName(context.Background(), "VCPU")
	if err != nil {
		t.Fatal(err)
	}
	name, err := registry.NameFromID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if name != "VCPU" {
		t.Errorf("expected round-trip to VCPU, got %q", name)
	}
	if reader.callCount != 0 {
		t.Errorf("expected standard lookups to never touch storage, got %d calls", reader.callCount)
	}
}

func TestResourceClassRegistryCustomRefreshesOnce(t *testing.T) {
	reader := &fakeResourceClassReader{
		rows: []db.ResourceClassRow{{ID: 10000, Name: "CUSTOM_MAGIC"}},
	}
	registry := NewResourceClassRegistry(reader)

	id, err := registry.IDFromName(context.Background(), "CUSTOM_MAGIC")
	if err != nil {
		t.Fatal(err)
	}
	if id != 10000 {
		t.Errorf("expected id 10000, got %d", id)
	}

	// a second lookup of the same name must not refresh again
	_, err = registry.IDFromName(context.Background(), "CUSTOM_MAGIC")
	if err != nil {
		t.Fatal(err)
	}
	if reader.callCount != 1 {
		t.Errorf("expected exactly one refresh, got %d", reader.callCount)
	}
}

func TestResourceClassRegistryNotFound(t *testing.T) {
	reader := &fakeResourceClassReader{}
	registry := NewResourceClassRegistry(reader)

	_, err := registry.IDFromName(context.Background(), "CUSTOM_NOPE")
	var notFound ResourceClassNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ResourceClassNotFoundError, got %v", err)
	}
}

func TestResourceClassRegistryRoundTrip(t *testing.T) {
	reader := &fakeResourceClassReader{
		rows: []db.ResourceClassRow{{ID: 10001, Name: "CUSTOM_IRON_SILVER"}},
	}
	registry := NewResourceClassRegistry(reader)

	for _, name := range append(append([]string{}, standardResourceClasses...), "CUSTOM_IRON_SILVER") {
		id, err := registry.IDFromName(context.Background(), name)
		if err != nil {
			t.Fatal(err)
		}
		roundTripped, err := registry.NameFromID(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if roundTripped != name {
			t.Errorf("round-trip mismatch: %q -> %d -> %q", name, id, roundTripped)
		}
	}
}

func TestResourceClassRegistryRecordFromName(t *testing.T) {
	reader := &fakeResourceClassReader{
		rows: []db.ResourceClassRow{{ID: 10002, Name: "CUSTOM_COLD_STORAGE"}},
	}
	registry := NewResourceClassRegistry(reader)

	record, err := registry.RecordFromName(context.Background(), "CUSTOM_COLD_STORAGE")
	if err != nil {
		t.Fatal(err)
	}
	if record.ID != 10002 || record.Name != "CUSTOM_COLD_STORAGE" {
		t.Errorf("expected record {10002 CUSTOM_COLD_STORAGE}, got %+v", record)
	}

	_, err = registry.RecordFromName(context.Background(), "CUSTOM_NOPE")
	var notFound ResourceClassNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ResourceClassNotFoundError, got %v", err)
	}
}

func TestResourceClassRegistryIdempotentRefresh(t *testing.T) {
	reader := &fakeResourceClassReader{
		rows: []db.ResourceClassRow{{ID: 10000, Name: "CUSTOM_MAGIC"}},
	}
	registry := NewResourceClassRegistry(reader)
	registry.Clear()

	err := registry.refreshLocked(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	first := registry.nameToID["CUSTOM_MAGIC"]

	err = registry.refreshLocked(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second := registry.nameToID["CUSTOM_MAGIC"]

	if first != second {
		t.Errorf("two consecutive refreshes produced different IDs: %d vs %d", first, second)
	}
}
