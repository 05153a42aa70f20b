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
	"fmt"
	"sync"

	"github.com/sapcc/placement/internal/db"
)

// TraitNotFoundError is returned when a trait name or ID resolves in
// neither the standard catalogue nor the custom table. Per spec.md section
// 4.2, this is always surfaced as an input error, never as a silent
// "matches nothing".
type TraitNotFoundError struct {
	Name string
	ID   db.TraitID
}

func (e TraitNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("no such trait: %q", e.Name)
	}
	return fmt.Sprintf("no such trait: id %d", e.ID)
}

// CustomTraitReader is the storage dependency of TraitRegistry. It is
// satisfied by internal/db.Store.
type CustomTraitReader interface {
	ListCustomTraits(ctx context.Context) ([]db.TraitRow, error)
}

// traitCacheLockName is the named coordination point for refreshes of the
// custom trait cache (spec.md section 5, "Registry mutation").
const traitCacheLockName = "trait_cache"

// TraitRegistry is a process-lived, lazily-populated cache mapping trait
// names to IDs and back, with the same shape as ResourceClassRegistry.
type TraitRegistry struct {
	store CustomTraitReader

	mutex    sync.Mutex
	nameToID map[string]db.TraitID
	idToName map[db.TraitID]string
}

// NewTraitRegistry creates an empty registry backed by the given store.
func NewTraitRegistry(store CustomTraitReader) *TraitRegistry {
	return &TraitRegistry{store: store}
}

// Clear drops the custom-trait cache. Standard lookups are unaffected.
func (r *TraitRegistry) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.nameToID = nil
	r.idToName = nil
}

// IDFromName resolves a trait name to its ID.
func (r *TraitRegistry) IDFromName(ctx context.Context, name string) (db.TraitID, error) {
	if id, ok := traitIDFromStandard(name); ok {
		return id, nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if id, ok := r.nameToID[name]; ok {
		return id, nil
	}
	if err := r.refreshLocked(ctx); err != nil {
		return 0, err
	}
	if id, ok := r.nameToID[name]; ok {
		return id, nil
	}
	return 0, TraitNotFoundError{Name: name}
}

// NameFromID resolves a trait ID to its name.
func (r *TraitRegistry) NameFromID(ctx context.Context, id db.TraitID) (string, error) {
	if name, ok := traitNameFromStandard(id); ok {
		return name, nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if name, ok := r.idToName[id]; ok {
		return name, nil
	}
	if err := r.refreshLocked(ctx); err != nil {
		return "", err
	}
	if name, ok := r.idToName[id]; ok {
		return name, nil
	}
	return "", TraitNotFoundError{ID: id}
}

// TraitRecord is the full (id, name) row for a resolved trait, standard or
// custom.
type TraitRecord struct {
	ID   db.TraitID
	Name string
}

// RecordFromName resolves a trait name to its full record (spec.md section
// 4.2, same shape as ResourceClassRegistry.RecordFromName).
func (r *TraitRegistry) RecordFromName(ctx context.Context, name string) (TraitRecord, error) {
	id, err := r.IDFromName(ctx, name)
	if err != nil {
		return TraitRecord{}, err
	}
	return TraitRecord{ID: id, Name: name}, nil
}

// IDsForNames resolves a set of trait names in bulk. An unknown name fails
// the whole call with TraitNotFoundError; this is what lets matcher entry
// points fail fast on an unknown required/forbidden trait before any other
// work (spec.md section 4.2).
func (r *TraitRegistry) IDsForNames(ctx context.Context, names []string) (map[string]db.TraitID, error) {
	result := make(map[string]db.TraitID, len(names))
	for _, name := range names {
		id, err := r.IDFromName(ctx, name)
		if err != nil {
			return nil, err
		}
		result[name] = id
	}
	return result, nil
}

func (r *TraitRegistry) refreshLocked(ctx context.Context) error {
	rows, err := r.store.ListCustomTraits(ctx)
	if err != nil {
		return err
	}
	nameToID := make(map[string]db.TraitID, len(rows))
	idToName := make(map[db.TraitID]string, len(rows))
	for _, row := range rows {
		nameToID[row.Name] = row.ID
		idToName[row.ID] = row.Name
	}
	r.nameToID = nameToID
	r.idToName = idToName
	return nil
}
