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

// ResourceClassNotFoundError is returned when a resource class name or ID
// resolves in neither the standard catalogue nor the custom table.
type ResourceClassNotFoundError struct {
	Name string
	ID   db.ResourceClassID
}

func (e ResourceClassNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("no such resource class: %q", e.Name)
	}
	return fmt.Sprintf("no such resource class: id %d", e.ID)
}

// CustomResourceClassReader is the storage dependency of
// ResourceClassRegistry. It is satisfied by internal/db.Store.
type CustomResourceClassReader interface {
	ListCustomResourceClasses(ctx context.Context) ([]db.ResourceClassRow, error)
}

// resourceClassCacheLockName is the named coordination point for refreshes
// of the custom resource class cache (spec.md section 5, "Registry
// mutation"). In a multi-process deployment sharing one storage backend,
// this name is what an external lock service would be keyed on; within one
// process, a single mutex is all that is needed.
const resourceClassCacheLockName = "rc_cache"

// ResourceClassRegistry is a process-lived, lazily-populated cache mapping
// resource class names to IDs and back. Standard names/IDs resolve without
// ever taking the lock or touching storage; custom names/IDs are cached
// after the first lookup and refreshed under resourceClassCacheLockName.
type ResourceClassRegistry struct {
	store CustomResourceClassReader

	mutex    sync.Mutex
	nameToID map[string]db.ResourceClassID
	idToName map[db.ResourceClassID]string
}

// NewResourceClassRegistry creates an empty registry backed by the given
// store. The cache is populated lazily on first access to a custom name.
func NewResourceClassRegistry(store CustomResourceClassReader) *ResourceClassRegistry {
	return &ResourceClassRegistry{store: store}
}

// Clear drops the custom-class cache. Standard lookups are unaffected.
func (r *ResourceClassRegistry) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.nameToID = nil
	r.idToName = nil
}

// IDFromName resolves a resource class name to its ID. Standard names are
// resolved without taking the lock. Custom names trigger a cache refresh on
// the first miss.
func (r *ResourceClassRegistry) IDFromName(ctx context.Context, name string) (db.ResourceClassID, error) {
	if id, ok := resourceClassIDFromStandard(name); ok {
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
	return 0, ResourceClassNotFoundError{Name: name}
}

// NameFromID resolves a resource class ID to its name. Standard IDs are
// resolved without taking the lock.
func (r *ResourceClassRegistry) NameFromID(ctx context.Context, id db.ResourceClassID) (string, error) {
	if name, ok := resourceClassNameFromStandard(id); ok {
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
	return "", ResourceClassNotFoundError{ID: id}
}

// ResourceClassRecord is the full (id, name) row for a resolved resource
// class, standard or custom.
type ResourceClassRecord struct {
	ID   db.ResourceClassID
	Name string
}

// RecordFromName resolves a resource class name to its full record (spec.md
// section 4.1). A miss returns ResourceClassNotFoundError, as IDFromName
// does; on success the record carries both the ID and the name, so callers
// that need the full row don't have to combine them themselves.
func (r *ResourceClassRegistry) RecordFromName(ctx context.Context, name string) (ResourceClassRecord, error) {
	id, err := r.IDFromName(ctx, name)
	if err != nil {
		return ResourceClassRecord{}, err
	}
	return ResourceClassRecord{ID: id, Name: name}, nil
}

// IDsFromNames resolves a set of names in bulk. An unknown name fails the
// whole call with ResourceClassNotFoundError.
func (r *ResourceClassRegistry) IDsFromNames(ctx context.Context, names []string) (map[string]db.ResourceClassID, error) {
	result := make(map[string]db.ResourceClassID, len(names))
	for _, name := range names {
		id, err := r.IDFromName(ctx, name)
		if err != nil {
			return nil, err
		}
		result[name] = id
	}
	return result, nil
}

// refreshLocked re-reads the custom resource class table. Callers must hold
// r.mutex. It double-checks nothing since the caller already did the first
// check before deciding to refresh; a second caller blocked on the mutex
// will simply see the refreshed maps once it acquires the lock.
func (r *ResourceClassRegistry) refreshLocked(ctx context.Context) error {
	rows, err := r.store.ListCustomResourceClasses(ctx)
	if err != nil {
		return err
	}
	nameToID := make(map[string]db.ResourceClassID, len(rows))
	idToName := make(map[db.ResourceClassID]string, len(rows))
	for _, row := range rows {
		nameToID[row.Name] = row.ID
		idToName[row.ID] = row.Name
	}
	r.nameToID = nameToID
	r.idToName = idToName
	return nil
}
