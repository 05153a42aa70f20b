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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"

	"github.com/sapcc/placement/internal/db"
)

// TestEngineResourceClassNotFoundFailsFast mirrors TestS3UnknownRequiredTrait
// (matcher_test.go) for the other registry: an unresolvable resource class
// name must surface as ResourceClassNotFoundError without ever reaching the
// store's matching predicates.
func TestEngineResourceClassNotFoundFailsFast(t *testing.T) {
	store := newFakeStore(traitSharing)
	store.addProvider("cn1").withInventory(classVCPU, 24)

	engine := newTestEngine(store)
	_, _, err := engine.AllocationCandidates(context.Background(), []RequestGroup{{
		Resources:       map[string]uint64{"CUSTOM_UNKNOWN_CLASS_NAME": 1},
		UseSameProvider: true,
	}}, 0)
	var notFound ResourceClassNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ResourceClassNotFoundError, got %v", err)
	}
}

// erroringStore wraps a fakeStore and fails ListCustomResourceClasses
// unconditionally, so that resolving any non-standard resource class name
// forces an error out of the matcher regardless of ctx.
type erroringStore struct {
	*fakeStore
}

func (s erroringStore) ListCustomResourceClasses(ctx context.Context) ([]db.ResourceClassRow, error) {
	return nil, fmt.Errorf("simulated storage failure")
}

// TestEngineDeadlineExceededIsSurfacedVerbatim grounds spec.md section 7's
// rule that a query already past its deadline reports context.DeadlineExceeded
// rather than whatever storage error the expired context happened to cause.
func TestEngineDeadlineExceededIsSurfacedVerbatim(t *testing.T) {
	store := erroringStore{newFakeStore(traitSharing)}
	store.addProvider("cn1").withInventory(classVCPU, 24)

	engine := New(store, Config{})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Minute))
	defer cancel()

	_, _, err := engine.AllocationCandidates(ctx, []RequestGroup{{
		Resources:       map[string]uint64{"CUSTOM_CLASS_NAME": 1},
		UseSameProvider: true,
	}}, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

// TestEngineRejectsEmptyRequestGroups grounds spec.md section 6: a query
// with no request groups at all is a BadRequestError, not an empty result.
func TestEngineRejectsEmptyRequestGroups(t *testing.T) {
	store := newFakeStore(traitSharing)
	engine := newTestEngine(store)

	_, _, err := engine.AllocationCandidates(context.Background(), nil, 0)
	var badRequest BadRequestError
	if !errors.As(err, &badRequest) {
		t.Fatalf("expected BadRequestError, got %v", err)
	}
}

// TestErrorKindLabelsEveryEngineErrorType grounds the metrics label mapping
// in errorKind: every concrete error type the engine can surface, and
// context.DeadlineExceeded, gets a dedicated label, and anything else (an
// arbitrary backend error) falls into the "backend" catch-all.
func TestErrorKindLabelsEveryEngineErrorType(t *testing.T) {
	cases := []struct {
		err      error
		expected string
	}{
		{BadRequestError{Reason: "x"}, "bad_request"},
		{TraitNotFoundError{Name: "x"}, "trait_not_found"},
		{ResourceClassNotFoundError{Name: "x"}, "resource_class_not_found"},
		{ConcurrentUpdateError{ProviderUUID: "x"}, "concurrent_update"},
		{InternalError{Reason: "x"}, "internal"},
		{context.DeadlineExceeded, "deadline_exceeded"},
		{fmt.Errorf("anything else"), "backend"},
	}
	for _, c := range cases {
		assert.DeepEqual(t, fmt.Sprintf("errorKind(%v)", c.err), errorKind(c.err), c.expected)
	}
}
