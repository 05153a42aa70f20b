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

import "github.com/sapcc/placement/internal/db"

// BadRequestError, TraitNotFoundError, ResourceClassNotFoundError,
// ConcurrentUpdateError, and InternalError live in internal/db rather than
// here, so that internal/db.Store can return them without importing this
// package (which already imports internal/db for the id types). See
// store.go for the same reasoning applied to the Store interface's result
// types.
type (
	BadRequestError            = db.BadRequestError
	TraitNotFoundError         = db.TraitNotFoundError
	ResourceClassNotFoundError = db.ResourceClassNotFoundError
	ConcurrentUpdateError      = db.ConcurrentUpdateError
	InternalError              = db.InternalError
)
