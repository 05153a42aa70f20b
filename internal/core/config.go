/*******************************************************************************
*
* Copyright 2017 SAP SE
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

package core

import (
	"fmt"

	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-bits/errext"
	"gopkg.in/yaml.v2"
)

// Configuration contains the options recognized by the engine, as described
// in spec.md section 6. Unknown keys are rejected at parse time.
type Configuration struct {
	// RandomizeAllocationCandidates, when true, shuffles the final candidate
	// list instead of returning it in the deterministic, stable-sorted order.
	RandomizeAllocationCandidates bool `yaml:"randomize_allocation_candidates"`
	// DefaultCandidateLimit is applied to a query when the caller does not
	// supply a positive limit of its own. None means unlimited.
	DefaultCandidateLimit Option[int] `yaml:"default_candidate_limit"`
}

// configurationInput is an internal representation used only during YAML
// parsing, so that yaml.UnmarshalStrict can catch unknown keys while still
// letting us post-process `default_candidate_limit` into an Option.
type configurationInput struct {
	RandomizeAllocationCandidates bool `yaml:"randomize_allocation_candidates"`
	DefaultCandidateLimit         *int `yaml:"default_candidate_limit"`
}

// ParseConfiguration parses the engine configuration from a YAML document.
// Unrecognized keys are a parse error, per spec.md section 6 ("reject
// unknown keys").
func ParseConfiguration(buf []byte) (Configuration, error) {
	var input configurationInput
	err := yaml.UnmarshalStrict(buf, &input)
	if err != nil {
		return Configuration{}, fmt.Errorf("while parsing engine configuration: %w", err)
	}

	cfg := Configuration{
		RandomizeAllocationCandidates: input.RandomizeAllocationCandidates,
	}
	if input.DefaultCandidateLimit != nil {
		cfg.DefaultCandidateLimit = Some(*input.DefaultCandidateLimit)
	} else {
		cfg.DefaultCandidateLimit = None[int]()
	}

	if errs := cfg.Validate(); !errs.IsEmpty() {
		return Configuration{}, fmt.Errorf("while validating engine configuration: %w", errs[0])
	}
	return cfg, nil
}

// Validate checks the fields that ParseConfiguration's YAML unmarshalling
// cannot reject by itself (an unparseable default_candidate_limit fails
// earlier, at the yaml.UnmarshalStrict step).
func (cfg Configuration) Validate() (errs errext.ErrorSet) {
	if limit, ok := cfg.DefaultCandidateLimit.Unpack(); ok && limit <= 0 {
		errs.Addf("default_candidate_limit must be positive if given, got %d", limit)
	}
	return errs
}
