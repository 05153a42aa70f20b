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

// Command placement-query is the CLI host for the allocation candidate
// engine (spec.md section 4.8): it loads the engine configuration, connects
// to Postgres, reads a request-groups document from stdin (or a file named
// on the command line), and prints the resulting allocation candidates as
// JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"

	"github.com/sapcc/placement/internal/core"
	"github.com/sapcc/placement/internal/db"
	"github.com/sapcc/placement/internal/placement"
)

func main() {
	logg.ShowDebug = osext.GetenvBool("PLACEMENT_DEBUG")
	logg.Info("starting %s, version %s", bininfo.Component(), bininfo.Version())

	if len(os.Args) > 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [request-groups.json]\n", os.Args[0])
		os.Exit(1)
	}

	configPath := osext.GetenvOrDefault("PLACEMENT_CONFIG_PATH", "/etc/placement/config.yaml")
	configBytes := must.Return(os.ReadFile(configPath))
	parsedConfig := must.Return(core.ParseConfiguration(configBytes))

	engineConfig := placement.Config{
		RandomizeAllocationCandidates: parsedConfig.RandomizeAllocationCandidates,
		DefaultCandidateLimit:         parsedConfig.DefaultCandidateLimit.UnwrapOr(0),
	}

	sqlDB := must.Return(db.Init())
	dbMap := db.InitORM(sqlDB)
	store := db.NewStore(dbMap)

	engine := placement.New(store, engineConfig)

	reqDoc := readRequestDocument()

	ctx := context.Background()
	if reqDoc.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(reqDoc.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	requests, summaries, err := engine.AllocationCandidates(ctx, reqDoc.RequestGroups, reqDoc.Limit)
	if err != nil {
		logg.Fatal("query failed: %s", err.Error())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must.Succeed(enc.Encode(responseDocument{
		Requests:  requests,
		Providers: summaries,
	}))
}

// requestDocument is the JSON shape read from stdin or the file argument.
// Its fields mirror placement.RequestGroup directly; TimeoutSeconds and
// Limit correspond to the engine's per-query overrides (spec.md section 6).
type requestDocument struct {
	RequestGroups  []placement.RequestGroup `json:"request_groups"`
	Limit          int                      `json:"limit"`
	TimeoutSeconds int                      `json:"timeout_seconds"`
}

type responseDocument struct {
	Requests  []placement.AllocationRequest `json:"requests"`
	Providers []placement.ProviderSummary   `json:"providers"`
}

func readRequestDocument() requestDocument {
	var r io.Reader = os.Stdin
	if len(os.Args) == 2 {
		r = must.Return(os.Open(os.Args[1]))
	}

	var doc requestDocument
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	must.Succeed(dec.Decode(&doc))
	return doc
}
