// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

// indexRowsByProvider executes an SQL query and groups the result by the
// provider each row belongs to. Every table loadGraph bulk-loads besides
// resource_providers itself (aggregates, traits, inventories) has exactly
// this shape -- zero or more rows per resource_provider_id -- so the key
// type is fixed to ProviderID rather than left generic.
func indexRowsByProvider[R any](dbi Interface, providerOf func(R) ProviderID, query string, args ...any) (map[ProviderID][]R, error) {
	var rows []R
	_, err := dbi.Select(&rows, query, args...)
	if err != nil {
		return nil, err
	}
	result := make(map[ProviderID][]R, len(rows))
	for _, row := range rows {
		id := providerOf(row)
		result[id] = append(result[id], row)
	}
	return result, nil
}
