// Package dataloader provides generic helpers for batch loading objects by
// key.
//
// The controller resolves the pointers and relations of a whole result page
// with one query per field: the referenced ids of every object are collected,
// loaded together, and handed back to each object in the order it stores
// them.
//
// # Basic Usage
//
//	ids := dataloader.UniqueKeys(idsPerObject...)
//	objs, err := ctrl.GetObjects(ctx, veloxdb.GetObjectsParams{
//	    ClassName: "User",
//	    Where:     filter.IDIn(ids),
//	})
//	if err != nil {
//	    return err
//	}
//	ordered := dataloader.Found(ids, objs, veloxdb.Object.ID)
package dataloader

import (
	"errors"
)

// ErrNotFound is returned when an entity is not found in a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from an entity.
type KeyFunc[K comparable, V any] func(V) K

// OrderByKeys reorders entities to match the order of requested keys.
// Missing entities are represented as zero values with corresponding errors.
//
// The result slice:
//   - Has the same length as the input keys
//   - Has results in the same order as the input keys
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	// Build lookup map
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}

	// Build ordered result
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// Found reorders entities to match the order of requested keys, dropping
// the keys that were not found.
func Found[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) []V {
	result, errs := OrderByKeys(keys, values, keyFn)
	out := result[:0]
	for i, v := range result {
		if errs[i] == nil {
			out = append(out, v)
		}
	}
	return out
}

// UniqueKeys merges the key lists into one, keeping the first occurrence of
// each key.
func UniqueKeys[K comparable](lists ...[]K) []K {
	seen := make(map[K]struct{})
	var out []K
	for _, keys := range lists {
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
