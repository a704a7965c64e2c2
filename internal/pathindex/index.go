// Package pathindex is the read face of the path index. The index itself is
// physical: the recordings table carries path_key and parent_key columns with
// SQL indexes over them, and the store's own mutations keep those columns
// current. This package layers choice-path semantics over those lookups so
// callers never hand raw keys around.
package pathindex

import (
	"context"

	"fabula/internal/pathkey"
	"fabula/internal/recording"
	"fabula/internal/services"
)

// Lookup is the subset of the recording store the index reads from.
type Lookup interface {
	FindByPath(ctx context.Context, sessionID, pathKey string, statuses ...recording.Status) (*recording.Recording, error)
	ChildrenOf(ctx context.Context, sessionID, prefixKey string) (map[string]recording.Summary, error)
}

// Index resolves choice paths to complete recordings within a session.
type Index struct {
	codec *pathkey.Codec
	store Lookup
}

// New builds an index over the given store using the given codec.
func New(codec *pathkey.Codec, store Lookup) *Index {
	if codec == nil {
		codec = pathkey.New(0)
	}
	return &Index{codec: codec, store: store}
}

// Codec exposes the codec the index encodes paths with.
func (ix *Index) Codec() *pathkey.Codec {
	return ix.codec
}

// Exists returns the complete recording at the exact choice path, or nil when
// no complete recording covers it. Recordings still being written or left
// interrupted are invisible here: only complete recordings are navigable.
func (ix *Index) Exists(ctx context.Context, sessionID string, path []string) (*recording.Recording, error) {
	key, err := ix.codec.Encode(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "pathindex", "exists", "encode path", err)
	}
	return ix.ExistsKey(ctx, sessionID, key)
}

// ExistsKey is Exists for callers that already hold an encoded path key.
func (ix *Index) ExistsKey(ctx context.Context, sessionID, pathKey string) (*recording.Recording, error) {
	return ix.store.FindByPath(ctx, sessionID, pathKey, recording.StatusComplete)
}

// ChildrenOf returns the recorded onward choices from the given path, keyed
// by choice identifier. Only complete recordings appear.
func (ix *Index) ChildrenOf(ctx context.Context, sessionID string, path []string) (map[string]recording.Summary, error) {
	key, err := ix.codec.Encode(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "pathindex", "children", "encode path", err)
	}
	return ix.store.ChildrenOf(ctx, sessionID, key)
}
