package index

import (
	"context"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Status describes the persisted index state.
type Status struct {
	Collection     string `json:"collection"`
	ManifestChunks int    `json:"manifestChunks"`
	StoreRows      int    `json:"storeRows"`
	Initialized    bool   `json:"initialized"`

	// Locked is true while another run holds the index lock.
	Locked bool `json:"locked"`
}

// Status reads the manifest and the store row count without taking the
// index lock. A collection that was never written reports Initialized false
// rather than an error.
func (ix *Indexer) Status(ctx context.Context) (*Status, error) {
	ids, err := ix.manifest.Load()
	if err != nil {
		return nil, err
	}
	st := &Status{
		Collection:     ix.store.Backend().Collection(),
		ManifestChunks: len(ids),
	}

	n, err := ix.store.Count(ctx)
	switch {
	case err == nil:
		st.StoreRows = n
		st.Initialized = true
	case amanerrors.GetCode(err) == amanerrors.ErrCodeNotInitialized:
	default:
		return nil, err
	}

	if ix.cfg.DataDir != "" {
		held, err := NewFileLock(ix.cfg.DataDir).Held()
		if err == nil {
			st.Locked = held
		}
	}
	return st, nil
}
