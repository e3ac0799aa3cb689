package dbftintegration

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/r3e-network/neodbft/dbft/dbftsqlite"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
)

// SQLiteStoreFactory provides one on-disk [dbftsqlite.Store] per validator,
// serving as both its block store and its snapshot store.
type SQLiteStoreFactory struct {
	Env *Env
}

func (f SQLiteStoreFactory) NewStores(ctx context.Context, idx int) (dbftstore.BlockStore, dbftstore.SnapshotStore, error) {
	path := filepath.Join(f.Env.TempDir(), fmt.Sprintf("val%d.sqlite", idx))
	s, err := dbftsqlite.NewOnDiskStore(ctx, f.Env.RootLogger.With("sys", "sqlite", "idx", idx), path)
	if err != nil {
		return nil, nil, err
	}
	f.Env.Cleanup(func() {
		_ = s.Close()
	})
	return s, s, nil
}
