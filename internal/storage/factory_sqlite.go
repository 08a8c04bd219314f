//go:build sqlite

package storage

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

// DefaultStoreKind is the backend commands use when none is named.
func DefaultStoreKind() string { return "sqlite" }
