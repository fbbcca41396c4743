package port

import "context"

// ArchiveEntry is one file to pack, stored under Name inside the archive.
type ArchiveEntry struct {
	Name string
	Data []byte
}

type Archiver interface {
	Archive(ctx context.Context, entries []ArchiveEntry) ([]byte, error)
}
