package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-vision-service/internal/domain/port"
)

type ZipArchiver struct{}

func NewZipArchiver() *ZipArchiver {
	return &ZipArchiver{}
}

// Archive packs entries into an in-memory zip. JPEGs are already compressed,
// so entries are stored rather than deflated.
func (z *ZipArchiver) Archive(ctx context.Context, entries []port.ArchiveEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range entries {
		select {
		case <-ctx.Done():
			zw.Close()
			return nil, ctx.Err()
		default:
		}

		if err := addEntry(zw, e); err != nil {
			zw.Close()
			return nil, fmt.Errorf("add %s to zip: %w", e.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

func addEntry(zw *zip.Writer, e port.ArchiveEntry) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     e.Name,
		Method:   zip.Store,
		Modified: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = w.Write(e.Data)
	return err
}
