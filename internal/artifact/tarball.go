package artifact

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
)

// archiveModTime is stamped on every entry so archives depend only on their content.
// npm uses the same instant when packing.
var archiveModTime = time.Date(1985, time.October, 26, 8, 15, 0, 0, time.UTC)

// Entry is a single file placed in an archive
type Entry struct {
	Name    string
	Content []byte
}

// WriteTarball writes entries as a gzip-compressed tar stream to w, in order
func WriteTarball(w io.Writer, entries []Entry) error {
	gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	for _, entry := range entries {
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     entry.Name,
			Mode:     0o644,
			Size:     int64(len(entry.Content)),
			ModTime:  archiveModTime,
			Format:   tar.FormatUSTAR,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", entry.Name, err)
		}
		if _, err := tw.Write(entry.Content); err != nil {
			return fmt.Errorf("failed to write %s: %w", entry.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return nil
}

// Tarball encodes entries into an in-memory archive
func Tarball(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTarball(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadTarball decodes an archive produced by WriteTarball
func ReadTarball(r io.Reader) ([]Entry, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	var entries []Entry
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar stream: %w", err)
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", hdr.Name, err)
		}
		entries = append(entries, Entry{Name: hdr.Name, Content: content})
	}
	return entries, nil
}
