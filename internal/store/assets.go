package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/opencontainers/go-digest"
)

// AssetStore keeps bitstream content on disk, addressed by digest:
// <root>/<algorithm>/<first two hex chars>/<hex>.
type AssetStore struct {
	root string
}

// Asset describes content written to the store.
type Asset struct {
	Digest   digest.Digest
	Size     int64
	MIMEType string
}

// NewAssetStore creates root if needed.
func NewAssetStore(root string) (*AssetStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset store: %w", err)
	}
	return &AssetStore{root: root}, nil
}

// Path returns where content with digest d is stored.
func (a *AssetStore) Path(d digest.Digest) string {
	enc := d.Encoded()
	return filepath.Join(a.root, d.Algorithm().String(), enc[:2], enc)
}

// Put streams r into the store. Identical content is stored once.
func (a *AssetStore) Put(r io.Reader) (Asset, error) {
	tmp, err := os.CreateTemp(a.root, ".upload-*")
	if err != nil {
		return Asset{}, fmt.Errorf("put asset: %w", err)
	}
	defer os.Remove(tmp.Name())

	digester := digest.Canonical.Digester()
	size, err := io.Copy(io.MultiWriter(tmp, digester.Hash()), r)
	if err != nil {
		tmp.Close()
		return Asset{}, fmt.Errorf("put asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Asset{}, fmt.Errorf("put asset: %w", err)
	}

	mt, err := mimetype.DetectFile(tmp.Name())
	if err != nil {
		return Asset{}, fmt.Errorf("detect mimetype: %w", err)
	}

	d := digester.Digest()
	dest := a.Path(d)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Asset{}, fmt.Errorf("put asset: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return Asset{}, fmt.Errorf("put asset: %w", err)
	}

	return Asset{Digest: d, Size: size, MIMEType: mt.String()}, nil
}

// Open returns the content stored under d.
func (a *AssetStore) Open(d digest.Digest) (io.ReadCloser, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}
	f, err := os.Open(a.Path(d))
	if err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}
	return f, nil
}

// Verify re-reads the content under d and checks it still hashes to d.
func (a *AssetStore) Verify(d digest.Digest) error {
	rc, err := a.Open(d)
	if err != nil {
		return err
	}
	defer rc.Close()

	verifier := d.Verifier()
	if _, err := io.Copy(verifier, rc); err != nil {
		return fmt.Errorf("verify asset: %w", err)
	}
	if !verifier.Verified() {
		return fmt.Errorf("verify asset %s: content does not match digest", d)
	}
	return nil
}
