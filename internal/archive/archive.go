package archive

import (
	"archive/zip"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/flate"
	"github.com/zeebo/blake3"
)

var ErrEmptyDirectory = errors.New("no files to package")

const ManifestName = "GIT_INFO.json"

// digestKey is the BLAKE3 keyed-hash domain for artifact digests, the
// ASCII domain name zero-padded to the required 32 bytes.
var digestKey = [32]byte{
	'a', 'g', 'e', 'n', 't', 'b', 'e', 'a', 't', 's', '.',
	's', 'u', 'b', 'm', 'i', 's', 's', 'i', 'o', 'n', '.',
	'a', 'r', 't', 'i', 'f', 'a', 'c', 't', 0, 0,
}

type Artifact struct {
	Path         string   `json:"path"`
	Digest       string   `json:"digest"`
	ManifestPath string   `json:"manifest_path,omitempty"`
	FileCount    int      `json:"file_count"`
	TotalSize    int64    `json:"total_size"`
	Files        []string `json:"files"`
}

// Build packages every regular file under sourcePath into a zip at
// outPath. Entries are sorted, timestamps zeroed and permissions fixed
// so packaging the same tree twice yields byte-identical artifacts.
// A non-nil manifest is added as an extra GIT_INFO.json entry unless
// the tree already carries one.
func Build(sourcePath, outPath string, manifest []byte) (*Artifact, error) {
	outAbs, err := filepath.Abs(outPath)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}

	var files []string
	err = filepath.WalkDir(sourcePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if abs == outAbs {
			return nil
		}
		rel, err := filepath.Rel(sourcePath, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source directory: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrEmptyDirectory
	}
	sort.Strings(files)

	hasManifest := false
	for _, rel := range files {
		if rel == ManifestName {
			hasManifest = true
			break
		}
	}

	art := &Artifact{Path: outPath}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	addEntry := func(name string, data []byte) error {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(0o644)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("create entry %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write entry %s: %w", name, err)
		}
		art.Files = append(art.Files, name)
		art.FileCount++
		art.TotalSize += int64(len(data))
		return nil
	}

	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(sourcePath, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		if err := addEntry(rel, data); err != nil {
			return nil, err
		}
	}
	if manifest != nil && !hasManifest {
		if err := addEntry(ManifestName, manifest); err != nil {
			return nil, err
		}
	}
	if hasManifest || manifest != nil {
		art.ManifestPath = ManifestName
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write archive: %w", err)
	}
	art.Digest = digest(buf.Bytes())
	return art, nil
}

func digest(data []byte) string {
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("archive: keyed hash init failed: " + err.Error())
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}
