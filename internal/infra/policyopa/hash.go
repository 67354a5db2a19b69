package policyopa

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cryptoinfra "zkrent/internal/infra/crypto"
)

type policyHashPayload struct {
	Files []policyHashFile `json:"files"`
}

type policyHashFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// HashFromPath hashes a single .rego file or every policy file below a
// directory.
func HashFromPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return HashFromFS(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	}
	return HashFromFS(os.DirFS(path), ".")
}

// HashFromFS hashes the sorted (path, sha256) list of policy files under root.
// Editor droppings and non-policy files do not change the result.
func HashFromFS(fsys fs.FS, root string) (string, error) {
	files, err := collectPolicyFiles(fsys, root)
	if err != nil {
		return "", err
	}
	canonical, err := cryptoinfra.Canonicalize(policyHashPayload{Files: files})
	if err != nil {
		return "", err
	}
	return sha256Hex(canonical), nil
}

func collectPolicyFiles(fsys fs.FS, root string) ([]policyHashFile, error) {
	files := []policyHashFile{}
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != root && skipDir(path) {
				return fs.SkipDir
			}
			return nil
		}
		if !isPolicyFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(filepath.ToSlash(path), root), "/")
		if rel == "" {
			rel = filepath.Base(path)
		}
		files = append(files, policyHashFile{Path: rel, SHA256: sha256Hex(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func skipDir(path string) bool {
	base := filepath.Base(path)
	return base == "vendor" || base == "__MACOSX" || strings.HasPrefix(base, ".")
}

func isPolicyFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return base == "data.json" || strings.HasSuffix(base, ".rego")
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
