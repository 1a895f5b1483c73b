package layer

import (
	_ "crypto/sha512" // registers SHA-512 for go-digest
	"io"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

var reservedNames = map[string]struct{}{
	workingDirName: {},
	specialDirName: {},
	mergedDirName:  {},
	lockFileName:   {},
}

// ContentHash returns the name a store entry built from the description in r
// gets: the lowercase hex SHA-512 of its content.
func ContentHash(r io.Reader) (string, error) {
	dgst, err := digest.SHA512.FromReader(r)
	if err != nil {
		return "", err
	}
	return dgst.Encoded(), nil
}

// NormalizeHash checks that hash can name an upper layer directory in a store
// root and returns the directory name. A digest such as "sha512:<hex>" is
// accepted and reduced to its encoded part.
func NormalizeHash(hash string) (string, error) {
	if strings.Contains(hash, ":") {
		dgst, err := digest.Parse(hash)
		if err != nil {
			return "", errors.Wrapf(err, "invalid content digest %q", hash)
		}
		hash = dgst.Encoded()
	}
	if hash == "" || hash == "." || hash == ".." || strings.ContainsRune(hash, '/') {
		return "", errors.Errorf("invalid content hash %q: must be a single path element", hash)
	}
	if _, ok := reservedNames[hash]; ok {
		return "", errors.Errorf("invalid content hash %q: reserved store directory name", hash)
	}
	return hash, nil
}
