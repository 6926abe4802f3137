// Package verify checks downloaded configuration content against declared digests and
// verifies configuration directory signatures.
package verify

import (
	"bytes"
	"crypto"
	"crypto/sha1" //nolint:gosec // G505: SHA-1 is still a valid algorithm id in older directories
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strings"

	sha256simd "github.com/minio/sha256-simd"
	"golang.org/x/crypto/sha3"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

// Digest algorithm identifiers
const (
	DigestSHA1     = "http://www.w3.org/2000/09/xmldsig#sha1"
	DigestSHA224   = "http://www.w3.org/2001/04/xmldsig-more#sha224"
	DigestSHA256   = "http://www.w3.org/2001/04/xmlenc#sha256"
	DigestSHA384   = "http://www.w3.org/2001/04/xmldsig-more#sha384"
	DigestSHA512   = "http://www.w3.org/2001/04/xmlenc#sha512"
	DigestSHA3_256 = "http://www.w3.org/2007/05/xmldsig-more#sha3-256"
	DigestSHA3_512 = "http://www.w3.org/2007/05/xmldsig-more#sha3-512"
)

type digest struct {
	newHash func() hash.Hash
	crypto  crypto.Hash
}

var digests = map[string]digest{
	DigestSHA1:     {newHash: sha1.New, crypto: crypto.SHA1},
	DigestSHA224:   {newHash: sha256.New224, crypto: crypto.SHA224},
	DigestSHA256:   {newHash: sha256simd.New, crypto: crypto.SHA256},
	DigestSHA384:   {newHash: sha512.New384, crypto: crypto.SHA384},
	DigestSHA512:   {newHash: sha512.New, crypto: crypto.SHA512},
	DigestSHA3_256: {newHash: sha3.New256, crypto: crypto.SHA3_256},
	DigestSHA3_512: {newHash: sha3.New512, crypto: crypto.SHA3_512},
}

// short names accepted alongside the URIs
var digestAliases = map[string]string{
	"SHA-1":    DigestSHA1,
	"SHA-224":  DigestSHA224,
	"SHA-256":  DigestSHA256,
	"SHA-384":  DigestSHA384,
	"SHA-512":  DigestSHA512,
	"SHA3-256": DigestSHA3_256,
	"SHA3-512": DigestSHA3_512,
}

func lookupDigest(algorithmID string) (digest, error) {
	id := strings.TrimSpace(algorithmID)
	if alias, ok := digestAliases[strings.ToUpper(id)]; ok {
		id = alias
	}
	d, ok := digests[id]
	if !ok {
		return digest{}, fmt.Errorf("unsupported hash algorithm id %q", algorithmID)
	}
	return d, nil
}

// Sum computes the digest of data with the algorithm named by algorithmID
func Sum(algorithmID string, data []byte) ([]byte, error) {
	d, err := lookupDigest(algorithmID)
	if err != nil {
		return nil, err
	}
	h := d.newHash()
	_, _ = h.Write(data)
	return h.Sum(nil), nil
}

// HashBase64 returns the base64 encoded digest of data
func HashBase64(algorithmID string, data []byte) (string, error) {
	sum, err := Sum(algorithmID, data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sum), nil
}

// Content verifies content against the hash declared for f
func Content(content []byte, f globalconf.File) error {
	declared, err := base64.StdEncoding.DecodeString(strings.TrimSpace(f.Hash))
	if err != nil {
		return fmt.Errorf("%w: content part %s has undecodable hash: %v",
			globalconf.ErrMalformedConfiguration, f.ContentIdentifier, err)
	}

	actual, err := Sum(f.HashAlgorithmID, content)
	if err != nil {
		return fmt.Errorf("%w: content part %s: %v", globalconf.ErrMalformedConfiguration, f.ContentIdentifier, err)
	}

	if !bytes.Equal(declared, actual) {
		return fmt.Errorf("%w: content part %s at %s", globalconf.ErrHashMismatch, f.ContentIdentifier, f.ContentLocation)
	}
	return nil
}
