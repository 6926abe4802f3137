// Package testutil builds signed configuration directories and serves them over HTTP for tests.
package testutil

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/globalconf-client/internal/globalconf"
	"github.com/stacklok/globalconf-client/internal/verify"
)

// Signer signs configuration directories with a self-signed RSA certificate
type Signer struct {
	Key     *rsa.PrivateKey
	CertDER []byte
}

// NewSigner creates a signer with a fresh key and certificate
func NewSigner(t testing.TB) *Signer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "configuration signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return &Signer{Key: key, CertDER: der}
}

// Location returns a location trusting the signer certificate
func (s *Signer) Location(instance, downloadURL string) globalconf.Location {
	return globalconf.Location{
		InstanceIdentifier: instance,
		DownloadURL:        downloadURL,
		VerificationCerts:  [][]byte{s.CertDER},
	}
}

// Source returns a source with one location per URL, all trusting the signer certificate
func (s *Signer) Source(instance string, urls ...string) globalconf.Source {
	src := globalconf.Source{InstanceIdentifier: instance}
	for _, u := range urls {
		src.Locations = append(src.Locations, s.Location(instance, u))
	}
	return src
}

// Content is one content part of a test directory
type Content struct {
	ContentID string
	Instance  string
	Location  string
	FileName  string
	Data      []byte

	// Hash overrides the hash computed from Data
	Hash string
}

// Directory describes a test configuration directory
type Directory struct {
	Expires  time.Time
	Version  int
	Contents []Content
}

// Build returns the signed directory bytes
func (s *Signer) Build(t testing.TB, d Directory) []byte {
	t.Helper()

	signedData, signedType := buildSignedData(t, d)

	digest := sha512.Sum512(signedData)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.Key, crypto.SHA512, digest[:])
	require.NoError(t, err)

	certHash, err := verify.HashBase64(verify.DigestSHA512, s.CertDER)
	require.NoError(t, err)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {signedType}})
	require.NoError(t, err)
	_, err = part.Write(signedData)
	require.NoError(t, err)

	part, err = w.CreatePart(textproto.MIMEHeader{
		"Content-Type":                  {"application/octet-stream"},
		"Signature-Algorithm-Id":        {verify.SignatureRSASHA512},
		"Verification-Certificate-Hash": {fmt.Sprintf("%s; hash-algorithm-id=%q", certHash, verify.DigestSHA512)},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte(base64.StdEncoding.EncodeToString(sig)))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var out bytes.Buffer
	out.WriteString("Content-Type: multipart/mixed; boundary=" + w.Boundary() + "\r\n\r\n")
	out.Write(body.Bytes())
	return out.Bytes()
}

func buildSignedData(t testing.TB, d Directory) ([]byte, string) {
	t.Helper()

	expires := d.Expires
	if expires.IsZero() {
		expires = time.Now().Add(time.Hour)
	}
	version := d.Version
	if version == 0 {
		version = 2
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	_, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain"},
		"Expire-Date":  {expires.UTC().Format(time.RFC3339)},
		"Version":      {strconv.Itoa(version)},
	})
	require.NoError(t, err)

	for _, c := range d.Contents {
		hash := c.Hash
		if hash == "" {
			hash, err = verify.HashBase64(verify.DigestSHA512, c.Data)
			require.NoError(t, err)
		}

		contentID := c.ContentID
		if c.Instance != "" {
			contentID = fmt.Sprintf("%s; instance=%q", c.ContentID, c.Instance)
		}
		header := textproto.MIMEHeader{
			"Content-Type":       {"application/octet-stream"},
			"Content-Identifier": {contentID},
			"Content-Location":   {c.Location},
			"Hash-Algorithm-Id":  {verify.DigestSHA512},
		}
		if c.FileName != "" {
			header.Set("Content-File-Name", c.FileName)
		}

		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte(hash))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes(), "multipart/mixed; boundary=" + w.Boundary()
}
