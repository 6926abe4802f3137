package verify

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

// Signature algorithm identifiers
const (
	SignatureRSASHA1      = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	SignatureRSASHA256    = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	SignatureRSASHA384    = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha384"
	SignatureRSASHA512    = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha512"
	SignatureRSAPSSSHA256 = "http://www.w3.org/2007/05/xmldsig-more#sha256-rsa-MGF1"
	SignatureRSAPSSSHA384 = "http://www.w3.org/2007/05/xmldsig-more#sha384-rsa-MGF1"
	SignatureRSAPSSSHA512 = "http://www.w3.org/2007/05/xmldsig-more#sha512-rsa-MGF1"
	SignatureECDSASHA256  = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256"
	SignatureECDSASHA384  = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha384"
	SignatureECDSASHA512  = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha512"
)

const (
	defaultCertCacheSize  = 128
	signatureSchemeRSA    = "rsa"
	signatureSchemeRSAPSS = "rsa-pss"
	signatureSchemeECDSA  = "ecdsa"
)

type signatureAlgorithm struct {
	scheme string
	hash   crypto.Hash
}

var signatureAlgorithms = map[string]signatureAlgorithm{
	SignatureRSASHA1:      {scheme: signatureSchemeRSA, hash: crypto.SHA1},
	SignatureRSASHA256:    {scheme: signatureSchemeRSA, hash: crypto.SHA256},
	SignatureRSASHA384:    {scheme: signatureSchemeRSA, hash: crypto.SHA384},
	SignatureRSASHA512:    {scheme: signatureSchemeRSA, hash: crypto.SHA512},
	SignatureRSAPSSSHA256: {scheme: signatureSchemeRSAPSS, hash: crypto.SHA256},
	SignatureRSAPSSSHA384: {scheme: signatureSchemeRSAPSS, hash: crypto.SHA384},
	SignatureRSAPSSSHA512: {scheme: signatureSchemeRSAPSS, hash: crypto.SHA512},
	SignatureECDSASHA256:  {scheme: signatureSchemeECDSA, hash: crypto.SHA256},
	SignatureECDSASHA384:  {scheme: signatureSchemeECDSA, hash: crypto.SHA384},
	SignatureECDSASHA512:  {scheme: signatureSchemeECDSA, hash: crypto.SHA512},
}

// Signature describes the signature part of a configuration directory
type Signature struct {
	AlgorithmID         string
	CertHash            string
	CertHashAlgorithmID string
	Value               []byte
}

// SignatureVerifier verifies directory signatures with the verification certificates
// of the location the directory was downloaded from.
type SignatureVerifier struct {
	certs *lru.Cache[string, *x509.Certificate]
}

// NewSignatureVerifier creates a verifier caching up to size resolved certificates.
// A size of 0 uses the default.
func NewSignatureVerifier(size int) (*SignatureVerifier, error) {
	if size <= 0 {
		size = defaultCertCacheSize
	}
	cache, err := lru.New[string, *x509.Certificate](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate cache: %w", err)
	}
	return &SignatureVerifier{certs: cache}, nil
}

// Verify checks that sig is a valid signature of signedData by one of the location's certificates
func (v *SignatureVerifier) Verify(loc globalconf.Location, sig Signature, signedData []byte) error {
	alg, ok := signatureAlgorithms[strings.TrimSpace(sig.AlgorithmID)]
	if !ok {
		return fmt.Errorf("%w: unsupported signature algorithm id %q", globalconf.ErrInvalidSignature, sig.AlgorithmID)
	}

	cert, err := v.verificationCert(loc, sig)
	if err != nil {
		return err
	}

	if !alg.hash.Available() {
		return fmt.Errorf("%w: hash function %v unavailable", globalconf.ErrInvalidSignature, alg.hash)
	}
	h := alg.hash.New()
	_, _ = h.Write(signedData)
	digest := h.Sum(nil)

	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		switch alg.scheme {
		case signatureSchemeRSA:
			err = rsa.VerifyPKCS1v15(pub, alg.hash, digest, sig.Value)
		case signatureSchemeRSAPSS:
			err = rsa.VerifyPSS(pub, alg.hash, digest, sig.Value, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto})
		default:
			err = fmt.Errorf("algorithm %s does not match RSA key", sig.AlgorithmID)
		}
	case *ecdsa.PublicKey:
		if alg.scheme != signatureSchemeECDSA {
			err = fmt.Errorf("algorithm %s does not match ECDSA key", sig.AlgorithmID)
		} else if !ecdsa.VerifyASN1(pub, digest, sig.Value) {
			err = fmt.Errorf("ecdsa verification failed")
		}
	default:
		err = fmt.Errorf("unsupported public key type %T", cert.PublicKey)
	}

	if err != nil {
		slog.Error("Failed to verify configuration signature",
			"instance", loc.InstanceIdentifier,
			"certificate", cert.Subject.String(),
			"error", err)
		return fmt.Errorf("%w: configuration instance %s: %v", globalconf.ErrInvalidSignature, loc.InstanceIdentifier, err)
	}

	slog.Debug("Verified configuration signature",
		"instance", loc.InstanceIdentifier,
		"certificate", cert.Subject.String())
	return nil
}

func (v *SignatureVerifier) verificationCert(loc globalconf.Location, sig Signature) (*x509.Certificate, error) {
	key := loc.InstanceIdentifier + "|" + sig.CertHashAlgorithmID + "|" + sig.CertHash
	if cert, ok := v.certs.Get(key); ok {
		if locationHasCert(loc, cert.Raw) {
			return cert, nil
		}
	}

	want, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sig.CertHash))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable verification certificate hash: %v", globalconf.ErrCertNotFound, err)
	}

	for _, der := range loc.VerificationCerts {
		sum, err := Sum(sig.CertHashAlgorithmID, der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", globalconf.ErrCertNotFound, err)
		}
		if !bytes.Equal(sum, want) {
			continue
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("failed to parse verification certificate: %w", err)
		}
		v.certs.Add(key, cert)
		return cert, nil
	}

	return nil, fmt.Errorf("%w: cannot verify signature of configuration instance %s, no certificate for hash %s",
		globalconf.ErrCertNotFound, loc.InstanceIdentifier, sig.CertHash)
}

func locationHasCert(loc globalconf.Location, der []byte) bool {
	for _, c := range loc.VerificationCerts {
		if bytes.Equal(c, der) {
			return true
		}
	}
	return false
}
