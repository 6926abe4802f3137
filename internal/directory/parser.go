// Package directory parses signed configuration directories.
//
// A directory is a MIME entity of type multipart/mixed with two parts: the signed data
// and its signature. The signed data is itself multipart/mixed, starting with a header
// part (Expire-date, Version) followed by one part per content file. Each content part
// carries the base64 hash of the file as its body.
package directory

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/stacklok/globalconf-client/internal/globalconf"
	"github.com/stacklok/globalconf-client/internal/verify"
)

// Header names used in configuration directories
const (
	HeaderContentType          = "Content-Type"
	HeaderExpireDate           = "Expire-Date"
	HeaderVersion              = "Version"
	HeaderContentIdentifier    = "Content-Identifier"
	HeaderContentLocation      = "Content-Location"
	HeaderContentFileName      = "Content-File-Name"
	HeaderHashAlgorithmID      = "Hash-Algorithm-Id"
	HeaderSignatureAlgorithmID = "Signature-Algorithm-Id"
	HeaderVerificationCertHash = "Verification-Certificate-Hash"
)

// DefaultVersion is assumed when the directory does not declare a version
const DefaultVersion = 2

// Parser parses and verifies configuration directories
type Parser struct {
	verifier *verify.SignatureVerifier
	clock    clock.Clock
}

// NewParser creates a parser verifying signatures with verifier and expiry against clk
func NewParser(verifier *verify.SignatureVerifier, clk clock.Clock) *Parser {
	if clk == nil {
		clk = clock.New()
	}
	return &Parser{verifier: verifier, clock: clk}
}

// Parse parses a directory downloaded from loc. When contentIDs is not empty only
// content parts with one of those identifiers are returned.
func (p *Parser) Parse(loc globalconf.Location, data []byte, contentIDs ...string) (*globalconf.Configuration, error) {
	signedData, signedDataType, sig, err := readEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("%w: configuration instance %s: %v",
			globalconf.ErrMalformedConfiguration, loc.InstanceIdentifier, err)
	}

	if err := p.verifier.Verify(loc, sig, signedData); err != nil {
		return nil, err
	}

	conf, err := p.parseSignedData(loc, signedData, signedDataType, contentIDs)
	if err != nil {
		return nil, err
	}
	return conf, nil
}

func readEnvelope(data []byte) ([]byte, string, verify.Signature, error) {
	var sig verify.Signature

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(data)))
	header, err := tp.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, "", sig, fmt.Errorf("failed to read directory header: %w", err)
	}

	mr, err := multipartReader(header.Get(HeaderContentType), tp.R)
	if err != nil {
		return nil, "", sig, err
	}

	signedPart, err := mr.NextRawPart()
	if err != nil {
		return nil, "", sig, fmt.Errorf("missing signed data: %w", err)
	}
	signedDataType := signedPart.Header.Get(HeaderContentType)
	signedData, err := io.ReadAll(signedPart)
	if err != nil {
		return nil, "", sig, fmt.Errorf("failed to read signed data: %w", err)
	}

	sigPart, err := mr.NextRawPart()
	if err != nil {
		return nil, "", sig, fmt.Errorf("missing signature: %w", err)
	}
	rawSig, err := io.ReadAll(sigPart)
	if err != nil {
		return nil, "", sig, fmt.Errorf("failed to read signature: %w", err)
	}

	sig.Value, err = base64.StdEncoding.DecodeString(strings.Join(strings.Fields(string(rawSig)), ""))
	if err != nil {
		return nil, "", sig, fmt.Errorf("undecodable signature: %w", err)
	}
	sig.AlgorithmID = strings.TrimSpace(sigPart.Header.Get(HeaderSignatureAlgorithmID))

	certHash, params, err := splitParams(sigPart.Header.Get(HeaderVerificationCertHash))
	if err != nil {
		return nil, "", sig, fmt.Errorf("invalid %s header: %w", HeaderVerificationCertHash, err)
	}
	sig.CertHash = certHash
	sig.CertHashAlgorithmID = params["hash-algorithm-id"]

	return signedData, signedDataType, sig, nil
}

func (p *Parser) parseSignedData(
	loc globalconf.Location, signedData []byte, contentType string, contentIDs []string,
) (*globalconf.Configuration, error) {
	malformed := func(format string, args ...any) error {
		return fmt.Errorf("%w: configuration instance %s: %s",
			globalconf.ErrMalformedConfiguration, loc.InstanceIdentifier, fmt.Sprintf(format, args...))
	}

	mr, err := multipartReader(contentType, bytes.NewReader(signedData))
	if err != nil {
		return nil, malformed("%v", err)
	}

	headerPart, err := mr.NextRawPart()
	if err != nil {
		return nil, malformed("missing header part: %v", err)
	}

	expire := strings.TrimSpace(headerPart.Header.Get(HeaderExpireDate))
	if expire == "" {
		return nil, malformed("missing header %s", HeaderExpireDate)
	}
	expiration, err := time.Parse(time.RFC3339, expire)
	if err != nil {
		return nil, malformed("invalid %s %q", HeaderExpireDate, expire)
	}
	if p.clock.Now().After(expiration) {
		return nil, fmt.Errorf("%w: configuration instance %s expired on %s",
			globalconf.ErrExpiredConfiguration, loc.InstanceIdentifier, expiration.Format(time.RFC3339))
	}

	version := DefaultVersion
	if v := strings.TrimSpace(headerPart.Header.Get(HeaderVersion)); v != "" {
		version, err = strconv.Atoi(v)
		if err != nil {
			return nil, malformed("invalid %s %q", HeaderVersion, v)
		}
	}

	conf := &globalconf.Configuration{
		Location:       loc,
		Version:        version,
		ExpirationDate: expiration,
	}

	for {
		part, err := mr.NextRawPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed("failed to read content part: %v", err)
		}

		file, err := readContentPart(part, expiration, version)
		if err != nil {
			return nil, malformed("%v", err)
		}

		if !wanted(file.ContentIdentifier, contentIDs) {
			slog.Debug("Ignoring content part", "content_identifier", file.ContentIdentifier)
			continue
		}
		conf.Files = append(conf.Files, file)
	}

	return conf, nil
}

func readContentPart(part *multipart.Part, expiration time.Time, version int) (globalconf.File, error) {
	var file globalconf.File

	contentID, params, err := splitParams(part.Header.Get(HeaderContentIdentifier))
	if err != nil || contentID == "" {
		return file, fmt.Errorf("invalid %s header %q", HeaderContentIdentifier, part.Header.Get(HeaderContentIdentifier))
	}

	body, err := io.ReadAll(part)
	if err != nil {
		return file, fmt.Errorf("failed to read content part %s: %w", contentID, err)
	}

	file = globalconf.File{
		ContentIdentifier:  contentID,
		InstanceIdentifier: params["instance"],
		ContentLocation:    strings.TrimSpace(part.Header.Get(HeaderContentLocation)),
		FileName:           strings.TrimSpace(part.Header.Get(HeaderContentFileName)),
		HashAlgorithmID:    strings.TrimSpace(part.Header.Get(HeaderHashAlgorithmID)),
		Hash:               strings.Join(strings.Fields(string(body)), ""),
		ExpirationDate:     expiration,
		Version:            version,
	}

	if file.ContentLocation == "" {
		return file, fmt.Errorf("content part %s has no %s", contentID, HeaderContentLocation)
	}
	if file.HashAlgorithmID == "" || file.Hash == "" {
		return file, fmt.Errorf("content part %s has no hash", contentID)
	}
	return file, nil
}

func wanted(contentID string, contentIDs []string) bool {
	if len(contentIDs) == 0 {
		return true
	}
	for _, id := range contentIDs {
		if globalconf.IsContentID(contentID, id) {
			return true
		}
	}
	return false
}

func multipartReader(contentType string, r io.Reader) (*multipart.Reader, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("invalid content type %q: %w", contentType, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("expected multipart content, got %q", mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("content type %q has no boundary", contentType)
	}
	return multipart.NewReader(r, boundary), nil
}

// splitParams splits `value; key="val"` headers, keeping the case of value.
// Parameter names are lower-cased.
func splitParams(header string) (string, map[string]string, error) {
	fields := strings.Split(header, ";")
	params := make(map[string]string, len(fields)-1)
	for _, field := range fields[1:] {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			return "", nil, fmt.Errorf("invalid parameter %q", field)
		}
		val = strings.TrimSpace(val)
		if unquoted, err := strconv.Unquote(val); err == nil {
			val = unquoted
		}
		params[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return strings.TrimSpace(fields[0]), params, nil
}
