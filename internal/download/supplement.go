package download

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

// supplementVerificationCerts returns loc with the verification certificates that the stored
// shared parameters of the instance list for sources whose address appears in the download URL.
// Certificates loc already carries are not repeated. Unreadable shared parameters are logged
// and loc is returned unchanged.
func (d *ConfigurationDownloader) supplementVerificationCerts(src globalconf.Source, loc globalconf.Location) globalconf.Location {
	path := filepath.Join(globalconf.InstanceDir(d.root, src.InstanceIdentifier), globalconf.SharedParametersFileName)
	shared, err := d.dispatcher.ReadSharedParameters(path)
	if err != nil {
		slog.Warn("Failed to read stored shared parameters, not adding verification certificates",
			"instance", src.InstanceIdentifier,
			"path", path,
			"error", err)
		return loc
	}
	if shared == nil {
		return loc
	}

	certs := loc.VerificationCerts
	added := 0
	for _, s := range shared.Sources {
		if s.Address == "" || !strings.Contains(loc.DownloadURL, s.Address) {
			continue
		}
		for _, cert := range s.VerificationCerts {
			if containsCert(certs, cert) {
				continue
			}
			if added == 0 {
				certs = append([][]byte(nil), loc.VerificationCerts...)
			}
			certs = append(certs, cert)
			added++
		}
	}
	if added == 0 {
		return loc
	}

	slog.Info("Adding verification certificates from stored shared parameters",
		"instance", src.InstanceIdentifier,
		"location", loc.DownloadURL,
		"count", added)
	loc.VerificationCerts = certs
	return loc
}

func containsCert(certs [][]byte, cert []byte) bool {
	for _, c := range certs {
		if bytes.Equal(c, cert) {
			return true
		}
	}
	return false
}
