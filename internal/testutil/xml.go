package testutil

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Partner describes a federation partner listed in private parameters
type Partner struct {
	Instance    string
	DownloadURL string
	CertDER     []byte
}

// PrivateParams returns private parameters XML listing the given partners
func PrivateParams(instance string, partners ...Partner) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("<privateParameters>")
	fmt.Fprintf(&b, "<instanceIdentifier>%s</instanceIdentifier>", instance)
	for _, p := range partners {
		b.WriteString("<configurationAnchor>")
		fmt.Fprintf(&b, "<instanceIdentifier>%s</instanceIdentifier>", p.Instance)
		fmt.Fprintf(&b, "<source><downloadURL>%s</downloadURL>", p.DownloadURL)
		if len(p.CertDER) > 0 {
			fmt.Fprintf(&b, "<verificationCert>%s</verificationCert>", base64.StdEncoding.EncodeToString(p.CertDER))
		}
		b.WriteString("</source></configurationAnchor>")
	}
	b.WriteString("<managementService><authCertRegServiceAddress>http://cs.example/managementservice</authCertRegServiceAddress></managementService>")
	b.WriteString("<timeStampingIntervalSeconds>60</timeStampingIntervalSeconds>")
	b.WriteString("</privateParameters>")
	return []byte(b.String())
}

// SharedParams returns V2 shared parameters XML for instance
func SharedParams(instance string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>`+
		`<sharedParameters><instanceIdentifier>%s</instanceIdentifier>`+
		`<approvedCA><name>Test CA</name></approvedCA>`+
		`<member><memberClass><code>GOV</code></memberClass><memberCode>1234</memberCode><name>Agency</name>`+
		`<subsystem><subsystemCode>SUB</subsystemCode></subsystem></member>`+
		`<globalSettings><ocspFreshnessSeconds>600</ocspFreshnessSeconds></globalSettings>`+
		`</sharedParameters>`, instance))
}

// SharedSource is a configuration source listed in shared parameters
type SharedSource struct {
	Address      string
	InternalCert []byte
	ExternalCert []byte
}

// SharedParamsV3 returns V3 shared parameters XML for instance listing the given sources
func SharedParamsV3(instance string, sources ...SharedSource) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintf(&b, "<sharedParameters><instanceIdentifier>%s</instanceIdentifier>", instance)
	for _, s := range sources {
		fmt.Fprintf(&b, "<source><address>%s</address>", s.Address)
		if len(s.InternalCert) > 0 {
			fmt.Fprintf(&b, "<internalVerificationCert>%s</internalVerificationCert>",
				base64.StdEncoding.EncodeToString(s.InternalCert))
		}
		if len(s.ExternalCert) > 0 {
			fmt.Fprintf(&b, "<externalVerificationCert>%s</externalVerificationCert>",
				base64.StdEncoding.EncodeToString(s.ExternalCert))
		}
		b.WriteString("</source>")
	}
	b.WriteString(`<approvedCA><name>Test CA</name></approvedCA>`)
	b.WriteString(`<member><memberClass><code>GOV</code></memberClass><memberCode>1234</memberCode><name>Agency</name>`)
	b.WriteString(`<subsystem><subsystemCode>SUB</subsystemCode></subsystem></member>`)
	b.WriteString(`<securityServer><owner>GOV:1234</owner><serverCode>ss1</serverCode><address>ss1.example</address></securityServer>`)
	b.WriteString(`<globalSettings><ocspFreshnessSeconds>600</ocspFreshnessSeconds></globalSettings>`)
	b.WriteString("</sharedParameters>")
	return []byte(b.String())
}

// Anchor returns anchor XML for instance with one source per URL, trusting certDER
func Anchor(instance string, certDER []byte, urls ...string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("<configurationAnchor><generatedAt>2024-05-01T10:00:00Z</generatedAt>")
	fmt.Fprintf(&b, "<instanceIdentifier>%s</instanceIdentifier>", instance)
	for _, u := range urls {
		fmt.Fprintf(&b, "<source><downloadURL>%s</downloadURL><verificationCert>%s</verificationCert></source>",
			u, base64.StdEncoding.EncodeToString(certDER))
	}
	b.WriteString("</configurationAnchor>")
	return []byte(b.String())
}
