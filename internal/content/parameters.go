package content

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/stacklok/globalconf-client/internal/anchor"
	"github.com/stacklok/globalconf-client/internal/globalconf"
)

// PrivateParameters are the internal parameters of an instance
type PrivateParameters struct {
	InstanceIdentifier string

	// ConfigurationSources are the federation partner sources
	ConfigurationSources []globalconf.Source

	ManagementService           string
	TimeStampingIntervalSeconds int
}

// SharedParameters are the parameters an instance distributes to its members and partners
type SharedParameters struct {
	InstanceIdentifier   string
	ApprovedCAs          []string
	Members              []Member
	SecurityServers      []SecurityServer
	OCSPFreshnessSeconds int

	// Sources are the configuration sources the instance publishes, with their signing certificates
	Sources []ConfigurationSource
}

// ConfigurationSource is a configuration source listed in shared parameters
type ConfigurationSource struct {
	Address string

	// VerificationCerts holds the DER encoded internal and external verification certificates
	VerificationCerts [][]byte
}

// Member is a member organization listed in shared parameters
type Member struct {
	MemberClass string
	MemberCode  string
	Name        string
	Subsystems  []string
}

// SecurityServer is a security server listed in shared parameters
type SecurityServer struct {
	Owner      string
	ServerCode string
	Address    string
}

// privateParametersDocument is the private parameters layout shared by all schema versions
type privateParametersDocument struct {
	XMLName                     xml.Name          `xml:"privateParameters"`
	InstanceIdentifier          string            `xml:"instanceIdentifier"`
	ConfigurationAnchors        []anchor.Document `xml:"configurationAnchor"`
	ManagementService           string            `xml:"managementService>authCertRegServiceAddress"`
	TimeStampingIntervalSeconds int               `xml:"timeStampingIntervalSeconds"`
}

func parsePrivateParameters(data []byte) (*PrivateParameters, error) {
	var doc privateParametersDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	params := &PrivateParameters{
		InstanceIdentifier:          strings.TrimSpace(doc.InstanceIdentifier),
		ManagementService:           strings.TrimSpace(doc.ManagementService),
		TimeStampingIntervalSeconds: doc.TimeStampingIntervalSeconds,
	}
	for i, a := range doc.ConfigurationAnchors {
		src, err := a.Source()
		if err != nil {
			return nil, fmt.Errorf("configuration anchor %d: %w", i, err)
		}
		params.ConfigurationSources = append(params.ConfigurationSources, src)
	}
	return params, nil
}

type approvedCADocument struct {
	Name string `xml:"name"`
}

type memberDocumentV2 struct {
	MemberClass string `xml:"memberClass>code"`
	MemberCode  string `xml:"memberCode"`
	Name        string `xml:"name"`
	Subsystems  []struct {
		SubsystemCode string `xml:"subsystemCode"`
	} `xml:"subsystem"`
}

type sharedParametersDocumentV2 struct {
	XMLName              xml.Name             `xml:"sharedParameters"`
	InstanceIdentifier   string               `xml:"instanceIdentifier"`
	ApprovedCAs          []approvedCADocument `xml:"approvedCA"`
	Members              []memberDocumentV2   `xml:"member"`
	OCSPFreshnessSeconds int                  `xml:"globalSettings>ocspFreshnessSeconds"`
}

type securityServerDocument struct {
	Owner      string `xml:"owner"`
	ServerCode string `xml:"serverCode"`
	Address    string `xml:"address"`
}

type sourceDocument struct {
	Address                   string   `xml:"address"`
	InternalVerificationCerts []string `xml:"internalVerificationCert"`
	ExternalVerificationCerts []string `xml:"externalVerificationCert"`
}

type sharedParametersDocumentV3 struct {
	XMLName              xml.Name                 `xml:"sharedParameters"`
	InstanceIdentifier   string                   `xml:"instanceIdentifier"`
	Sources              []sourceDocument         `xml:"source"`
	ApprovedCAs          []approvedCADocument     `xml:"approvedCA"`
	Members              []memberDocumentV2       `xml:"member"`
	SecurityServers      []securityServerDocument `xml:"securityServer"`
	OCSPFreshnessSeconds int                      `xml:"globalSettings>ocspFreshnessSeconds"`
}

// V4 lists subsystems as attributes of the member element
type memberDocumentV4 struct {
	MemberClass string `xml:"memberClass,attr"`
	MemberCode  string `xml:"memberCode,attr"`
	Name        string `xml:"name"`
	Subsystems  []struct {
		Code string `xml:"code,attr"`
	} `xml:"subsystem"`
}

type sharedParametersDocumentV4 struct {
	XMLName              xml.Name                 `xml:"sharedParameters"`
	InstanceIdentifier   string                   `xml:"instanceIdentifier"`
	Sources              []sourceDocument         `xml:"source"`
	ApprovedCAs          []approvedCADocument     `xml:"approvedCA"`
	Members              []memberDocumentV4       `xml:"member"`
	SecurityServers      []securityServerDocument `xml:"securityServer"`
	OCSPFreshnessSeconds int                      `xml:"globalSettings>ocspFreshnessSeconds"`
}

func (d sharedParametersDocumentV2) normalize() *SharedParameters {
	return &SharedParameters{
		InstanceIdentifier:   strings.TrimSpace(d.InstanceIdentifier),
		OCSPFreshnessSeconds: d.OCSPFreshnessSeconds,
		ApprovedCAs:          approvedCAs(d.ApprovedCAs),
		Members:              membersV2(d.Members),
	}
}

func parseSharedParametersV2(data []byte) (*SharedParameters, error) {
	var doc sharedParametersDocumentV2
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.normalize(), nil
}

func parseSharedParametersV3(data []byte) (*SharedParameters, error) {
	var doc sharedParametersDocumentV3
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	sources, err := configurationSources(doc.Sources)
	if err != nil {
		return nil, err
	}
	return &SharedParameters{
		InstanceIdentifier:   strings.TrimSpace(doc.InstanceIdentifier),
		OCSPFreshnessSeconds: doc.OCSPFreshnessSeconds,
		ApprovedCAs:          approvedCAs(doc.ApprovedCAs),
		Members:              membersV2(doc.Members),
		SecurityServers:      securityServers(doc.SecurityServers),
		Sources:              sources,
	}, nil
}

func parseSharedParametersV4(data []byte) (*SharedParameters, error) {
	var doc sharedParametersDocumentV4
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	sources, err := configurationSources(doc.Sources)
	if err != nil {
		return nil, err
	}

	params := &SharedParameters{
		InstanceIdentifier:   strings.TrimSpace(doc.InstanceIdentifier),
		OCSPFreshnessSeconds: doc.OCSPFreshnessSeconds,
		ApprovedCAs:          approvedCAs(doc.ApprovedCAs),
		SecurityServers:      securityServers(doc.SecurityServers),
		Sources:              sources,
	}
	for _, m := range doc.Members {
		member := Member{MemberClass: m.MemberClass, MemberCode: m.MemberCode, Name: m.Name}
		for _, s := range m.Subsystems {
			member.Subsystems = append(member.Subsystems, s.Code)
		}
		params.Members = append(params.Members, member)
	}
	return params, nil
}

func securityServers(docs []securityServerDocument) []SecurityServer {
	var out []SecurityServer
	for _, s := range docs {
		out = append(out, SecurityServer{Owner: s.Owner, ServerCode: s.ServerCode, Address: s.Address})
	}
	return out
}

func approvedCAs(docs []approvedCADocument) []string {
	var out []string
	for _, ca := range docs {
		out = append(out, strings.TrimSpace(ca.Name))
	}
	return out
}

func membersV2(docs []memberDocumentV2) []Member {
	var out []Member
	for _, m := range docs {
		member := Member{MemberClass: m.MemberClass, MemberCode: m.MemberCode, Name: m.Name}
		for _, s := range m.Subsystems {
			member.Subsystems = append(member.Subsystems, s.SubsystemCode)
		}
		out = append(out, member)
	}
	return out
}

func configurationSources(docs []sourceDocument) ([]ConfigurationSource, error) {
	var out []ConfigurationSource
	for i, d := range docs {
		src := ConfigurationSource{Address: strings.TrimSpace(d.Address)}
		encoded := append(append([]string{}, d.InternalVerificationCerts...), d.ExternalVerificationCerts...)
		for _, c := range encoded {
			der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(c), ""))
			if err != nil {
				return nil, fmt.Errorf("source %d: invalid verification certificate: %w", i, err)
			}
			src.VerificationCerts = append(src.VerificationCerts, der)
		}
		out = append(out, src)
	}
	return out, nil
}
