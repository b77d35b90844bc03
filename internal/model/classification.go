package model

// TrafficClassification is the best-effort application label applied
// to a flow based on DNS/TLS/QUIC signals and the signature catalog.
type TrafficClassification struct {
	Label      string `json:"label,omitempty"`
	Domain     string `json:"domain,omitempty"`
	CDN        string `json:"cdn,omitempty"`
	ASN        string `json:"asn,omitempty"`
	Confidence float64 `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

// AppSignature is one catalog entry: an application label and the
// domain patterns (literal or `*.` wildcard) that identify it.
type AppSignature struct {
	Label   string   `json:"label"`
	Domains []string `json:"domains"`
}

// SignatureFile is the on-disk envelope accepted by AppSignatureStore.Load.
type SignatureFile struct {
	Version    int            `json:"version"`
	UpdatedAt  string         `json:"updatedAt"`
	Signatures []AppSignature `json:"signatures"`
}
