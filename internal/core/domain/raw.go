package domain

// Origin identifies the kind of input a document came from.
type Origin string

// Supported origins.
const (
	// OriginURL is a web page referenced by URL.
	OriginURL Origin = "url"

	// OriginPDF is a local PDF file.
	OriginPDF Origin = "pdf"
)

// IsValid returns true if the origin is recognised.
func (o Origin) IsValid() bool {
	return o == OriginURL || o == OriginPDF
}

// String returns the string representation.
func (o Origin) String() string {
	return string(o)
}

// RawDocument represents opaque bytes produced by a loader.
// It is the loader's output before text extraction.
type RawDocument struct {
	// SourceID is the URL or file path the bytes came from.
	SourceID string

	// Origin is the kind of input.
	Origin Origin

	// URI is the resolved location (final URL after redirects, absolute path).
	URI string

	// MIMEType is the content type (e.g., "application/pdf").
	MIMEType string

	// Content is the raw bytes.
	Content []byte

	// Metadata contains loader-specific key-value pairs.
	Metadata map[string]any
}

// Path returns the local file path recorded by the loader, if any.
func (r *RawDocument) Path() string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	p, _ := r.Metadata["path"].(string)
	return p
}
