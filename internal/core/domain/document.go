package domain

// Page is the extracted text of a single PDF page.
type Page struct {
	// Number is the 1-based page number.
	Number int

	// Text is the extracted page text.
	Text string
}

// SourceDocument is the text extracted from one input, before normalisation.
// It is immutable once produced and never persisted directly.
type SourceDocument struct {
	// SourceID is the URL or file path.
	SourceID string

	// Origin is the kind of input.
	Origin Origin

	// Title is the human-readable title, if one could be found.
	Title string

	// RawText is the full extracted text.
	RawText string

	// Pages holds per-page text for paged inputs. Empty for web pages.
	Pages []Page

	// Metadata contains scalar key-value pairs (source_id, page_count, fetched_at).
	Metadata map[string]any
}

// PageOffset marks where a page starts inside normalised text.
type PageOffset struct {
	// Number is the 1-based page number.
	Number int

	// Start is the rune offset of the first rune of the page.
	Start int
}

// NormalizedDocument is the normalised text of a SourceDocument plus what
// chunk annotation needs to know about it.
type NormalizedDocument struct {
	// SourceID is the URL or file path.
	SourceID string

	// Origin is the kind of input.
	Origin Origin

	// Title is carried from the source document.
	Title string

	// Text is the normalised text.
	Text string

	// Pages maps rune offsets to page numbers, ascending. Empty for unpaged input.
	Pages []PageOffset

	// Metadata is carried from the source document.
	Metadata map[string]any
}

// PageAt returns the page number containing the rune offset, or 0 when the
// document has no page information.
func (d *NormalizedDocument) PageAt(offset int) int {
	page := 0
	for _, p := range d.Pages {
		if p.Start > offset {
			break
		}
		page = p.Number
	}
	return page
}

// Chunk is a bounded span of normalised text from one source, the unit of
// embedding and storage. Chunks are replaced on re-ingestion, never mutated.
type Chunk struct {
	// ID is the chunk fingerprint. Empty until fingerprinted.
	ID string

	// SourceID is the URL or file path the chunk came from.
	SourceID string

	// Origin is the kind of input.
	Origin Origin

	// Index is the ordinal position within the source, starting at 0.
	Index int

	// Text is the chunk text.
	Text string

	// Start is the rune offset of the chunk within the normalised text.
	Start int

	// Metadata contains chunk-specific scalar key-value pairs.
	Metadata map[string]any
}

// StoreRecord is the tuple persisted in the vector store.
type StoreRecord struct {
	// ID is the chunk fingerprint.
	ID string

	// Text is the chunk text.
	Text string

	// Embedding is the vector for the text.
	Embedding []float32

	// Metadata contains scalar key-value pairs.
	Metadata map[string]any
}

// CopyMetadata returns a shallow copy of a metadata map. A nil map yields an
// empty, non-nil map.
func CopyMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
