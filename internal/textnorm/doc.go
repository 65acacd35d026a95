// Package textnorm canonicalises extracted text before chunking.
//
// Normalisation is pure and idempotent. It repairs PDF glyph artefacts
// (/uniXXXX), drops control and format runes, composes combining marks (NFC)
// and collapses whitespace to single spaces with paragraph breaks. It can
// optionally fold case and strip academic-paper noise (captions, OCR
// footnotes, acknowledgements and references).
//
// Fingerprints are computed from normalised text, so any change to these
// rules changes every chunk identity and causes a full re-embed.
package textnorm
