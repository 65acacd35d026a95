// Package connectors holds the document loaders. Each loader reads one kind
// of input (a URL list, a PDF directory) and streams raw documents to the
// ingest orchestrator through the driven.Loader port.
package connectors
