// Package file provides the TOML configuration file adapter.
//
// Tables in the file map to dotted keys: an [embedding] table with a
// provider entry is read as "embedding.provider".
package file
