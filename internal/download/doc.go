// Package download implements the conversion pipeline and the download
// gateway. Service validates requests, runs the extractor in a fresh job
// directory under a bounded number of slots and registers the produced
// file under a new token. Gateway resolves tokens back to files.
package download
