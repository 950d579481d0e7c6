// Package http provides the HTTP GET client used for metadata and job files.
//
// This package handles:
//   - Connection pooling
//   - Status code classification into sentinel errors (ErrNotFound, ...)
//   - Conditional requests (304 Not Modified is not an error)
//   - Optional retry with exponential backoff, off by default
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	body, err := client.Get(ctx, url)
//	defer body.Close()
//
//	// With request headers, e.g. for cache revalidation
//	resp, err := client.Fetch(ctx, url, header)
//
// Two clients are built per run: one with a timeout for metadata (wrapped by
// package httpcache) and one without for bulk file transfers.
package http
