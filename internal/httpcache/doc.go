// Package httpcache caches metadata responses between runs.
//
// Repeated runs fetch the same version index and dumpstatus.json documents;
// the cache keeps them in a gocloud.dev/blob bucket ({out}/_http_cache by
// default). Storability and freshness come from
// github.com/pquerna/cachecontrol/cacheobject; stale entries are revalidated
// with ETag and Last-Modified according to the selected Mode. Bulk job file
// transfers never go through the cache.
//
// # Storage Layout
//
//	{bucket}/responses/{sha256(url)}.json
package httpcache
