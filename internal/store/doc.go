// Package store defines the storage contract the gateway fronts: named
// document databases created, opened, listed, and deleted through a
// driver selected at runtime. The interfaces abstract the underlying
// engine (embedded file store, volatile memory store, or a remote store
// addressed by a URI-like key prefix) so the request path and the
// reconfiguration coordinator remain independent of any one backend.
package store
