// Package config owns both configuration surfaces of the gateway: the
// static Config struct loaded once at startup from flags, environment,
// and file, and the mutable runtime Store whose keys can change while
// the server is accepting requests.
//
// The Store is the single source of truth for runtime settings. Every
// Set fires the subscriptions registered for that key synchronously and
// in registration order; the Binder builds on that to keep derived
// objects (CORS policy, backend factory, log sink) rebuilt and swapped
// whenever their keys change.
package config
