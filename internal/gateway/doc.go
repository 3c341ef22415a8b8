// Package gateway contains the live-reconfiguration core: builders
// that derive immutable policy objects (CORS policy, backend factory,
// access decisions) from the runtime configuration store, and the
// request pipeline that consults an atomic snapshot of each on every
// request.
//
// Builders expose Keys and Rebuild so the config Binder can wire them:
// Rebuild constructs a complete replacement object and publishes it
// with one atomic pointer store. Requests that captured the previous
// object keep using it until they finish; nothing is ever mutated in
// place under a concurrent reader.
package gateway
