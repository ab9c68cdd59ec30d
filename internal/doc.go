// Package internal contains the implementation packages of the atlas map
// server.
//
// # Package Organization
//
//   - basemap: basemap catalog loading and validation
//   - boundary: boundary file discovery, metadata and GeoPackage reading
//   - config: server configuration files, defaults and the init wizard
//   - errors: typed errors, problem collection and CLI suggestions
//   - logging: structured logging with request correlation
//   - mapview: map assembly and the Leaflet page fragment
//   - metrics: Prometheus collectors and HTTP instrumentation
//   - server: HTTP routes, middleware and the live reload hub
//   - templates: page template and stylesheet management
//   - validation: checks for values written into the page
//   - version: build information
//   - watcher: debounced file system monitoring
//
// # Inter-Package Communication
//
//   - Watcher reports boundary file changes to the server
//   - Server reloads the boundary manager and broadcasts a full reload
//   - Mapview reads the current boundary set and the basemap catalog for
//     every page request
//
// # Testing Strategy
//
//   - Unit tests with testify next to every package
//   - Property tests behind the property build tag
//   - goleak checks in packages that start goroutines
package internal
