// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, metrics and debug introspection for netmap applications:
//   - Config loaded from YAML, validated, with defaults
//   - ConfigStore snapshots with reload listeners
//   - Prometheus metrics fed by the stream data path
//   - Debug probes dumping session and ring state
package control
