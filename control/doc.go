// Package control
// Author: momentics <momentics@gmail.com>
//
// Control-plane registry, metrics, hot reload, and debug introspection
// for the XSK datapath core (spec.md §6's two persistent registry
// controls, and the GET_SOCKOPT statistics surface).
//
// Provides:
//   - A typed registry of the process-wide XSK controls
//     (XskDisableTxBounce, XskRxZeroCopy), loadable from file/env via
//     viper and observable through hot-reload hooks
//   - A prometheus-backed counter/gauge registry for datapath
//     statistics, still exposed as a plain snapshot map for GET_SOCKOPT
//   - Debug probe registration for ad-hoc runtime introspection
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
