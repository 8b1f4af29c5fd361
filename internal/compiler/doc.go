// Package compiler turns CUE dampening and trigger definitions into
// validated ir.Dampening and ir.Trigger values.
//
// Definitions are authored as CUE structs keyed by name:
//
//	dampening: cpu_high: {
//		tenant:    "acme"
//		trigger:   "cpu-high"
//		mode:      "FIRING"
//		type:      "RELAXED_TIME"
//		eval_true: 3
//		eval_time: "10s"
//	}
//
//	trigger: cpu_high: {
//		tenant:             "acme"
//		id:                 "cpu-high"
//		source:             "host-1"
//		firing_match:       "ALL"
//		auto_resolve_match: "ANY"
//	}
//
// eval_time accepts integer milliseconds or a Go duration string. The CUE SDK
// is used through its Go API, never as a subprocess.
package compiler
