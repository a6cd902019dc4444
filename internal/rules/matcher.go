package rules

import (
	"strings"

	"github.com/smazurov/udevd/internal/device"
	"github.com/smazurov/udevd/internal/sysfs"
)

// Matches evaluates r's predicates against d, short-circuiting on the
// first failure. An all-empty rule never matches.
func Matches(r Rule, d device.Device) bool {
	if !r.HasPredicate() {
		return false
	}

	if r.Action != "" && !d.Action().EqualFold(r.Action) {
		return false
	}

	if r.Subsystem != "" && !strings.EqualFold(d.Subsystem(), r.Subsystem) {
		return false
	}

	if r.Kernel != "" {
		if d.Kernel() == "" || !strings.EqualFold(d.Kernel(), r.Kernel) {
			return false
		}
	}

	if r.Devpath != "" && !strings.EqualFold(d.Devpath(), r.Devpath) {
		return false
	}

	if r.Driver != "" {
		if d.Driver() == "" || !strings.EqualFold(d.Driver(), r.Driver) {
			return false
		}
	}

	if r.Tag != "" {
		tag, ok := d.Property("TAG")
		if !ok || tag != r.Tag {
			return false
		}
	}

	for _, kv := range r.Env {
		val, ok := d.Property(kv.Key)
		if !ok || val != kv.Value {
			return false
		}
	}

	for _, kv := range r.Attr {
		val, ok := sysfs.ReadAttribute(d.Devpath(), kv.Key)
		if !ok || val != kv.Value {
			return false
		}
	}

	return true
}
