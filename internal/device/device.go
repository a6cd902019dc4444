// Package device normalises decoded kernel uevent properties into a
// typed device record used by the rule matcher and action executor.
package device

import (
	"strconv"
	"strings"
	"time"
)

// Action is the kernel-reported lifecycle action for a device.
type Action struct {
	value   string
	unknown string
}

var (
	ActionAdd     = Action{value: "add"}
	ActionRemove  = Action{value: "remove"}
	ActionChange  = Action{value: "change"}
	ActionBind    = Action{value: "bind"}
	ActionUnbind  = Action{value: "unbind"}
	ActionMove    = Action{value: "move"}
	ActionOnline  = Action{value: "online"}
	ActionOffline = Action{value: "offline"}
)

// ParseAction parses a raw ACTION property case-insensitively. Strings
// that don't match a known action survive as an Unknown action rather
// than failing, so forward-compatible kernels don't break ingestion.
func ParseAction(s string) Action {
	switch strings.ToLower(s) {
	case "add":
		return ActionAdd
	case "remove":
		return ActionRemove
	case "change":
		return ActionChange
	case "bind":
		return ActionBind
	case "unbind":
		return ActionUnbind
	case "move":
		return ActionMove
	case "online":
		return ActionOnline
	case "offline":
		return ActionOffline
	default:
		return Action{value: "unknown", unknown: s}
	}
}

// String returns the canonical lowercase action name, or the original
// unrecognised string for an Unknown action.
func (a Action) String() string {
	if a.value == "unknown" && a.unknown != "" {
		return a.unknown
	}
	return a.value
}

// IsUnknown reports whether this action fell outside the supported set.
func (a Action) IsUnknown() bool {
	return a.value == "unknown"
}

// EqualFold reports whether the action's canonical name matches s,
// case-insensitively.
func (a Action) EqualFold(s string) bool {
	return strings.EqualFold(a.String(), s)
}

// Device is one normalised hot-plug event. It is immutable after
// construction and safe to share across worker goroutines.
type Device struct {
	action     Action
	devpath    string
	subsystem  string
	devtype    string
	kernel     string
	devnode    string
	driver     string
	major      int32
	hasMajor   bool
	minor      int32
	hasMinor   bool
	seqnum     uint64
	timestamp  int64
	properties map[string]string
}

// FromProperties builds a Device from a decoded property map. It
// returns false when ACTION, SUBSYSTEM, or DEVPATH is missing, per the
// required-fields invariant.
func FromProperties(props map[string]string) (Device, bool) {
	action, ok := props["ACTION"]
	if !ok {
		return Device{}, false
	}
	subsystem, ok := props["SUBSYSTEM"]
	if !ok {
		return Device{}, false
	}
	devpath, ok := props["DEVPATH"]
	if !ok {
		return Device{}, false
	}

	d := Device{
		action:     ParseAction(action),
		devpath:    devpath,
		subsystem:  subsystem,
		devtype:    props["DEVTYPE"],
		kernel:     props["KERNEL"],
		devnode:    props["DEVNAME"],
		driver:     props["DRIVER"],
		timestamp:  time.Now().Unix(),
		properties: copyProps(props),
	}

	if v, err := strconv.ParseInt(props["MAJOR"], 10, 32); err == nil {
		d.major, d.hasMajor = int32(v), true
	}
	if v, err := strconv.ParseInt(props["MINOR"], 10, 32); err == nil {
		d.minor, d.hasMinor = int32(v), true
	}
	if v, err := strconv.ParseUint(props["SEQNUM"], 10, 64); err == nil {
		d.seqnum = v
	}

	return d, true
}

func copyProps(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (d Device) Action() Action       { return d.action }
func (d Device) Devpath() string      { return d.devpath }
func (d Device) Subsystem() string    { return d.subsystem }
func (d Device) Devtype() string      { return d.devtype }
func (d Device) Kernel() string       { return d.kernel }
func (d Device) Devnode() string      { return d.devnode }
func (d Device) Driver() string       { return d.driver }
func (d Device) Seqnum() uint64       { return d.seqnum }
func (d Device) Timestamp() int64     { return d.timestamp }

// Major returns the device's major number and whether MAJOR was present.
func (d Device) Major() (int32, bool) { return d.major, d.hasMajor }

// Minor returns the device's minor number and whether MINOR was present.
func (d Device) Minor() (int32, bool) { return d.minor, d.hasMinor }

// Property returns a raw KEY=VALUE property from the event, including
// ones already promoted to typed fields above.
func (d Device) Property(key string) (string, bool) {
	v, ok := d.properties[key]
	return v, ok
}

// Properties returns the full decoded property map. Callers must not
// mutate the returned map.
func (d Device) Properties() map[string]string {
	return d.properties
}

// Syspath returns the sysfs path for this device: "/sys" + devpath.
func (d Device) Syspath() string {
	return "/sys" + d.devpath
}

// IsUSBDevice reports whether DEVTYPE is "usb_device", the event
// filter the daemon applies when its RequireUSB option is set.
func (d Device) IsUSBDevice() bool {
	return d.devtype == "usb_device"
}
