// Package sysfs reads device attribute files from the kernel's
// synthetic device-information filesystem, for rule attribute
// predicates and the udevadm-style query command.
package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Root is the mount point sysfs paths are resolved against. It is a
// variable, not a constant, so tests can redirect it to a sandbox.
var Root = "/sys"

// ReadAttribute opens Root+syspath+relative and returns its trimmed
// contents. Missing files or read errors yield false, which callers
// treat as predicate failure rather than an error.
func ReadAttribute(syspath, relative string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(Root, syspath, relative))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// Info is the libudev-like mapping produced for a device node by the
// query command: DEVNAME, the node's uevent attributes, SUBSYSTEM,
// DEVTYPE, DRIVER, PHYSDEVPATH, and DEVMODE.
type Info map[string]string

// QueryDevice assembles an Info record for the device node at
// devnodePath. The node must exist and be a character or block device;
// its sysfs path is derived from its (major, minor) pair via
// /sys/dev/{char,block}/MAJOR:MINOR.
func QueryDevice(devnodePath string) (Info, error) {
	fi, err := os.Stat(devnodePath)
	if err != nil {
		return nil, fmt.Errorf("sysfs: stat %s: %w", devnodePath, err)
	}

	major, minor, kind, ok := deviceNumber(fi)
	if !ok {
		return nil, fmt.Errorf("sysfs: %s is not a device node", devnodePath)
	}

	devSysPath := filepath.Join(Root, "dev", kind, fmt.Sprintf("%d:%d", major, minor))
	if _, err := os.Stat(devSysPath); err != nil {
		return nil, fmt.Errorf("sysfs: %s has no sysfs entry: %w", devnodePath, err)
	}

	info := Info{"DEVNAME": devnodePath}

	if uevent, err := os.ReadFile(filepath.Join(devSysPath, "uevent")); err == nil {
		for _, line := range strings.Split(string(uevent), "\n") {
			key, val, ok := strings.Cut(line, "=")
			if !ok || key == "DEVNAME" {
				continue
			}
			info[key] = val
		}
	}

	if target, err := os.Readlink(filepath.Join(devSysPath, "subsystem")); err == nil {
		info["SUBSYSTEM"] = filepath.Base(target)
	}

	if devtype, err := os.ReadFile(filepath.Join(devSysPath, "type")); err == nil {
		info["DEVTYPE"] = strings.TrimSpace(string(devtype))
	}

	if target, err := os.Readlink(filepath.Join(devSysPath, "device", "driver")); err == nil {
		info["DRIVER"] = filepath.Base(target)
	}

	if target, err := os.Readlink(filepath.Join(devSysPath, "device")); err == nil {
		info["PHYSDEVPATH"] = target
	}

	info["DEVMODE"] = strconv.FormatUint(uint64(fi.Mode().Perm()), 8)

	return info, nil
}

// deviceNumber extracts the (major, minor) pair and sysfs class
// directory ("char" or "block") for a device node's FileInfo.
func deviceNumber(fi os.FileInfo) (major, minor uint32, kind string, ok bool) {
	sys, is := fi.Sys().(*unix.Stat_t)
	if !is {
		return 0, 0, "", false
	}

	switch {
	case fi.Mode()&os.ModeCharDevice != 0:
		kind = "char"
	case fi.Mode()&os.ModeDevice != 0:
		kind = "block"
	default:
		return 0, 0, "", false
	}

	return unix.Major(sys.Rdev), unix.Minor(sys.Rdev), kind, true
}
