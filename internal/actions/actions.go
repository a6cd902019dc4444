// Package actions executes a matched rule's filesystem and process
// side effects against a device event: device node creation, mode/
// owner/group assignment, symlink management, and shell commands.
package actions

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/smazurov/udevd/internal/device"
	"github.com/smazurov/udevd/internal/rules"
)

// Executor applies a matched rule's actions under a configured device
// node root directory.
type Executor struct {
	Root   string
	Logger *slog.Logger
}

// New creates an Executor rooted at root.
func New(root string, logger *slog.Logger) *Executor {
	return &Executor{Root: root, Logger: logger}
}

// Execute dispatches on d's action, applying rule's assignments and
// running rule's commands for that action. Unsupported actions are
// logged and otherwise ignored.
func (e *Executor) Execute(r rules.Rule, d device.Device) {
	switch d.Action() {
	case device.ActionAdd:
		e.add(r, d)
	case device.ActionRemove:
		e.remove(r, d)
	case device.ActionChange:
		e.change(r, d)
	case device.ActionBind:
		e.bind(r, d)
	case device.ActionUnbind:
		e.unbind(r, d)
	default:
		e.Logger.Warn("unsupported action", "action", d.Action().String())
	}
}

func (e *Executor) add(r rules.Rule, d device.Device) {
	devnode := d.Devnode()
	if devnode == "" {
		e.Logger.Warn("no DEVNAME in device, cannot create node")
		return
	}

	path := filepath.Join(e.Root, devnode)
	if err := e.createNode(path, d); err != nil {
		e.Logger.Error("failed to create device node", "devnode", devnode, "error", err)
		return
	}

	e.applyPermissions(path, r)
	e.createSymlinks(path, r, d)

	if err := e.runCommands(r.RunCommands("add"), d); err != nil {
		e.Logger.Warn("add run commands failed", "error", err)
	}
}

func (e *Executor) remove(r rules.Rule, d device.Device) {
	devnode := d.Devnode()
	if devnode == "" {
		e.Logger.Warn("no DEVNAME in device, cannot remove node")
		return
	}

	path := filepath.Join(e.Root, devnode)
	e.removeSymlinksPointingTo(path)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.Logger.Warn("failed to remove device node", "devnode", devnode, "error", err)
	}

	if err := e.runCommands(r.RunCommands("remove"), d); err != nil {
		e.Logger.Warn("remove run commands failed", "error", err)
	}
}

func (e *Executor) change(r rules.Rule, d device.Device) {
	devnode := d.Devnode()
	if devnode == "" {
		return
	}
	e.applyPermissions(filepath.Join(e.Root, devnode), r)
}

func (e *Executor) bind(r rules.Rule, d device.Device) {
	devnode := d.Devnode()
	if devnode == "" {
		return
	}
	path := filepath.Join(e.Root, devnode)
	e.applyPermissions(path, r)
	e.createSymlinks(path, r, d)

	if err := e.runCommands(r.RunCommands("bind"), d); err != nil {
		e.Logger.Warn("bind run commands failed", "error", err)
	}
}

func (e *Executor) unbind(r rules.Rule, d device.Device) {
	devnode := d.Devnode()
	if devnode == "" {
		return
	}
	e.removeSymlinksPointingTo(filepath.Join(e.Root, devnode))

	if err := e.runCommands(r.RunCommands("unbind"), d); err != nil {
		e.Logger.Warn("unbind run commands failed", "error", err)
	}
}

// createNode creates a char or block device node with mode 0660 and
// the device's (major, minor) pair. An "already exists" result is
// logged at info level, not treated as an error.
func (e *Executor) createNode(path string, d device.Device) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	major, _ := d.Major()
	minor, _ := d.Minor()

	mode := uint32(unix.S_IFCHR)
	if d.Devtype() == "disk" || d.Devtype() == "partition" {
		mode = unix.S_IFBLK
	}

	dev := unix.Mkdev(uint32(major), uint32(minor))
	err := unix.Mknod(path, mode|0o660, int(dev))
	if err != nil {
		if errors.Is(err, unix.EEXIST) {
			e.Logger.Info("device node already exists", "path", path)
			return nil
		}
		return err
	}
	e.Logger.Info("created device node", "path", path)
	return nil
}

// applyPermissions applies rule.mode/owner/group to path, warning and
// continuing on any individual failure.
func (e *Executor) applyPermissions(path string, r rules.Rule) {
	if r.Mode != "" {
		mode, err := strconv.ParseUint(r.Mode, 8, 32)
		if err != nil {
			e.Logger.Warn("invalid mode", "mode", r.Mode, "error", err)
		} else if err := os.Chmod(path, os.FileMode(mode)); err != nil {
			e.Logger.Warn("failed to apply mode", "path", path, "error", err)
		}
	}

	uid, gid := -1, -1
	if r.Owner != "" {
		if u, err := user.Lookup(r.Owner); err == nil {
			uid, _ = strconv.Atoi(u.Uid)
		} else {
			e.Logger.Warn("user not found", "owner", r.Owner)
		}
	}
	if r.Group != "" {
		if g, err := user.LookupGroup(r.Group); err == nil {
			gid, _ = strconv.Atoi(g.Gid)
		} else {
			e.Logger.Warn("group not found", "group", r.Group)
		}
	}
	if uid != -1 || gid != -1 {
		if err := os.Chown(path, uid, gid); err != nil {
			e.Logger.Warn("failed to apply owner/group", "path", path, "error", err)
		}
	}
}

// createSymlinks expands and creates each SYMLINK+= target, unlinking
// any pre-existing file first.
func (e *Executor) createSymlinks(devPath string, r rules.Rule, d device.Device) {
	for _, pattern := range r.Symlink {
		target := filepath.Join(e.Root, substitute(pattern, d))

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			e.Logger.Warn("failed to create symlink parent dir", "path", target, "error", err)
			continue
		}
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			e.Logger.Warn("failed to remove existing symlink", "path", target, "error", err)
		}
		if err := os.Symlink(devPath, target); err != nil {
			e.Logger.Warn("failed to create symlink", "path", target, "error", err)
		}
	}
}

// removeSymlinksPointingTo scans the device-node root for symlinks
// whose canonical target matches target's canonical path, removing
// each one.
func (e *Executor) removeSymlinksPointingTo(target string) {
	canonicalTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		canonicalTarget = target
	}

	_ = filepath.WalkDir(e.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d == nil {
			return nil
		}
		if d.Type()&os.ModeSymlink == 0 {
			return nil
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if resolved == canonicalTarget {
			if rmErr := os.Remove(path); rmErr != nil {
				e.Logger.Warn("failed to remove stale symlink", "path", path, "error", rmErr)
			}
		}
		return nil
	})
}

// runCommands runs each shell command with the device's properties
// exported as environment variables, warning on non-zero exit.
func (e *Executor) runCommands(commands []string, d device.Device) error {
	for _, cmd := range commands {
		expanded := substitute(cmd, d)
		c := exec.Command("sh", "-c", expanded)
		c.Env = append(os.Environ(), propertyEnv(d)...)

		if err := c.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				e.Logger.Warn("command exited non-zero", "command", expanded, "status", exitErr.ExitCode())
				continue
			}
			return fmt.Errorf("run %q: %w", expanded, err)
		}
	}
	return nil
}

func propertyEnv(d device.Device) []string {
	env := make([]string, 0, len(d.Properties()))
	for k, v := range d.Properties() {
		env = append(env, k+"="+v)
	}
	return env
}

// substitute replaces %-codes and ${NAME} property references in
// input. Missing values leave the token unreplaced.
func substitute(input string, d device.Device) string {
	var b strings.Builder
	i := 0
	for i < len(input) {
		switch {
		case input[i] == '%' && i+1 < len(input):
			b.WriteString(substitutePercent(input[i+1], d, input[i:i+2]))
			i += 2
		case input[i] == '$' && i+1 < len(input) && input[i+1] == '{':
			end := strings.IndexByte(input[i:], '}')
			if end == -1 {
				b.WriteByte(input[i])
				i++
				continue
			}
			name := input[i+2 : i+end]
			if val, ok := d.Property(name); ok {
				b.WriteString(val)
			} else {
				b.WriteString(input[i : i+end+1])
			}
			i += end + 1
		default:
			b.WriteByte(input[i])
			i++
		}
	}
	return b.String()
}

func substitutePercent(code byte, d device.Device, fallback string) string {
	switch code {
	case 'k':
		if d.Kernel() != "" {
			return d.Kernel()
		}
	case 'n':
		if d.Devnode() != "" {
			return d.Devnode()
		}
	case 'p':
		return d.Devpath()
	case 'c', 't':
		if d.Devtype() != "" {
			return d.Devtype()
		}
	case 'd':
		if devnum, ok := d.Property("DEVNUM"); ok {
			return devnum
		}
	case 's':
		return d.Subsystem()
	case 'm':
		if major, ok := d.Major(); ok {
			return strconv.Itoa(int(major))
		}
	case 'r':
		if minor, ok := d.Minor(); ok {
			return strconv.Itoa(int(minor))
		}
	}
	return fallback
}
