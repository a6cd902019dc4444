// Package netlink ingests kernel hot-plug events from the
// NETLINK_KOBJECT_UEVENT broadcast group and decodes their
// NUL-separated KEY=VALUE payload into a property map.
package netlink

import (
	"errors"
	"strings"

	"golang.org/x/sys/unix"
)

// maxDatagram is the receive buffer size; kernel uevent payloads are
// small and well under this in practice.
const maxDatagram = 4096

// ErrWouldBlock indicates no event was available: either a transient
// EAGAIN or an empty datagram.
var ErrWouldBlock = errors.New("netlink: would block")

// Ingestor owns a single NETLINK_KOBJECT_UEVENT socket bound to the
// kernel broadcast group.
type Ingestor struct {
	fd int
}

// New opens and binds the uevent socket. pid 0 lets the kernel assign
// the address; group mask 1 joins the kernel's broadcast group.
func New() (*Ingestor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}

	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Pid: 0, Groups: 1}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Ingestor{fd: fd}, nil
}

// Fd exposes the underlying descriptor for readiness polling.
func (i *Ingestor) Fd() int {
	return i.fd
}

// Receive reads one datagram and decodes its NUL-separated KEY=VALUE
// records into a property map. The leading human-readable header line
// (fields with no '=') is ignored, matching the kernel's own
// libudev-monitor behaviour.
func (i *Ingestor) Receive() (map[string]string, error) {
	buf := make([]byte, maxDatagram)
	n, _, err := unix.Recvfrom(i.fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}
		return nil, err
	}
	if n == 0 {
		return nil, ErrWouldBlock
	}

	return decodePayload(buf[:n]), nil
}

// decodePayload splits a raw uevent datagram on NUL bytes and parses
// each non-empty field as KEY=VALUE; fields without '=' (including the
// kernel's leading human-readable header line) are ignored.
func decodePayload(payload []byte) map[string]string {
	props := make(map[string]string)
	for _, field := range strings.Split(string(payload), "\x00") {
		if field == "" {
			continue
		}
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		props[key] = val
	}
	return props
}

// Close releases the socket.
func (i *Ingestor) Close() error {
	return unix.Close(i.fd)
}
