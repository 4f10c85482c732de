// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// errNotUnixConn is returned when peer credentials are requested for a
// connection that is not a Unix socket.
var errNotUnixConn = errors.New("transport: peer credentials need a unix socket")

// peerCredentials returns the kernel-reported credentials of the
// process on the other end of conn.
func peerCredentials(conn net.Conn) (*unix.Ucred, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, errNotUnixConn
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return nil, err
	}

	var credentials *unix.Ucred
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		credentials, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return nil, err
	}
	if sockErr != nil {
		return nil, fmt.Errorf("SO_PEERCRED: %w", sockErr)
	}
	return credentials, nil
}
