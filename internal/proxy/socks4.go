package proxy

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"
)

const (
	socks4Version   = 0x04
	socks4Connect   = 0x01
	socks4Granted   = 0x5a
	socks4ReplySize = 8
)

// socks4Dialer speaks SOCKS4 CONNECT, falling back to the 4a extension
// when the destination is a hostname rather than an IPv4 literal.
type socks4Dialer struct {
	proxyAddr string
	userID    string
	forward   net.Dialer
}

func newSOCKS4Dialer(u *url.URL) *socks4Dialer {
	d := &socks4Dialer{proxyAddr: u.Host}
	if u.User != nil {
		d.userID = u.User.Username()
	}
	return d
}

// DialContext connects to addr through the proxy
func (d *socks4Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" {
		return nil, fmt.Errorf("socks4: network %s not supported", network)
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("socks4: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("socks4: invalid port %q", portStr)
	}

	conn, err := d.forward.DialContext(ctx, "tcp", d.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks4: dial proxy %s: %w", d.proxyAddr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer func() { _ = conn.SetDeadline(time.Time{}) }()
	}

	if _, err := conn.Write(socks4Request(host, uint16(port), d.userID)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socks4: write request: %w", err)
	}

	reply := make([]byte, socks4ReplySize)
	if _, err := io.ReadFull(conn, reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socks4: read reply: %w", err)
	}
	if reply[1] != socks4Granted {
		conn.Close()
		return nil, fmt.Errorf("socks4: request rejected with code 0x%02x", reply[1])
	}

	return conn, nil
}

func socks4Request(host string, port uint16, userID string) []byte {
	req := []byte{socks4Version, socks4Connect, 0, 0}
	binary.BigEndian.PutUint16(req[2:4], port)

	ip := net.ParseIP(host).To4()
	if ip != nil {
		req = append(req, ip...)
	} else {
		// 0.0.0.x tells a 4a server that a hostname follows the user id
		req = append(req, 0, 0, 0, 1)
	}

	req = append(req, userID...)
	req = append(req, 0)

	if ip == nil {
		req = append(req, host...)
		req = append(req, 0)
	}
	return req
}
