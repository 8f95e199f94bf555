// Package netio implements spec.md's networking layer: InetAddress,
// Acceptor, TcpConnection, TcpServer, and UdpSocket, all driven by raw
// non-blocking syscalls registered against a loop.EventLoop's Channel.
//
// Grounded on original_source/include/hvnetpp/InetAddress.h +
// src/InetAddress.cpp, cross-checked against
// momentics-hioload-ws/reactor/reactor_linux.go for the Go-idiomatic
// flavor of the same raw socket() / bind() / accept4() / connect() calls
// (golang.org/x/sys/unix rather than net.Listen, since the engine must
// own its fds to register them with the poller directly).
package netio

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/reactorforge/evloop/internal/errs"
)

// Address is spec.md's InetAddress: a family-tagged endpoint usable
// interchangeably as an IPv4 or IPv6 sockaddr.
type Address struct {
	v6   bool
	ip   net.IP
	port uint16
}

// NewAddress constructs a listening endpoint for port. If loopbackOnly
// is set the address binds to the loopback interface only, else to the
// wildcard address (original_source's InetAddress(port, loopbackOnly,
// ipv6) constructor).
func NewAddress(port uint16, loopbackOnly, ipv6 bool) Address {
	a := Address{v6: ipv6, port: port}
	if ipv6 {
		if loopbackOnly {
			a.ip = net.IPv6loopback
		} else {
			a.ip = net.IPv6unspecified
		}
		return a
	}
	if loopbackOnly {
		a.ip = net.IPv4(127, 0, 0, 1)
	} else {
		a.ip = net.IPv4zero
	}
	return a
}

// NewAddressFromIPPort constructs an endpoint from a literal IP and
// port (original_source's InetAddress(ip, port, ipv6) constructor).
func NewAddressFromIPPort(ip string, port uint16, ipv6 bool) (Address, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Address{}, errs.New(errs.CodeInvalidArgument, "invalid ip address: "+ip)
	}
	return Address{v6: ipv6, ip: parsed, port: port}, nil
}

// addressFromSockaddr converts a raw accept4/getpeername result back
// into an Address (used when accepting inbound connections).
func addressFromSockaddr(sa unix.Sockaddr) Address {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return Address{ip: net.IP(s.Addr[:]).To4(), port: uint16(s.Port)}
	case *unix.SockaddrInet6:
		return Address{v6: true, ip: net.IP(s.Addr[:]), port: uint16(s.Port)}
	default:
		return Address{}
	}
}

// Family reports AF_INET or AF_INET6.
func (a Address) Family() int {
	if a.v6 {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// IP returns the address's IP.
func (a Address) IP() net.IP { return a.ip }

// Port returns the address's port in host byte order.
func (a Address) Port() uint16 { return a.port }

// String renders "ip:port" (original_source's toIpPort).
func (a Address) String() string {
	return net.JoinHostPort(a.ip.String(), itoa(a.port))
}

func itoa(p uint16) string {
	if p == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = byte('0' + p%10)
		p /= 10
	}
	return string(buf[i:])
}

// sockaddr converts the Address to a unix.Sockaddr for bind/connect.
func (a Address) sockaddr() unix.Sockaddr {
	if a.v6 {
		sa := &unix.SockaddrInet6{Port: int(a.port)}
		copy(sa.Addr[:], a.ip.To16())
		return sa
	}
	sa := &unix.SockaddrInet4{Port: int(a.port)}
	copy(sa.Addr[:], a.ip.To4())
	return sa
}

// ResolveAddress resolves hostname to an Address, preserving port and
// address family (original_source's InetAddress::resolve; thread-safe
// because net.LookupIP is).
func ResolveAddress(hostname string, port uint16, ipv6 bool) (Address, error) {
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return Address{}, errs.Wrap(errs.CodeNotFound, "resolve failed", err)
	}
	for _, ip := range ips {
		if ipv6 && ip.To4() == nil {
			return Address{v6: true, ip: ip, port: port}, nil
		}
		if !ipv6 && ip.To4() != nil {
			return Address{ip: ip.To4(), port: port}, nil
		}
	}
	return Address{}, errs.New(errs.CodeNotFound, "no matching address family for "+hostname)
}
