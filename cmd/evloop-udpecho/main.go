// Command evloop-udpecho is a UDP echo service built directly on
// netio.UdpSocket.
package main

import (
	"os"

	flashflags "github.com/agilira/flash-flags"

	"github.com/reactorforge/evloop/internal/logx"
	"github.com/reactorforge/evloop/loop"
	"github.com/reactorforge/evloop/netio"
)

func main() {
	fs := flashflags.New("evloop-udpecho")
	port := fs.Int("port", 7008, "UDP port to listen on")
	if err := fs.Parse(os.Args[1:]); err != nil {
		logx.Fatalf("flag parse: %v", err)
	}

	el, err := loop.New()
	if err != nil {
		logx.Fatalf("loop.New: %v", err)
	}
	defer el.Close()

	sock, err := netio.NewUdpSocket(el, "udpecho", false, nil)
	if err != nil {
		logx.Fatalf("NewUdpSocket: %v", err)
	}
	defer sock.Close()

	sock.SetReadCallback(func(peer netio.Address, data []byte) {
		cp := append([]byte(nil), data...)
		if _, err := sock.SendTo(cp, peer); err != nil {
			logx.Warnf("sendto %s failed: %v", peer, err)
		}
	})

	addr := netio.NewAddress(uint16(*port), false, false)
	if err := sock.Bind(addr); err != nil {
		logx.Fatalf("bind: %v", err)
	}

	logx.Infof("evloop-udpecho listening on %s", addr.String())
	el.Loop()
}
