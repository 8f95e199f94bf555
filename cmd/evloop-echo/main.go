// Command evloop-echo is a minimal TCP echo server built directly on
// netio.TcpServer, the Go-idiomatic analogue of the teacher's
// examples/reactor_echo/main.go demo.
package main

import (
	"os"

	flashflags "github.com/agilira/flash-flags"

	"github.com/reactorforge/evloop/config"
	"github.com/reactorforge/evloop/internal/logx"
	"github.com/reactorforge/evloop/loop"
	"github.com/reactorforge/evloop/netio"
)

func main() {
	fs := flashflags.New("evloop-echo")
	port := fs.Int("port", 7007, "TCP port to listen on")
	configPath := fs.String("config", "", "path to a JSON config.Values file, hot-reloaded on change")
	if err := fs.Parse(os.Args[1:]); err != nil {
		logx.Fatalf("flag parse: %v", err)
	}

	store := config.New(config.Defaults())
	if *configPath != "" {
		if err := store.WatchFile(*configPath, logx.Default); err != nil {
			logx.Fatalf("config.WatchFile(%s): %v", *configPath, err)
		}
		defer store.Close()
	}

	el, err := loop.New(loop.WithConfigStore(store))
	if err != nil {
		logx.Fatalf("loop.New: %v", err)
	}
	defer el.Close()

	addr := netio.NewAddress(uint16(*port), false, false)
	srv, err := netio.NewTcpServer(el, addr, "echo", nil, netio.WithConfigStore(store))
	if err != nil {
		logx.Fatalf("NewTcpServer: %v", err)
	}

	srv.SetConnectionCallback(func(c *netio.TcpConnection) {
		if c.Connected() {
			logx.Infof("connection %s up (%s -> %s)", c.Name(), c.PeerAddress(), c.LocalAddress())
		} else {
			logx.Infof("connection %s down", c.Name())
		}
	})
	srv.SetMessageCallback(func(c *netio.TcpConnection, buf *netio.Buffer) {
		data := buf.RetrieveAllAsBytes()
		if err := c.Send(data); err != nil {
			logx.Warnf("send on %s failed: %v", c.Name(), err)
		}
	})

	srv.Start()
	logx.Infof("evloop-echo listening on %s", addr.String())
	el.Loop()
}
