// Package zeroconf registers the SlidePi web UI as an mDNS/DNS-SD service
// so kiosks are discoverable on the LAN.
package zeroconf

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD type browsed by clients.
const ServiceType = "_slidepi._tcp"

// Service manages mDNS service registration.
type Service struct {
	name    string // instance name, e.g. the hostname
	port    int
	version string
}

// New creates a new zeroconf Service that will advertise on the given port.
func New(name string, port int, version string) *Service {
	return &Service{
		name:    name,
		port:    port,
		version: version,
	}
}

// TXT returns the TXT records advertised with the service.
func (s *Service) TXT() []string {
	return []string{"version=" + s.version, "path=/", "api=/api"}
}

// Start registers the mDNS service and blocks until ctx is cancelled, at which
// point it shuts down the server cleanly.
func (s *Service) Start(ctx context.Context) error {
	txt := s.TXT()

	server, err := zeroconf.Register(
		s.name,      // instance name
		ServiceType, // service type
		"local.",    // domain
		s.port,      // port
		txt,         // TXT records
		nil,         // ifaces: nil means all interfaces
	)
	if err != nil {
		return fmt.Errorf("zeroconf register: %w", err)
	}
	slog.Info("zeroconf: registered mDNS service",
		"name", s.name,
		"port", s.port,
		"txt", txt,
	)

	<-ctx.Done()

	server.Shutdown()
	slog.Info("zeroconf: mDNS service unregistered")
	return nil
}

// Browse looks up SlidePi instances on the LAN until ctx is done and returns
// their "host:port" addresses.
func Browse(ctx context.Context) ([]string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("zeroconf resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry)
	var addrs []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				host := e.HostName
				if len(e.AddrIPv4) > 0 {
					host = e.AddrIPv4[0].String()
				}
				addrs = append(addrs, fmt.Sprintf("%s:%d", host, e.Port))
			case <-ctx.Done():
				return
			}
		}
	}()
	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("zeroconf browse: %w", err)
	}
	<-ctx.Done()
	<-done
	return addrs, nil
}
