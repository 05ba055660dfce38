package mdns

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

type registration interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, host string, ips []string, text []string) (registration, error)

// ZeroconfAdvertiser publishes service records over multicast DNS. Records
// always point at the hostname set by SetHostname and resolve to the
// configured IP, or to every non-loopback interface address without one.
type ZeroconfAdvertiser struct {
	domain         string
	ip             net.IP
	register       registerFunc
	interfaceAddrs func() ([]net.Addr, error)
	logger         *zap.SugaredLogger

	mu       sync.Mutex
	hostname string
	records  []registration
}

func NewZeroconfAdvertiser(domain string, ip net.IP, logger *zap.SugaredLogger) *ZeroconfAdvertiser {
	return &ZeroconfAdvertiser{
		domain:         domain,
		ip:             ip,
		register:       zeroconfRegister,
		interfaceAddrs: net.InterfaceAddrs,
		logger:         logger,
	}
}

func zeroconfRegister(instance, service, domain string, port int, host string, ips []string, text []string) (registration, error) {
	return zeroconf.RegisterProxy(instance, service, domain, port, host, ips, text, nil)
}

func (a *ZeroconfAdvertiser) SetHostname(name string) error {
	if name == "" {
		return fmt.Errorf("mdns hostname must not be empty")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hostname = name
	return nil
}

func (a *ZeroconfAdvertiser) AddService(instance, service, proto string, port int, txt map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	svc := service + "." + proto
	if a.hostname == "" {
		return fmt.Errorf("register %s.%s: hostname not set", instance, svc)
	}
	ips, err := a.addresses()
	if err != nil {
		return fmt.Errorf("register %s.%s: %w", instance, svc, err)
	}

	r, err := a.register(instance, svc, a.domain, port, a.hostname, ips, encodeTXT(txt))
	if err != nil {
		return fmt.Errorf("register %s.%s: %w", instance, svc, err)
	}
	a.records = append(a.records, r)

	a.logger.Infow("mdns record registered",
		"instance", instance,
		"service", svc,
		"domain", a.domain,
		"port", port,
		"host", a.hostname,
		"ips", ips,
	)
	return nil
}

func (a *ZeroconfAdvertiser) addresses() ([]string, error) {
	if a.ip != nil {
		return []string{a.ip.String()}, nil
	}
	addrs, err := a.interfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("list interface addresses: %w", err)
	}
	var ips []string
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.IsUnspecified() {
			continue
		}
		ips = append(ips, ipnet.IP.String())
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no non-loopback interface addresses")
	}
	return ips, nil
}

// Shutdown withdraws every registered record.
func (a *ZeroconfAdvertiser) Shutdown() {
	a.mu.Lock()
	records := a.records
	a.records = nil
	a.mu.Unlock()

	for _, r := range records {
		r.Shutdown()
	}
}

// encodeTXT renders properties as sorted TXT strings. Empty values become
// boolean attributes.
func encodeTXT(txt map[string]string) []string {
	keys := make([]string, 0, len(txt))
	for k := range txt {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := txt[k]; v != "" {
			out = append(out, k+"="+v)
		} else {
			out = append(out, k)
		}
	}
	return out
}

// NoopAdvertiser accepts registrations without publishing anything, for
// deployments with multicast disabled.
type NoopAdvertiser struct {
	logger *zap.SugaredLogger
}

func NewNoopAdvertiser(logger *zap.SugaredLogger) *NoopAdvertiser {
	return &NoopAdvertiser{logger: logger}
}

func (a *NoopAdvertiser) SetHostname(string) error { return nil }

func (a *NoopAdvertiser) AddService(instance, service, proto string, port int, txt map[string]string) error {
	a.logger.Debugw("mdns disabled, not advertising", "instance", instance, "service", service+"."+proto, "port", port)
	return nil
}

func (a *NoopAdvertiser) Shutdown() {}
