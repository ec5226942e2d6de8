// Package mdns advertises sink services for discovery, per spec §6. It
// wraps github.com/brutella/dnssd the way the teacher wraps it in
// dns_sd.go: build a dnssd.Config, register it on a shared Responder,
// run the responder on its own goroutine.
package mdns

import (
	"context"
	"fmt"
	"sync"

	"github.com/brutella/dnssd"
)

// ServiceType is the default DNS-SD service type advertised for RTP
// sinks.
const ServiceType = "_rtp._udp"

// Advertiser owns one dnssd.Responder shared by every registered
// service, so a single goroutine answers queries for all of them.
type Advertiser struct {
	mu        sync.Mutex
	responder dnssd.Responder
	cancel    context.CancelFunc
	started   bool
}

// NewAdvertiser creates an Advertiser. Call Start once after registering
// the services you want advertised.
func NewAdvertiser() (*Advertiser, error) {
	rp, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("mdns: new responder: %w", err)
	}
	return &Advertiser{responder: rp}, nil
}

// Descriptor is the minimal shape a sink needs to supply; it mirrors
// sink.ServiceDescriptor without importing that package (mdns sits below
// sink in the dependency graph).
type Descriptor struct {
	InstanceName string
	Type         string
	Port         int
	Text         map[string]string
}

// Register adds a service to be advertised once Start is called. Safe to
// call after Start; the responder picks up additions dynamically.
func (a *Advertiser) Register(d Descriptor) error {
	cfg := dnssd.Config{
		Name: d.InstanceName,
		Type: d.Type,
		Port: d.Port,
		Text: d.Text,
	}
	sv, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("mdns: new service %q: %w", d.InstanceName, err)
	}
	if _, err := a.responder.Add(sv); err != nil {
		return fmt.Errorf("mdns: add service %q: %w", d.InstanceName, err)
	}
	return nil
}

// Start runs the responder loop in the background. Stop cancels it.
func (a *Advertiser) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.responder.Respond(ctx) //nolint:errcheck
}

// Stop shuts down the responder goroutine.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.started = false
}
