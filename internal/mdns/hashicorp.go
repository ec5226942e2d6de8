//go:build mdns_hashicorp

// This file is an alternate mDNS backend, selected at build time with
// -tags mdns_hashicorp, for deployments where brutella/dnssd's
// responder behaves poorly behind certain multicast-unfriendly NAT/VPN
// setups. It is not part of the default build; Advertiser above is.
package mdns

import (
	"github.com/hashicorp/mdns"
)

// HashicorpAdvertiser advertises one service per instance via
// hashicorp/mdns's simpler fire-and-forget server, the pattern used by
// the pion/webrtc-adjacent examples in the retrieval pack.
type HashicorpAdvertiser struct {
	servers []*mdns.Server
}

func (a *HashicorpAdvertiser) Register(d Descriptor) error {
	info := []string{d.InstanceName}
	for k, v := range d.Text {
		info = append(info, k+"="+v)
	}
	svc, err := mdns.NewMDNSService(d.InstanceName, d.Type, "", "", d.Port, nil, info)
	if err != nil {
		return err
	}
	srv, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return err
	}
	a.servers = append(a.servers, srv)
	return nil
}

func (a *HashicorpAdvertiser) Stop() {
	for _, s := range a.servers {
		s.Shutdown()
	}
	a.servers = nil
}
