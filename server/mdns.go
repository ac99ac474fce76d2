package server

import (
	"fmt"

	"github.com/grandcat/zeroconf"
	log "github.com/sirupsen/logrus"

	"github.com/nedpals/nfc-reader-bridge/buildinfo"
)

// mdnsTXTRecords describes the bridge to discovering clients.
func (s *Server) mdnsTXTRecords() []string {
	scheme := "ws"
	if s.config.TLS != nil {
		scheme = "wss"
	}
	return []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"scheme=" + scheme,
		"path=" + PathWebSocket,
		"api=" + PathAPIPrefix,
	}
}

// startMDNS advertises the bridge on the local network.
func (s *Server) startMDNS() error {
	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, s.config.Port, s.mdnsTXTRecords(), nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mdnsServer = server
	log.WithFields(log.Fields{
		"component": "mdns",
		"service":   MDNSServiceType,
		"port":      s.config.Port,
	}).Info("mDNS service registered")
	return nil
}

func (s *Server) stopMDNS() {
	if s.mdnsServer == nil {
		return
	}
	s.mdnsServer.Shutdown()
	s.mdnsServer = nil
	log.WithField("component", "mdns").Info("mDNS service stopped")
}
