// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package boundary

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/roto31/exstreamtv/internal/log"
)

// DiscoverResponse is the HDHomeRun /discover.json payload (I7/I8: stable
// DeviceID, matching the `^[0-9A-Fa-f]{8}$` shape real clients expect).
type DiscoverResponse struct {
	FriendlyName    string `json:"FriendlyName"`
	ModelNumber     string `json:"ModelNumber"`
	FirmwareName    string `json:"FirmwareName"`
	FirmwareVersion string `json:"FirmwareVersion"`
	DeviceID        string `json:"DeviceID"`
	DeviceAuth      string `json:"DeviceAuth"`
	BaseURL         string `json:"BaseURL"`
	LineupURL       string `json:"LineupURL"`
	TunerCount      int    `json:"TunerCount"`
}

// LineupStatus is the HDHomeRun /lineup_status.json payload.
type LineupStatus struct {
	ScanInProgress int      `json:"ScanInProgress"`
	ScanPossible   int      `json:"ScanPossible"`
	Source         string   `json:"Source"`
	SourceList     []string `json:"SourceList"`
}

// LineupEntry is one channel in the HDHomeRun /lineup.json response.
type LineupEntry struct {
	GuideNumber string `json:"GuideNumber"`
	GuideName   string `json:"GuideName"`
	URL         string `json:"URL"`
}

type deviceXMLRoot struct {
	XMLName     xml.Name             `xml:"root"`
	XMLNS       string               `xml:"xmlns,attr"`
	SpecVersion deviceXMLSpecVersion `xml:"specVersion"`
	Device      deviceXMLDevice      `xml:"device"`
}

type deviceXMLSpecVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

type deviceXMLDevice struct {
	DeviceType       string `xml:"deviceType"`
	FriendlyName     string `xml:"friendlyName"`
	Manufacturer     string `xml:"manufacturer"`
	ManufacturerURL  string `xml:"manufacturerURL"`
	ModelDescription string `xml:"modelDescription"`
	ModelName        string `xml:"modelName"`
	ModelNumber      string `xml:"modelNumber"`
	ModelURL         string `xml:"modelURL"`
	UDN              string `xml:"UDN"`
	PresentationURL  string `xml:"presentationURL"`
}

// HandleDiscover serves /discover.json.
func (s *Server) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	baseURL := s.requestBaseURL(r)

	resp := DiscoverResponse{
		FriendlyName:    s.cfg.FriendlyName,
		ModelNumber:     s.cfg.ModelName,
		FirmwareName:    s.cfg.FirmwareName,
		FirmwareVersion: s.cfg.FirmwareName,
		DeviceID:        s.cfg.DeviceID,
		DeviceAuth:      "exstreamtv",
		BaseURL:         baseURL,
		LineupURL:       baseURL + "/lineup.json",
		TunerCount:      s.cfg.TunerCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithComponent("boundary").Error().Err(err).Msg("failed to encode discover.json")
	}
}

// HandleLineupStatus serves /lineup_status.json. Scanning is not a concept
// this boundary has (channels are configured, not tuned), so it always
// reports an idle, ready tuner bank.
func (s *Server) HandleLineupStatus(w http.ResponseWriter, _ *http.Request) {
	resp := LineupStatus{
		ScanInProgress: 0,
		ScanPossible:   1,
		Source:         "Cable",
		SourceList:     []string{"Cable"},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithComponent("boundary").Error().Err(err).Msg("failed to encode lineup_status.json")
	}
}

// HandleLineup serves /lineup.json, built directly from the channel entity
// repository (no on-disk playlist cache: the Registry and channels.Manager
// already hold everything live, so there's nothing to invalidate).
func (s *Server) HandleLineup(w http.ResponseWriter, r *http.Request) {
	baseURL := s.requestBaseURL(r)

	entities := s.channels.All()
	lineup := make([]LineupEntry, 0, len(entities))
	for _, e := range entities {
		lineup = append(lineup, LineupEntry{
			GuideNumber: e.ID,
			GuideName:   e.Name,
			URL:         baseURL + "/channel/" + e.ID + ".ts",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(lineup); err != nil {
		log.WithComponent("boundary").Error().Err(err).Msg("failed to encode lineup.json")
	}
}

// HandleLineupPost serves POST /lineup.json (Plex-style rescan trigger).
// There is nothing to scan: channels are configured, not discovered, so
// this only acknowledges the request.
func (s *Server) HandleLineupPost(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeviceXML serves the UPnP device descriptor SSDP clients fetch
// after an M-SEARCH response points them at it.
func (s *Server) HandleDeviceXML(w http.ResponseWriter, r *http.Request) {
	baseURL := s.requestBaseURL(r)

	doc := deviceXMLRoot{
		XMLNS:       "urn:schemas-upnp-org:device-1-0",
		SpecVersion: deviceXMLSpecVersion{Major: 1, Minor: 0},
		Device: deviceXMLDevice{
			DeviceType:       "urn:schemas-upnp-org:device:MediaServer:1",
			FriendlyName:     s.cfg.FriendlyName,
			Manufacturer:     "exstreamtv",
			ManufacturerURL:  "https://github.com/roto31/exstreamtv",
			ModelDescription: "Virtual TV channel tuner",
			ModelName:        s.cfg.ModelName,
			ModelNumber:      s.cfg.ModelName,
			ModelURL:         "https://github.com/roto31/exstreamtv",
			UDN:              "uuid:" + s.cfg.DeviceID,
			PresentationURL:  baseURL,
		},
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	if err := xml.NewEncoder(w).Encode(doc); err != nil {
		log.WithComponent("boundary").Error().Err(err).Msg("failed to encode device.xml")
	}
}

func (s *Server) requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return s.baseURLFor(scheme, r.Host)
}

// StartSSDP runs the SSDP M-SEARCH responder and periodic NOTIFY
// announcer until ctx is canceled. Disabled deployments (container
// networking without multicast) simply never call this.
func (s *Server) StartSSDP(ctx context.Context) error {
	if !s.cfg.SSDPEnabled {
		return nil
	}
	logger := log.WithComponent("boundary.ssdp")

	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("239.255.255.250:%d", s.cfg.SSDPPort))
	if err != nil {
		return fmt.Errorf("resolve SSDP multicast address: %w", err)
	}

	lc := &net.ListenConfig{}
	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", s.cfg.SSDPPort))
	if err != nil {
		return fmt.Errorf("listen SSDP port %d: %w", s.cfg.SSDPPort, err)
	}

	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		_ = conn.Close()
		return errors.New("SSDP listener is not a UDP connection")
	}
	p := ipv4.NewPacketConn(udpConn)
	_ = p.SetMulticastTTL(2)
	_ = p.SetMulticastLoopback(true)

	ifaces, err := net.Interfaces()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("list network interfaces: %w", err)
	}
	groupIP := net.IPv4(239, 255, 255, 250)
	joined := 0
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := p.JoinGroup(&iface, &net.UDPAddr{IP: groupIP}); err == nil {
			joined++
		}
	}
	if joined == 0 {
		logger.Warn().Msg("SSDP: no multicast-capable interface joined, discovery unavailable")
	}

	go s.handleSSDPRequests(ctx, conn)
	go s.sendPeriodicNotify(ctx, conn, addr)

	<-ctx.Done()
	return conn.Close()
}

func (s *Server) handleSSDPRequests(ctx context.Context, conn net.PacketConn) {
	logger := log.WithComponent("boundary.ssdp")
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}
		n, remoteAddr, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			logger.Debug().Err(err).Msg("SSDP read failed")
			continue
		}
		msg := string(buf[:n])
		if strings.Contains(msg, "M-SEARCH") {
			s.sendSSDPResponse(conn, remoteAddr)
		}
	}
}

func (s *Server) sendSSDPResponse(conn net.PacketConn, addr net.Addr) {
	baseURL := s.cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", s.cfg.SSDPPort)
	}
	response := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\n"+
			"CACHE-CONTROL: max-age=1800\r\n"+
			"EXT:\r\n"+
			"LOCATION: %s/device.xml\r\n"+
			"SERVER: Linux/2.6 UPnP/1.0 exstreamtv/1.0\r\n"+
			"ST: urn:schemas-upnp-org:device:MediaServer:1\r\n"+
			"USN: uuid:%s::urn:schemas-upnp-org:device:MediaServer:1\r\n"+
			"\r\n",
		baseURL, s.cfg.DeviceID,
	)
	_, _ = conn.WriteTo([]byte(response), addr)
}

func (s *Server) sendPeriodicNotify(ctx context.Context, conn net.PacketConn, addr *net.UDPAddr) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	s.sendSSDPNotify(conn, addr)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sendSSDPNotify(conn, addr)
		}
	}
}

func (s *Server) sendSSDPNotify(conn net.PacketConn, addr *net.UDPAddr) {
	baseURL := s.cfg.BaseURL
	if baseURL == "" {
		return
	}
	notify := fmt.Sprintf(
		"NOTIFY * HTTP/1.1\r\n"+
			"HOST: 239.255.255.250:1900\r\n"+
			"CACHE-CONTROL: max-age=1800\r\n"+
			"LOCATION: %s/device.xml\r\n"+
			"NT: urn:schemas-upnp-org:device:MediaServer:1\r\n"+
			"NTS: ssdp:alive\r\n"+
			"SERVER: Linux/2.6 UPnP/1.0 exstreamtv/1.0\r\n"+
			"USN: uuid:%s::urn:schemas-upnp-org:device:MediaServer:1\r\n"+
			"\r\n",
		baseURL, s.cfg.DeviceID,
	)
	_, _ = conn.WriteTo([]byte(notify), addr)
}
