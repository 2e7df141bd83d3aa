// Package gdm discovers Plex Media Servers on the local network using the
// GDM multicast protocol.
package gdm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/ipv4"
)

const (
	gdmMulticastAddr = "239.0.0.250:32414"
	maxDatagramSize  = 8192
	searchMessage    = "M-SEARCH * HTTP/1.1\r\n\r\n"
	serverType       = "plex/media-server"
)

// Server is a Plex Media Server that answered a GDM search.
type Server struct {
	ResourceID string `json:"resource_id"`
	Name       string `json:"name"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Version    string `json:"version,omitempty"`
}

// URL returns the base URL of the server's HTTP API.
func (s Server) URL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
}

// Discover sends one GDM search and collects responses until timeout or ctx
// ends. Servers that answer more than once are reported once.
func Discover(ctx context.Context, timeout time.Duration, logger *slog.Logger) ([]Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gdm")

	group, err := net.ResolveUDPAddr("udp4", gdmMulticastAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve GDM multicast address: %w", err)
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to open GDM socket: %w", err)
	}
	defer conn.Close()

	packetConn := ipv4.NewPacketConn(conn)
	if err := packetConn.SetMulticastTTL(2); err != nil {
		logger.Warn("Failed to set GDM multicast TTL", "error", err)
	}
	if err := packetConn.SetMulticastLoopback(true); err != nil {
		logger.Warn("Failed to enable GDM multicast loopback", "error", err)
	}

	if _, err := packetConn.WriteTo([]byte(searchMessage), nil, group); err != nil {
		return nil, fmt.Errorf("failed to send GDM search: %w", err)
	}
	logger.Debug("Sent GDM search", "group", gdmMulticastAddr)

	deadline := time.Now().Add(timeout)
	found := make(map[string]Server)
	buffer := make([]byte, maxDatagramSize)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		readDeadline := time.Now().Add(500 * time.Millisecond)
		if readDeadline.After(deadline) {
			readDeadline = deadline
		}
		_ = packetConn.SetReadDeadline(readDeadline)

		n, _, src, err := packetConn.ReadFrom(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return sortedServers(found), fmt.Errorf("GDM read error: %w", err)
		}

		server, ok := parseResponse(buffer[:n], src)
		if !ok {
			continue
		}
		if _, seen := found[server.ResourceID]; !seen {
			logger.Info("Discovered Plex server", "name", server.Name, "url", server.URL(), "id", server.ResourceID)
		}
		found[server.ResourceID] = server
	}

	return sortedServers(found), nil
}

func sortedServers(found map[string]Server) []Server {
	servers := make([]Server, 0, len(found))
	for _, s := range found {
		servers = append(servers, s)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ResourceID < servers[j].ResourceID })
	return servers
}

// parseResponse decodes a GDM reply. Replies from anything other than a
// media server are ignored.
func parseResponse(data []byte, src net.Addr) (Server, bool) {
	resp := string(data)
	if !strings.HasPrefix(resp, "HTTP/1.0 200") && !strings.HasPrefix(resp, "HTTP/1.1 200") {
		return Server{}, false
	}
	if getHeader(resp, "Content-Type") != serverType {
		return Server{}, false
	}

	id := getHeader(resp, "Resource-Identifier")
	if id == "" {
		return Server{}, false
	}
	port, err := strconv.Atoi(getHeader(resp, "Port"))
	if err != nil || port <= 0 {
		port = 32400
	}

	host := ""
	if udp, ok := src.(*net.UDPAddr); ok {
		host = udp.IP.String()
	} else if src != nil {
		host, _, _ = net.SplitHostPort(src.String())
	}

	return Server{
		ResourceID: id,
		Name:       getHeader(resp, "Name"),
		Host:       host,
		Port:       port,
		Version:    getHeader(resp, "Version"),
	}, true
}

func getHeader(resp, header string) string {
	prefix := strings.ToUpper(header) + ":"
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(strings.ToUpper(line), prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}
