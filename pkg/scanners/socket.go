package scanners

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hostguard/hostguard/pkg/config"
	"github.com/hostguard/hostguard/pkg/report"
)

// tcpStateListen is the kernel's numeric TCP_LISTEN state as it appears in
// /proc/net/tcp.
const tcpStateListen = "0A"

// SocketScanner reports TCP sockets listening on non-loopback addresses,
// read from the proc net tables.
type SocketScanner struct {
	procRoot   string
	maxSockets int
	logger     zerolog.Logger
}

// NewSocketScanner builds the socket scanner from the resolved
// configuration.
func NewSocketScanner(cfg *config.Config) *SocketScanner {
	return &SocketScanner{
		procRoot:   "/proc",
		maxSockets: cfg.Scanners.MaxSockets,
		logger:     log.With().Str("component", "scanners").Str("scanner", "socket").Logger(),
	}
}

func (s *SocketScanner) Name() string { return "socket" }

func (s *SocketScanner) Scan(ctx context.Context, rep *report.Report) error {
	reported := 0
	if err := s.scanTable(ctx, filepath.Join(s.procRoot, "net", "tcp"), "tcp", rep, &reported); err != nil {
		return err
	}

	// tcp6 is absent on IPv4-only kernels and minimal containers.
	path6 := filepath.Join(s.procRoot, "net", "tcp6")
	if err := s.scanTable(ctx, path6, "tcp6", rep, &reported); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *SocketScanner) scanTable(ctx context.Context, path, proto string, rep *report.Report, reported *int) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // header row
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.maxSockets >= 0 && *reported >= s.maxSockets {
			s.logger.Debug().Int("max_sockets", s.maxSockets).Msg("Socket limit reached")
			return nil
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 || fields[3] != tcpStateListen {
			continue
		}
		ip, port, err := parseKernelAddr(fields[1])
		if err != nil {
			s.logger.Warn().Err(err).Str("entry", fields[1]).Msg("Unparseable socket entry")
			continue
		}
		if ip.IsLoopback() {
			continue
		}

		addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
		rep.AddFinding(s.Name(), report.NewFinding(
			fmt.Sprintf("socket/listen/%s/%s", proto, addr),
			"socket listening on a non-loopback address",
			report.SeverityLow,
			fmt.Sprintf("%s listener on %s", proto, addr),
		).
			WithMetadata("proto", proto).
			WithMetadata("address", ip.String()).
			WithMetadata("port", strconv.Itoa(int(port))).
			WithMetadata("uid", fields[7]).
			WithMetadata("inode", fields[9]))
		*reported++
	}
	return scanner.Err()
}

// parseKernelAddr decodes the kernel's hex socket address form
// ("0100007F:1F90"). IPv4 addresses are byte-reversed; IPv6 addresses are
// stored as four little-endian 32-bit groups.
func parseKernelAddr(s string) (net.IP, uint16, error) {
	host, portHex, ok := strings.Cut(s, ":")
	if !ok {
		return nil, 0, fmt.Errorf("no port separator in %q", s)
	}
	port, err := strconv.ParseUint(portHex, 16, 16)
	if err != nil {
		return nil, 0, fmt.Errorf("port %q: %w", portHex, err)
	}
	raw, err := hex.DecodeString(host)
	if err != nil {
		return nil, 0, fmt.Errorf("address %q: %w", host, err)
	}

	switch len(raw) {
	case net.IPv4len:
		return net.IPv4(raw[3], raw[2], raw[1], raw[0]), uint16(port), nil
	case net.IPv6len:
		ip := make(net.IP, net.IPv6len)
		for i := 0; i < net.IPv6len; i += 4 {
			ip[i], ip[i+1], ip[i+2], ip[i+3] = raw[i+3], raw[i+2], raw[i+1], raw[i]
		}
		return ip, uint16(port), nil
	default:
		return nil, 0, fmt.Errorf("address %q has %d bytes", host, len(raw))
	}
}
