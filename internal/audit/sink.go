package audit

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// Origin identifies the machine and program that produced a record.
type Origin struct {
	Host       string
	IP         string
	MAC        string
	App        string
	AppVersion string
}

// DetectOrigin inspects the local network interfaces. Lookups that fail
// are recorded as "unknown" rather than failing the caller.
func DetectOrigin(app, version string) Origin {
	origin := Origin{
		Host:       "unknown",
		IP:         "unknown",
		MAC:        "unknown",
		App:        app,
		AppVersion: version,
	}

	if host, err := os.Hostname(); err == nil {
		origin.Host = host
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return origin
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			origin.IP = ipNet.IP.String()
			if len(iface.HardwareAddr) > 0 {
				origin.MAC = iface.HardwareAddr.String()
			}
			return origin
		}
	}
	return origin
}

// LogSink writes one JSON line per record.
type LogSink struct {
	logger *slog.Logger
	origin Origin
	now    func() time.Time
}

func NewLogSink(w io.Writer, origin Origin) *LogSink {
	return &LogSink{
		logger: slog.New(slog.NewJSONHandler(w, nil)),
		origin: origin,
		now:    time.Now,
	}
}

func (s *LogSink) Record(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if event.Reason == "" {
		event.Reason = NoReason
	}

	attrs := []slog.Attr{
		slog.String("who", event.Teller),
		slog.String("account_number", event.AccountNumber),
		slog.String("holder", event.HolderName),
		slog.String("what", event.Action),
		slog.Time("when", event.Timestamp),
		s.where(),
		slog.String("why", event.Reason),
		s.how(),
	}
	if event.Amount != "" {
		attrs = append(attrs, slog.String("amount", event.Amount))
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "TRANSACTION RECORD", attrs...)
	return nil
}

func (s *LogSink) SecurityEvent(ctx context.Context, message string) error {
	s.logger.LogAttrs(ctx, slog.LevelWarn, "SECURITY ALERT",
		slog.String("message", message),
		slog.Time("when", s.now()),
		s.where(),
		s.how(),
	)
	return nil
}

func (s *LogSink) where() slog.Attr {
	return slog.Group("where",
		slog.String("host", s.origin.Host),
		slog.String("ip", s.origin.IP),
		slog.String("mac", s.origin.MAC),
	)
}

func (s *LogSink) how() slog.Attr {
	return slog.Group("how",
		slog.String("app", s.origin.App),
		slog.String("version", s.origin.AppVersion),
	)
}

// MemorySink keeps records in memory.
type MemorySink struct {
	mu       sync.Mutex
	events   []Event
	security []string
}

func (m *MemorySink) Record(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemorySink) SecurityEvent(_ context.Context, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.security = append(m.security, message)
	return nil
}

func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *MemorySink) SecurityEvents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.security...)
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*MemorySink)(nil)
)
