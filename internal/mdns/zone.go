package mdns

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/pageramp/pageramp/internal/logger"
)

const (
	serviceType = "_pageramp._tcp.local."

	recordTTL = 120
)

// PlayerZone answers queries for the player's hostname and for the
// _pageramp._tcp service so phones and laptops can find the upload page
// without knowing the device's DHCP address.
type PlayerZone struct {
	hostname string // fully qualified, e.g. "pageramp.local."
	instance string // service instance name
	port     uint16
	logger   *logger.Logger

	mu  sync.Mutex
	ips []net.IP // test override; nil means use interface addresses
}

// NewPlayerZone creates a zone for the given hostname (with or without the
// .local suffix) and upload server port.
func NewPlayerZone(hostname string, port uint16, log *logger.Logger) *PlayerZone {
	h := strings.TrimSuffix(strings.ToLower(hostname), ".")
	if !strings.HasSuffix(h, ".local") {
		h += ".local"
	}
	h += "."
	return &PlayerZone{
		hostname: h,
		instance: "PagerAmp." + serviceType,
		port:     port,
		logger:   log.WithName("mdns"),
	}
}

// Hostname returns the advertised fully qualified hostname.
func (z *PlayerZone) Hostname() string {
	return z.hostname
}

// SetAddresses overrides interface discovery with a fixed address list.
func (z *PlayerZone) SetAddresses(ips []net.IP) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.ips = ips
}

// Records answers a single mDNS question.
func (z *PlayerZone) Records(q Question) []Record {
	name := strings.ToLower(q.Name)
	if !strings.HasSuffix(name, ".") {
		name += "."
	}

	switch {
	case name == z.hostname:
		return z.addressRecords(q.Type)
	case name == serviceType && q.Type == dnsTypePTR:
		return []Record{&PTR{
			Hdr: RR_Header{Name: serviceType, Type: dnsTypePTR, Class: 1, TTL: recordTTL},
			Ptr: z.instance,
		}}
	case name == strings.ToLower(z.instance):
		return z.serviceRecords(q.Type)
	default:
		return nil
	}
}

func (z *PlayerZone) addressRecords(qtype uint16) []Record {
	var records []Record
	for _, ip := range z.addresses() {
		if v4 := ip.To4(); v4 != nil {
			if qtype == dnsTypeA || qtype == 255 {
				records = append(records, &A{
					Hdr: RR_Header{Name: z.hostname, Type: dnsTypeA, Class: 1, TTL: recordTTL},
					A:   v4,
				})
			}
		} else if qtype == dnsTypeAAAA || qtype == 255 {
			records = append(records, &AAAA{
				Hdr:  RR_Header{Name: z.hostname, Type: dnsTypeAAAA, Class: 1, TTL: recordTTL},
				AAAA: ip.To16(),
			})
		}
	}
	return records
}

func (z *PlayerZone) serviceRecords(qtype uint16) []Record {
	var records []Record
	if qtype == dnsTypeSRV || qtype == 255 {
		records = append(records, &SRV{
			Hdr:    RR_Header{Name: z.instance, Type: dnsTypeSRV, Class: 1, TTL: recordTTL},
			Port:   z.port,
			Target: z.hostname,
		})
	}
	if qtype == dnsTypeTXT || qtype == 255 {
		records = append(records, &TXT{
			Hdr: RR_Header{Name: z.instance, Type: dnsTypeTXT, Class: 1, TTL: recordTTL},
			Txt: []string{fmt.Sprintf("port=%d", z.port), "app=pageramp"},
		})
	}
	return records
}

// addresses returns the IPs to advertise: the override list when set,
// otherwise every global unicast address on an up, non-loopback interface.
func (z *PlayerZone) addresses() []net.IP {
	z.mu.Lock()
	if z.ips != nil {
		ips := z.ips
		z.mu.Unlock()
		return ips
	}
	z.mu.Unlock()

	ifaces, err := net.Interfaces()
	if err != nil {
		z.logger.Debug("Failed to list interfaces", logger.Err(err))
		return nil
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || !ipnet.IP.IsGlobalUnicast() {
				continue
			}
			ips = append(ips, ipnet.IP)
		}
	}
	return ips
}
