package mdns

import (
	"net"
	"testing"

	"github.com/pageramp/pageramp/internal/logger"
)

func testZone() *PlayerZone {
	z := NewPlayerZone("pageramp", 1337, logger.Discard())
	z.SetAddresses([]net.IP{
		net.ParseIP("192.168.1.42"),
		net.ParseIP("fe80::1234"),
	})
	return z
}

func TestZoneHostnameNormalization(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"pageramp", "pageramp.local."},
		{"pageramp.local", "pageramp.local."},
		{"pageramp.local.", "pageramp.local."},
		{"PagerAmp", "pageramp.local."},
	}
	for _, tt := range tests {
		z := NewPlayerZone(tt.in, 1337, logger.Discard())
		if got := z.Hostname(); got != tt.want {
			t.Errorf("NewPlayerZone(%q).Hostname() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestZoneAnswersARecord(t *testing.T) {
	z := testZone()
	records := z.Records(Question{Name: "pageramp.local.", Type: dnsTypeA, Class: 1})
	if len(records) != 1 {
		t.Fatalf("expected 1 A record, got %d", len(records))
	}
	a, ok := records[0].(*A)
	if !ok {
		t.Fatalf("expected *A, got %T", records[0])
	}
	if !a.A.Equal(net.ParseIP("192.168.1.42")) {
		t.Errorf("A = %s", a.A)
	}
	if a.Hdr.Name != "pageramp.local." {
		t.Errorf("record name = %q", a.Hdr.Name)
	}
}

func TestZoneAnswersAAAARecord(t *testing.T) {
	z := testZone()
	records := z.Records(Question{Name: "pageramp.local.", Type: dnsTypeAAAA, Class: 1})
	if len(records) != 1 {
		t.Fatalf("expected 1 AAAA record, got %d", len(records))
	}
	if _, ok := records[0].(*AAAA); !ok {
		t.Fatalf("expected *AAAA, got %T", records[0])
	}
}

func TestZoneCaseInsensitiveAndSuffixTolerant(t *testing.T) {
	z := testZone()
	for _, name := range []string{"PAGERAMP.LOCAL.", "pageramp.local", "PagerAmp.Local."} {
		if records := z.Records(Question{Name: name, Type: dnsTypeA, Class: 1}); len(records) != 1 {
			t.Errorf("query %q returned %d records, want 1", name, len(records))
		}
	}
}

func TestZoneIgnoresForeignNames(t *testing.T) {
	z := testZone()
	for _, name := range []string{"other.local.", "pageramp.example.com.", ""} {
		if records := z.Records(Question{Name: name, Type: dnsTypeA, Class: 1}); len(records) != 0 {
			t.Errorf("query %q returned records: %v", name, records)
		}
	}
}

func TestZoneServiceDiscovery(t *testing.T) {
	z := testZone()

	ptrs := z.Records(Question{Name: serviceType, Type: dnsTypePTR, Class: 1})
	if len(ptrs) != 1 {
		t.Fatalf("expected 1 PTR record, got %d", len(ptrs))
	}
	ptr := ptrs[0].(*PTR)
	if ptr.Ptr != "PagerAmp."+serviceType {
		t.Errorf("PTR target = %q", ptr.Ptr)
	}

	srvs := z.Records(Question{Name: ptr.Ptr, Type: dnsTypeSRV, Class: 1})
	if len(srvs) != 1 {
		t.Fatalf("expected 1 SRV record, got %d", len(srvs))
	}
	srv := srvs[0].(*SRV)
	if srv.Port != 1337 || srv.Target != "pageramp.local." {
		t.Errorf("SRV = %+v", srv)
	}

	txts := z.Records(Question{Name: ptr.Ptr, Type: dnsTypeTXT, Class: 1})
	if len(txts) != 1 {
		t.Fatalf("expected 1 TXT record, got %d", len(txts))
	}
}

func TestZoneAnyQueryReturnsBothFamilies(t *testing.T) {
	z := testZone()
	records := z.Records(Question{Name: "pageramp.local.", Type: 255, Class: 1})
	if len(records) != 2 {
		t.Fatalf("expected A + AAAA for ANY query, got %d", len(records))
	}
}
