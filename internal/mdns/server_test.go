package mdns

import (
	"bytes"
	"net"
	"testing"

	"github.com/pageramp/pageramp/internal/logger"
)

func TestNewServerRequiresZone(t *testing.T) {
	if _, err := NewServer(&Config{Logger: logger.Discard()}); err == nil {
		t.Fatal("expected error for missing zone")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	query := &dnsMessage{
		ID: 0x1234,
		Questions: []dnsQuestion{
			{Name: "pageramp.local", Type: dnsTypeA, Class: 1},
		},
	}
	buf, err := encodeDNSMessage(query)
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := parseDNSMessage(buf)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.ID != 0x1234 || parsed.Response {
		t.Errorf("header mismatch: %+v", parsed)
	}
	if len(parsed.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(parsed.Questions))
	}
	q := parsed.Questions[0]
	if q.Name != "pageramp.local" || q.Type != dnsTypeA || q.Class != 1 {
		t.Errorf("question = %+v", q)
	}
}

func TestParseRejectsShortPacket(t *testing.T) {
	if _, err := parseDNSMessage([]byte{0x00, 0x01, 0x02}); err == nil {
		t.Fatal("expected error for short packet")
	}
}

func TestEncodeName(t *testing.T) {
	tests := []struct {
		name string
		want []byte
	}{
		{"pageramp.local", []byte{8, 'p', 'a', 'g', 'e', 'r', 'a', 'm', 'p', 5, 'l', 'o', 'c', 'a', 'l', 0}},
		{".", []byte{0}},
		{"a.b.", []byte{1, 'a', 1, 'b', 0}},
	}
	for _, tt := range tests {
		if got := encodeName(tt.name); !bytes.Equal(got, tt.want) {
			t.Errorf("encodeName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseNameCompressionPointer(t *testing.T) {
	// Message with a name at offset 12 and a compressed reference to it.
	buf := make([]byte, 12)
	buf = append(buf, encodeName("pageramp.local")...)
	ptrOffset := len(buf)
	buf = append(buf, 0xc0, 12)

	name, next, err := parseName(buf, ptrOffset)
	if err != nil {
		t.Fatal(err)
	}
	if name != "pageramp.local" {
		t.Errorf("name = %q", name)
	}
	if next != ptrOffset+2 {
		t.Errorf("next offset = %d, want %d", next, ptrOffset+2)
	}
}

func TestEncodeTXT(t *testing.T) {
	got := encodeTXT([]string{"port=1337", "app=pageramp"})
	want := append(append([]byte{9}, []byte("port=1337")...),
		append([]byte{12}, []byte("app=pageramp")...)...)
	if !bytes.Equal(got, want) {
		t.Errorf("encodeTXT = %v, want %v", got, want)
	}
}

func TestEncodeSRV(t *testing.T) {
	got := encodeSRV(0, 0, 1337, "pageramp.local.")
	if got[4] != byte(1337>>8) || got[5] != byte(1337&0xff) {
		t.Errorf("port bytes = %v", got[4:6])
	}
	if !bytes.Equal(got[6:], encodeName("pageramp.local.")) {
		t.Errorf("target = %v", got[6:])
	}
}

func TestAnswerQueryUsesZone(t *testing.T) {
	zone := testZone()
	server, err := NewServer(&Config{Zone: zone, Logger: logger.Discard()})
	if err != nil {
		t.Fatal(err)
	}

	query := &dnsMessage{
		ID:        1,
		Questions: []dnsQuestion{{Name: "pageramp.local", Type: dnsTypeA, Class: 1}},
	}
	buf, err := encodeDNSMessage(query)
	if err != nil {
		t.Fatal(err)
	}

	// A local UDP pair stands in for the multicast socket.
	responder, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer responder.Close()
	client, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	clientAddr := client.LocalAddr().(*net.UDPAddr)
	if err := server.handlePacket(buf, clientAddr, responder); err != nil {
		t.Fatal(err)
	}

	out := make([]byte, 1024)
	n, _, err := client.ReadFromUDP(out)
	if err != nil {
		t.Fatal(err)
	}
	response, err := parseDNSMessage(out[:n])
	if err != nil {
		t.Fatal(err)
	}
	if !response.Response {
		t.Error("response flag not set")
	}
	if response.ID != 1 {
		t.Errorf("response ID = %d", response.ID)
	}
}

func TestHandlePacketIgnoresResponses(t *testing.T) {
	zone := testZone()
	server, err := NewServer(&Config{Zone: zone, Logger: logger.Discard()})
	if err != nil {
		t.Fatal(err)
	}

	msg := &dnsMessage{
		ID:        1,
		Response:  true,
		Questions: []dnsQuestion{{Name: "pageramp.local", Type: dnsTypeA, Class: 1}},
	}
	buf, err := encodeDNSMessage(msg)
	if err != nil {
		t.Fatal(err)
	}

	// A response packet must produce no reply; nil conn would panic if the
	// server tried to answer.
	if err := server.handlePacket(buf, nil, nil); err != nil {
		t.Fatal(err)
	}
}
