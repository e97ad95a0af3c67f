package canaddr

import "testing"

func TestPackUnpackBijection(t *testing.T) {
	for srcAddr := 0; srcAddr < 256; srcAddr += 37 {
		for srcPort := 0; srcPort < 64; srcPort += 9 {
			for dstAddr := 0; dstAddr < 256; dstAddr += 53 {
				for dstPort := 0; dstPort < 64; dstPort += 11 {
					src := Endpoint{Addr: Addr(srcAddr), Port: Port(srcPort)}
					dst := Endpoint{Addr: Addr(dstAddr), Port: Port(dstPort)}
					id := PackID(src, dst)
					gotSrc, gotDst := UnpackID(id)
					if gotSrc != src || gotDst != dst {
						t.Fatalf("UnpackID(PackID(%+v, %+v)) = %+v, %+v", src, dst, gotSrc, gotDst)
					}
				}
			}
		}
	}
}

func TestEndpointStringParseRoundTrip(t *testing.T) {
	ep := Endpoint{Addr: 0x01, Port: 0x2a}
	s := ep.String()
	if s != "01:2a" {
		t.Fatalf("String() = %q, want 01:2a", s)
	}
	got, err := ParseEndpoint(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != ep {
		t.Fatalf("ParseEndpoint(%q) = %+v, want %+v", s, got, ep)
	}
}

func TestParseEndpointRejectsOversizedPort(t *testing.T) {
	if _, err := ParseEndpoint("01:7f"); err == nil {
		t.Fatal("expected error for port exceeding 6 bits")
	}
}

func TestParseEndpointRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "0102", "gg:00", "00:gg"} {
		if _, err := ParseEndpoint(s); err == nil {
			t.Fatalf("ParseEndpoint(%q): expected error", s)
		}
	}
}

func TestNewPacketRejectsOversizedPayload(t *testing.T) {
	_, err := NewPacket(Endpoint{}, Endpoint{}, make([]byte, MaxPayload+1))
	if err == nil {
		t.Fatal("expected error for payload exceeding MaxPayload")
	}
}

func TestPacketCloneIsIndependent(t *testing.T) {
	p, err := NewPacket(Endpoint{Addr: 1, Port: 2}, Endpoint{Addr: 3, Port: 4}, []byte{0xAA})
	if err != nil {
		t.Fatal(err)
	}
	clone := p.Clone()
	clone.Payload[0] = 0xBB
	if p.Payload[0] != 0xAA {
		t.Fatal("mutating clone's payload affected the original")
	}
	if !p.Equal(p.Clone()) {
		t.Fatal("Equal should hold between a packet and its own clone")
	}
}

func TestPacketIDMatchesSpecFormula(t *testing.T) {
	src := Endpoint{Addr: 0x01, Port: 0x02}
	dst := Endpoint{Addr: 0x03, Port: 0x04}
	p, err := NewPacket(src, dst, []byte{0xAA})
	if err != nil {
		t.Fatal(err)
	}
	want := uint32(0x02&0x3f)<<23 | uint32(0x04&0x30)<<17 | uint32(0x04&0x0f)<<16 | uint32(0x01)<<8 | uint32(0x03)
	if p.ID() != want {
		t.Fatalf("ID() = %#x, want %#x", p.ID(), want)
	}
}
