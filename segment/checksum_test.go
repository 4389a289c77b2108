package segment

import "testing"

func TestChecksumOddPayloadLength(t *testing.T) {
	seg := Data(1, []byte("odd"))
	buf, err := Encode(seg)
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err := Decode(buf)
	if err != nil || !ok {
		t.Fatalf("odd-length payload checksum failed: ok=%v err=%v", ok, err)
	}
}

func TestChecksumEmptyPayload(t *testing.T) {
	buf, err := Encode(Syn(5))
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err := Decode(buf)
	if err != nil || !ok {
		t.Fatalf("empty-payload checksum failed: ok=%v err=%v", ok, err)
	}
}

func TestChecksum16OfZeroSumIsAllOnes(t *testing.T) {
	// checksum16 on an all-zero sum yields the one's-complement of zero,
	// i.e. 0xFFFF, matching spec.md's accept rule recomputed+stored==0xFFFF
	// when both sides observe an all-zero payload.
	if got := checksum16(0); got != 0xFFFF {
		t.Fatalf("checksum16(0) = %#x, want 0xffff", got)
	}
}
