package segment

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Segment{
		Syn(12345),
		Ack(99),
		SynAck(1, 2),
		Fin(),
		FinAck(),
		Data(42, []byte("hello")),
		Data(42, nil),
		Data(1, bytes.Repeat([]byte{0xAB}, MaxPayload)),
	}
	for _, want := range cases {
		buf, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%v): %v", want, err)
		}
		got, ok, err := Decode(buf)
		if err != nil {
			t.Fatalf("Decode: unexpected error %v", err)
		}
		if !ok {
			t.Fatalf("Decode(%v) checksum invalid", want)
		}
		if want.Payload == nil {
			want.Payload = []byte{}
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestDecodeMalformedSegment(t *testing.T) {
	_, _, err := Decode(make([]byte, 11))
	if err != ErrMalformedSegment {
		t.Fatalf("Decode(11 bytes) err = %v, want ErrMalformedSegment", err)
	}
}

func TestDecodeDetectsBitFlips(t *testing.T) {
	buf, err := Encode(Data(7, []byte("the quick brown fox")))
	if err != nil {
		t.Fatal(err)
	}
	for i := range buf {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), buf...)
			mutated[i] ^= 1 << bit
			_, ok, err := Decode(mutated)
			if err != nil {
				t.Fatalf("Decode: unexpected error %v", err)
			}
			if ok {
				t.Errorf("single bit flip at byte %d bit %d went undetected", i, bit)
			}
		}
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(Data(0, make([]byte, MaxPayload+1)))
	if err != ErrPayloadTooLarge {
		t.Fatalf("Encode oversized payload err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestMetadataSegment(t *testing.T) {
	seg, err := Metadata(3, map[string]string{"filename": "report", "extension": "pdf"})
	if err != nil {
		t.Fatal(err)
	}
	if seg.SeqNum != 3 {
		t.Fatalf("SeqNum = %d, want 3", seg.SeqNum)
	}
	if !bytes.Contains(seg.Payload, []byte(`"filename":"report"`)) {
		t.Fatalf("unexpected metadata payload: %s", seg.Payload)
	}
}

func TestFlagsString(t *testing.T) {
	cases := map[Flags]string{
		0:                    "[]",
		FlagSYN:              "[SYN]",
		FlagACK:              "[ACK]",
		FlagFIN:              "[FIN]",
		FlagSYN | FlagACK:    "[SYN,ACK]",
		FlagFIN | FlagACK:    "[FIN,ACK]",
		FlagSYN | FlagFIN:    "[SYN,FIN]",
	}
	for f, want := range cases {
		if got := f.String(); got != want {
			t.Errorf("Flags(%08b).String() = %q, want %q", f, got, want)
		}
	}
}
