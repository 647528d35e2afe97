package grpcexchange

import "testing"

func TestRawCodecRoundTrip(t *testing.T) {
	t.Parallel()

	c := rawCodec{}
	want := []byte(`{"opcode":"status"}`)

	data, err := c.Marshal(RawMessage{Raw: want})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != string(want) {
		t.Errorf("Marshal = %q, want %q", data, want)
	}

	var got RawMessage
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(got.Raw) != string(want) {
		t.Errorf("Unmarshal round trip = %q, want %q", got.Raw, want)
	}
}

func TestRawCodecRejectsUnsupportedType(t *testing.T) {
	t.Parallel()

	c := rawCodec{}
	if _, err := c.Marshal("not a raw message"); err == nil {
		t.Error("expected Marshal to reject a non-RawMessage value")
	}
	var notRaw int
	if err := c.Unmarshal([]byte("x"), &notRaw); err == nil {
		t.Error("expected Unmarshal to reject a non-*RawMessage target")
	}
}

func TestRawCodecName(t *testing.T) {
	t.Parallel()
	if (rawCodec{}).Name() != codecName {
		t.Errorf("Name() = %q, want %q", rawCodec{}.Name(), codecName)
	}
}
