package codec

import (
	"bytes"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestBytesRoundTrip(t *testing.T) {
	c := Bytes()
	in := []byte{0x01, 0x02, 0x03}
	out, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	decoded, err := c.Decode(out)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if !bytes.Equal(in, decoded) {
		t.Fatalf("round trip mismatch: %v != %v", in, decoded)
	}
}

func TestStringRoundTrip(t *testing.T) {
	c := String()
	out, err := c.Encode("hello")
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	decoded, err := c.Decode(out)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if decoded != "hello" {
		t.Fatalf("got %q", decoded)
	}
}

func TestStringRejectsInvalidUTF8(t *testing.T) {
	c := String()
	if _, err := c.Decode([]byte{0xff, 0xfe, 0xfd}); err == nil {
		t.Fatal("expected error decoding invalid utf-8")
	}
}

func TestJSONMapRoundTrip(t *testing.T) {
	c := JSONMap()
	in := map[string]any{"a": float64(1), "b": "two"}
	out, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	decoded, err := c.Decode(out)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if decoded["a"] != float64(1) || decoded["b"] != "two" {
		t.Fatalf("got %v", decoded)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	c, err := Record[sample]()
	if err != nil {
		t.Fatalf("Record: %s", err)
	}
	in := sample{Name: "widget", Count: 3}
	out, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	decoded, err := c.Decode(out)
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if decoded != in {
		t.Fatalf("got %+v want %+v", decoded, in)
	}
}

func TestRecordRejectsMalformedPayload(t *testing.T) {
	c, err := Record[sample]()
	if err != nil {
		t.Fatalf("Record: %s", err)
	}
	if _, err := c.Decode([]byte(`{"name": 123, "count": "not-a-number"}`)); err == nil {
		t.Fatal("expected schema validation error")
	}
}
