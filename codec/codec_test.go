package codec

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

type item struct {
	ID       string         `json:"id"`
	Quantity *float64       `json:"quantity"`
	Tags     []string       `json:"tags"`
	Extra    map[string]any `json:"extra,omitempty"`
}

func qty(f float64) *float64 { return &f }

func roundTrip(t *testing.T, c Codec, in item) item {
	t.Helper()
	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out item
	if err := c.Decode(b, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestCodecsPreserveTypedFields(t *testing.T) {
	in := item{ID: "p1", Quantity: qty(500), Tags: []string{"dairy"}}
	for name, c := range map[string]Codec{
		"json":    JSON{},
		"cbor":    MustCBOR(false),
		"cbordet": MustCBOR(true),
		"msgpack": Msgpack{},
	} {
		out := roundTrip(t, c, in)
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("%s: got %+v want %+v", name, out, in)
		}
	}
}

func TestCBORNilAndEmptySlicesStayDistinct(t *testing.T) {
	c := MustCBOR(false)
	nilOut := roundTrip(t, c, item{ID: "a"})
	if nilOut.Tags != nil {
		t.Fatalf("nil slice decoded as %#v", nilOut.Tags)
	}
	emptyOut := roundTrip(t, c, item{ID: "a", Tags: []string{}})
	if emptyOut.Tags == nil || len(emptyOut.Tags) != 0 {
		t.Fatalf("empty slice decoded as %#v", emptyOut.Tags)
	}
}

func TestCBORNestedMapsDecodeWithStringKeys(t *testing.T) {
	c := MustCBOR(false)
	out := roundTrip(t, c, item{ID: "a", Extra: map[string]any{"n": map[string]any{"k": "v"}}})
	inner, ok := out.Extra["n"].(map[string]any)
	if !ok {
		t.Fatalf("nested map type = %T", out.Extra["n"])
	}
	if inner["k"] != "v" {
		t.Fatalf("nested value = %v", inner["k"])
	}
}

func TestCBORDeterministicIgnoresMapOrder(t *testing.T) {
	c := MustCBOR(true)
	a, err := c.Encode(map[string]any{"b": 1, "a": 2, "c": 3})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		b, err := c.Encode(map[string]any{"c": 3, "a": 2, "b": 1})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("deterministic encoding differs: %x vs %x", a, b)
		}
	}
}

func TestLimitRejectsOversizedPayload(t *testing.T) {
	c := Limit{Inner: JSON{}, MaxDecode: 8}
	b, err := c.Encode(item{ID: strings.Repeat("x", 32)})
	if err != nil {
		t.Fatal(err)
	}
	var out item
	if err := c.Decode(b, &out); err == nil {
		t.Fatalf("expected size error for %d bytes", len(b))
	}

	unlimited := Limit{Inner: JSON{}}
	if err := unlimited.Decode(b, &out); err != nil {
		t.Fatalf("unlimited decode: %v", err)
	}
}
