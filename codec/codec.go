// Package codec (de)serializes cached payloads to and from the bytes kept by a
// provider. The store records each entry's Go type and decodes into a fresh
// value of that type on every read, so codecs work on runtime-typed values.
package codec

// Codec encodes values to []byte for storage and decodes them into dst,
// which is always a non-nil pointer.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte, dst any) error
}
