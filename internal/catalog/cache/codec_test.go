package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type codecTestProduct struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := JSONCodec{}
	original := codecTestProduct{ID: 1, Name: "Trail Running Shoe", Price: "89.99"}

	payload, err := codec.Encode(original)
	require.NoError(t, err)

	var target codecTestProduct
	decoded, err := codec.Decode(payload, &target)
	require.NoError(t, err)
	require.Equal(t, &original, decoded)
	require.Equal(t, original, target)
}

func TestJSONCodecRoundTripSlice(t *testing.T) {
	codec := JSONCodec{}
	original := []codecTestProduct{
		{ID: 1, Name: "Trail Running Shoe", Price: "89.99"},
		{ID: 2, Name: "Carbon Road Bike Frame", Price: "1899.00"},
	}

	payload, err := codec.Encode(original)
	require.NoError(t, err)

	var target []codecTestProduct
	decoded, err := codec.Decode(payload, &target)
	require.NoError(t, err)
	require.Equal(t, original, *decoded.(*[]codecTestProduct))
}

func TestJSONCodecDecodeNilTargetIsCodecError(t *testing.T) {
	codec := JSONCodec{}
	_, err := codec.Decode([]byte(`{}`), nil)
	require.ErrorIs(t, err, ErrCodec)
}

func TestJSONCodecDecodeMalformedPayloadIsCodecError(t *testing.T) {
	codec := JSONCodec{}
	var target codecTestProduct
	_, err := codec.Decode([]byte(`not json`), &target)
	require.ErrorIs(t, err, ErrCodec)
}

func TestJSONCodecDecodeToleratesUnknownFields(t *testing.T) {
	codec := JSONCodec{}
	payload := []byte(`{"id":1,"name":"Trail Running Shoe","price":"89.99","futureField":"added-by-a-newer-writer"}`)

	var target codecTestProduct
	decoded, err := codec.Decode(payload, &target)
	require.NoError(t, err)
	require.Equal(t, codecTestProduct{ID: 1, Name: "Trail Running Shoe", Price: "89.99"}, *decoded.(*codecTestProduct))
}

func TestJSONCodecEncodeIsDeterministicAcrossCalls(t *testing.T) {
	codec := JSONCodec{}
	value := codecTestProduct{ID: 1, Name: "Trail Running Shoe", Price: "89.99"}

	first, err := codec.Encode(value)
	require.NoError(t, err)
	second, err := codec.Encode(value)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
