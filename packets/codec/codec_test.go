// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec_test

import (
	"bytes"
	"testing"

	"github.com/absmach/mqttrpc/packets/codec"
)

func TestUint16RoundTrip(t *testing.T) {
	for _, v := range []uint16{0, 1, 255, 256, 65535} {
		got, err := codec.DecodeUint16(bytes.NewReader(codec.EncodeUint16(v)))
		if err != nil {
			t.Fatalf("DecodeUint16(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d -> %d", v, got)
		}
	}
}

func TestBytesRoundTrip(t *testing.T) {
	for _, v := range [][]byte{nil, {}, []byte("abc"), bytes.Repeat([]byte{0xFF}, 300)} {
		got, err := codec.DecodeBytes(bytes.NewReader(codec.EncodeBytes(v)))
		if err != nil {
			t.Fatalf("DecodeBytes(%v): %v", v, err)
		}
		if !bytes.Equal(got, v) {
			t.Errorf("round trip %v -> %v", v, got)
		}
	}
}

func TestVBIRoundTrip(t *testing.T) {
	// Boundary values for 1 to 4 byte encodings.
	for _, v := range []int{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, 268435455} {
		enc := codec.EncodeVBI(v)
		got, err := codec.DecodeVBI(bytes.NewReader(enc))
		if err != nil {
			t.Fatalf("DecodeVBI(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d -> %d (encoded % x)", v, got, enc)
		}
	}
}

func TestVBIEncodedLength(t *testing.T) {
	tests := []struct {
		v    int
		want int
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{2097152, 4},
	}
	for _, tt := range tests {
		if got := len(codec.EncodeVBI(tt.v)); got != tt.want {
			t.Errorf("EncodeVBI(%d) length = %d, want %d", tt.v, got, tt.want)
		}
	}
}

func TestEncodeVBIClampsOutOfRange(t *testing.T) {
	max := codec.EncodeVBI(codec.MaxVBI)
	for _, v := range []int{-1, codec.MaxVBI + 1, 1 << 40} {
		got := codec.EncodeVBI(v)
		if !bytes.Equal(got, max) {
			t.Errorf("EncodeVBI(%d) = % x, want clamp to % x", v, got, max)
		}
	}
	if len(max) != 4 {
		t.Errorf("EncodeVBI(MaxVBI) length = %d, want 4", len(max))
	}
}

func TestDecodeVBIRejectsOverlong(t *testing.T) {
	// Five continuation bytes exceed the four-byte VBI limit.
	if _, err := codec.DecodeVBI(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x01})); err == nil {
		t.Error("expected error for overlong VBI")
	}
}
