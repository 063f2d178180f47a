// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package abi defines the value types shared by the command protocol and plugin code.
package abi

import (
	"encoding/binary"
	"fmt"
)

// Address is an address-sized opaque value returned by the command protocol.
type Address uint64

// Sentinel results.
const (
	// Null is the null/void result.
	Null Address = 0
	// Initialized is returned by a successful Initialize.
	Initialized Address = 0xF
)

// String formats the address as hex.
func (a Address) String() string {
	return fmt.Sprintf("0x%X", uint64(a))
}

// ArgumentSize is the size in bytes of an Execute argument block.
const ArgumentSize = 24

// Argument is an opaque argument block passed to plugin functions uninterpreted.
type Argument [ArgumentSize]byte

// Words views the block as three little-endian uint64 words.
func (a Argument) Words() [3]uint64 {
	return [3]uint64{
		binary.LittleEndian.Uint64(a[0:8]),
		binary.LittleEndian.Uint64(a[8:16]),
		binary.LittleEndian.Uint64(a[16:24]),
	}
}

// ArgumentFromWords packs three words into an argument block.
func ArgumentFromWords(w0, w1, w2 uint64) Argument {
	var a Argument
	binary.LittleEndian.PutUint64(a[0:8], w0)
	binary.LittleEndian.PutUint64(a[8:16], w1)
	binary.LittleEndian.PutUint64(a[16:24], w2)
	return a
}

// ArgumentFromBytes copies up to ArgumentSize bytes into an argument block.
// It returns an error when b is longer than the block.
func ArgumentFromBytes(b []byte) (Argument, error) {
	var a Argument
	if len(b) > ArgumentSize {
		return a, fmt.Errorf("argument is %d bytes, maximum is %d", len(b), ArgumentSize)
	}
	copy(a[:], b)
	return a, nil
}
