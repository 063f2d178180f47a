// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package wasmtest assembles small WebAssembly binaries for tests.
package wasmtest

// ValType is a WebAssembly value type.
type ValType byte

// Value types.
const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
)

// Instruction opcodes used by test bodies.
const (
	OpUnreachable = 0x00
	OpIf          = 0x04
	OpEnd         = 0x0B
	OpCall        = 0x10
	OpLocalGet    = 0x20
	OpGlobalSet   = 0x24
	OpI32Const    = 0x41
	OpI64Const    = 0x42
	OpI64Eqz      = 0x50
	BlockEmpty    = 0x40
)

// Import is an imported function.
type Import struct {
	Module  string
	Name    string
	Params  []ValType
	Results []ValType
}

// Func is a defined function. Body holds its instructions without the
// trailing end opcode. Export may be empty.
type Func struct {
	Export  string
	Params  []ValType
	Results []ValType
	Body    []byte
}

// Global is an exported global with a constant initializer.
type Global struct {
	Export  string
	Type    ValType
	Mutable bool
	Value   int64
}

// Data is an active data segment in memory 0.
type Data struct {
	Offset int32
	Bytes  []byte
}

// Module describes a binary to assemble.
type Module struct {
	Name      string
	Imports   []Import
	Functions []Func
	Globals   []Global
	Memory    uint32 // initial pages; zero means no memory
	Data      []Data
}

// Bytes encodes the module.
func (m Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

	var types [][]byte
	for _, imp := range m.Imports {
		types = append(types, funcType(imp.Params, imp.Results))
	}
	for _, fn := range m.Functions {
		types = append(types, funcType(fn.Params, fn.Results))
	}
	if len(types) > 0 {
		out = append(out, section(1, vec(types))...)
	}

	if len(m.Imports) > 0 {
		var entries [][]byte
		for i, imp := range m.Imports {
			e := append(name(imp.Module), name(imp.Name)...)
			e = append(e, 0x00)
			e = append(e, uleb(uint64(i))...)
			entries = append(entries, e)
		}
		out = append(out, section(2, vec(entries))...)
	}

	if len(m.Functions) > 0 {
		var entries [][]byte
		for i := range m.Functions {
			entries = append(entries, uleb(uint64(len(m.Imports)+i)))
		}
		out = append(out, section(3, vec(entries))...)
	}

	if m.Memory > 0 {
		limits := append([]byte{0x00}, uleb(uint64(m.Memory))...)
		out = append(out, section(5, vec([][]byte{limits}))...)
	}

	if len(m.Globals) > 0 {
		var entries [][]byte
		for _, g := range m.Globals {
			e := []byte{byte(g.Type), 0x00}
			if g.Mutable {
				e[1] = 0x01
			}
			if g.Type == I64 {
				e = append(e, OpI64Const)
			} else {
				e = append(e, OpI32Const)
			}
			e = append(e, sleb(g.Value)...)
			e = append(e, OpEnd)
			entries = append(entries, e)
		}
		out = append(out, section(6, vec(entries))...)
	}

	var exports [][]byte
	for i, fn := range m.Functions {
		if fn.Export == "" {
			continue
		}
		e := append(name(fn.Export), 0x00)
		exports = append(exports, append(e, uleb(uint64(len(m.Imports)+i))...))
	}
	for i, g := range m.Globals {
		if g.Export == "" {
			continue
		}
		e := append(name(g.Export), 0x03)
		exports = append(exports, append(e, uleb(uint64(i))...))
	}
	if len(exports) > 0 {
		out = append(out, section(7, vec(exports))...)
	}

	if len(m.Functions) > 0 {
		var bodies [][]byte
		for _, fn := range m.Functions {
			body := append([]byte{0x00}, fn.Body...)
			body = append(body, OpEnd)
			bodies = append(bodies, append(uleb(uint64(len(body))), body...))
		}
		out = append(out, section(10, vec(bodies))...)
	}

	if len(m.Data) > 0 {
		var segments [][]byte
		for _, d := range m.Data {
			s := []byte{0x00, OpI32Const}
			s = append(s, sleb(int64(d.Offset))...)
			s = append(s, OpEnd)
			s = append(s, uleb(uint64(len(d.Bytes)))...)
			segments = append(segments, append(s, d.Bytes...))
		}
		out = append(out, section(11, vec(segments))...)
	}

	if m.Name != "" {
		sub := name(m.Name)
		payload := append(name("name"), 0x00)
		payload = append(payload, uleb(uint64(len(sub)))...)
		payload = append(payload, sub...)
		out = append(out, section(0, payload)...)
	}

	return out
}

// TrapOnZero is a body for a function whose first parameter is an i64: it traps
// when that parameter is zero and returns otherwise.
func TrapOnZero() []byte {
	return []byte{OpLocalGet, 0x00, OpI64Eqz, OpIf, BlockEmpty, OpUnreachable, OpEnd}
}

// CallLog is a body calling the imported function at index fn with
// (level, offset, length) as i32 constants.
func CallLog(fn uint32, level, offset, length int32) []byte {
	b := []byte{OpI32Const}
	b = append(b, sleb(int64(level))...)
	b = append(b, OpI32Const)
	b = append(b, sleb(int64(offset))...)
	b = append(b, OpI32Const)
	b = append(b, sleb(int64(length))...)
	b = append(b, OpCall)
	return append(b, uleb(uint64(fn))...)
}

func funcType(params, results []ValType) []byte {
	b := []byte{0x60}
	b = append(b, uleb(uint64(len(params)))...)
	for _, p := range params {
		b = append(b, byte(p))
	}
	b = append(b, uleb(uint64(len(results)))...)
	for _, r := range results {
		b = append(b, byte(r))
	}
	return b
}

func section(id byte, payload []byte) []byte {
	b := []byte{id}
	b = append(b, uleb(uint64(len(payload)))...)
	return append(b, payload...)
}

func vec(items [][]byte) []byte {
	b := uleb(uint64(len(items)))
	for _, item := range items {
		b = append(b, item...)
	}
	return b
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func uleb(v uint64) []byte {
	var b []byte
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

func sleb(v int64) []byte {
	var b []byte
	for {
		c := byte(v & 0x7F)
		v >>= 7
		done := (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0)
		if !done {
			c |= 0x80
		}
		b = append(b, c)
		if done {
			return b
		}
	}
}
