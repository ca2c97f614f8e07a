// Package rewrite edits the import section of WebAssembly binaries.
//
// Every instance of a compiled module gets its own host modules, so the
// import module names of each instance are renamed to names unique within the
// runtime before instantiation:
//
//	out, err := rewrite.RenameImportModules(wasm, func(m string) string {
//		return prefix + "/" + m
//	})
//
// This package is internal to wasmmodule and should not be used directly.
package rewrite

import (
	"fmt"
)

const (
	sectionImport = 0x02
	headerSize    = 8
)

// RenameImportModules returns a copy of wasm with every import module name m
// replaced by rename(m). Sections other than the import section are copied
// unchanged.
func RenameImportModules(wasm []byte, rename func(string) string) ([]byte, error) {
	if len(wasm) < headerSize {
		return nil, fmt.Errorf("wasm binary too short: %d bytes", len(wasm))
	}

	idx := headerSize
	result := make([]byte, 0, len(wasm)+64)
	result = append(result, wasm[:idx]...)

	for idx < len(wasm) {
		sectionID := wasm[idx]
		idx++

		sectionSize, n := DecodeULEB128(wasm[idx:])
		if n == 0 {
			return nil, fmt.Errorf("truncated size of section %d", sectionID)
		}
		sizeBytes := wasm[idx : idx+n]
		idx += n

		start := idx
		end := idx + int(sectionSize)
		if end > len(wasm) {
			return nil, fmt.Errorf("section %d overruns binary", sectionID)
		}

		if sectionID == sectionImport {
			section, err := renameImportSection(wasm[start:end], rename)
			if err != nil {
				return nil, err
			}
			result = append(result, sectionID)
			result = append(result, EncodeULEB128(uint32(len(section)))...)
			result = append(result, section...)
		} else {
			result = append(result, sectionID)
			result = append(result, sizeBytes...)
			result = append(result, wasm[start:end]...)
		}
		idx = end
	}

	return result, nil
}

// reader walks a section with bounds checks.
type reader struct {
	data []byte
	idx  int
	err  error
}

func (r *reader) u32() (uint32, []byte) {
	if r.err != nil {
		return 0, nil
	}
	v, n := DecodeULEB128(r.data[r.idx:])
	if n == 0 {
		r.err = fmt.Errorf("truncated integer at offset %d", r.idx)
		return 0, nil
	}
	raw := r.data[r.idx : r.idx+n]
	r.idx += n
	return v, raw
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.idx+n > len(r.data) {
		r.err = fmt.Errorf("truncated import section at offset %d", r.idx)
		return nil
	}
	b := r.data[r.idx : r.idx+n]
	r.idx += n
	return b
}

func (r *reader) readByte() byte {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func renameImportSection(section []byte, rename func(string) string) ([]byte, error) {
	r := &reader{data: section}
	result := make([]byte, 0, len(section)+64)

	numImports, raw := r.u32()
	result = append(result, raw...)

	for i := uint32(0); i < numImports && r.err == nil; i++ {
		modLen, _ := r.u32()
		mod := string(r.bytes(int(modLen)))
		renamed := rename(mod)
		result = append(result, EncodeULEB128(uint32(len(renamed)))...)
		result = append(result, renamed...)

		nameLen, raw := r.u32()
		result = append(result, raw...)
		result = append(result, r.bytes(int(nameLen))...)

		start := r.idx
		kind := r.readByte()
		switch kind {
		case 0x00: // func: type index
			r.u32()
		case 0x01: // table: reftype, limits
			r.readByte()
			readLimits(r)
		case 0x02: // memory: limits
			readLimits(r)
		case 0x03: // global: valtype, mutability
			r.bytes(2)
		case 0x04: // tag: attribute, type index
			r.readByte()
			r.u32()
		default:
			if r.err == nil {
				r.err = fmt.Errorf("unknown import kind 0x%02x", kind)
			}
		}
		if r.err == nil {
			result = append(result, section[start:r.idx]...)
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	return result, nil
}

func readLimits(r *reader) {
	flags := r.readByte()
	r.u32()
	if flags&0x01 != 0 {
		r.u32()
	}
}
