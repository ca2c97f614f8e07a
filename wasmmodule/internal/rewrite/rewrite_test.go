package rewrite

import (
	"bytes"
	"testing"
)

var testMagicVersion = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// importsAnswer imports "./a"."answer" and exports "double".
func importsAnswer() []byte {
	wasm := append([]byte{}, testMagicVersion...)
	wasm = append(wasm,
		0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f, // type section
		0x02, 0x0e, 0x01, 0x03, '.', '/', 'a', 0x06, 'a', 'n', 's', 'w', 'e', 'r', 0x00, 0x00, // import section
		0x03, 0x02, 0x01, 0x00, // function section
		0x07, 0x0a, 0x01, 0x06, 'd', 'o', 'u', 'b', 'l', 'e', 0x00, 0x01, // export section
		0x0a, 0x09, 0x01, 0x07, 0x00, 0x10, 0x00, 0x41, 0x02, 0x6c, 0x0b, // code section
	)
	return wasm
}

func TestRenameImportModules(t *testing.T) {
	wasm := importsAnswer()
	out, err := RenameImportModules(wasm, func(m string) string { return "x/" + m })
	if err != nil {
		t.Fatalf("RenameImportModules: %v", err)
	}

	wantImport := []byte{0x02, 0x10, 0x01, 0x05, 'x', '/', '.', '/', 'a', 0x06, 'a', 'n', 's', 'w', 'e', 'r', 0x00, 0x00}
	if !bytes.Contains(out, wantImport) {
		t.Errorf("rewritten import section not found in %x", out)
	}
	if len(out) != len(wasm)+2 {
		t.Errorf("len = %d, want %d", len(out), len(wasm)+2)
	}
	if !bytes.HasPrefix(out, testMagicVersion) {
		t.Error("header changed")
	}
	if !bytes.HasSuffix(out, wasm[len(wasm)-11:]) {
		t.Error("code section changed")
	}
}

func TestRenameImportModules_Identity(t *testing.T) {
	wasm := importsAnswer()
	out, err := RenameImportModules(wasm, func(m string) string { return m })
	if err != nil {
		t.Fatalf("RenameImportModules: %v", err)
	}
	if !bytes.Equal(out, wasm) {
		t.Errorf("identity rename changed the binary:\n got %x\nwant %x", out, wasm)
	}
}

func TestRenameImportModules_OtherKinds(t *testing.T) {
	wasm := append([]byte{}, testMagicVersion...)
	section := []byte{
		0x03,
		0x01, 'e', 0x01, 'g', 0x03, 0x7f, 0x00, // global i32 const
		0x01, 'e', 0x01, 'm', 0x02, 0x01, 0x01, 0x02, // memory min 1 max 2
		0x01, 'e', 0x01, 't', 0x01, 0x70, 0x00, 0x01, // table funcref min 1
	}
	wasm = append(wasm, 0x02, byte(len(section)))
	wasm = append(wasm, section...)

	out, err := RenameImportModules(wasm, func(m string) string { return m + m })
	if err != nil {
		t.Fatalf("RenameImportModules: %v", err)
	}
	if len(out) != len(wasm)+3 {
		t.Errorf("len = %d, want %d", len(out), len(wasm)+3)
	}
	if bytes.Count(out, []byte{0x02, 'e', 'e'}) != 3 {
		t.Errorf("not every module name renamed: %x", out)
	}
}

func TestRenameImportModules_Malformed(t *testing.T) {
	tests := []struct {
		name string
		wasm []byte
	}{
		{"short", []byte{0x00, 0x61, 0x73}},
		{"section overrun", append(append([]byte{}, testMagicVersion...), 0x01, 0x10, 0x00)},
		{"truncated import", append(append([]byte{}, testMagicVersion...), 0x02, 0x03, 0x01, 0x05, 'a')},
		{"unknown kind", append(append([]byte{}, testMagicVersion...), 0x02, 0x06, 0x01, 0x01, 'a', 0x01, 'b', 0x09)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RenameImportModules(tt.wasm, func(m string) string { return m }); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestULEB128(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 300, 1 << 20, 0xffffffff} {
		enc := EncodeULEB128(v)
		got, n := DecodeULEB128(enc)
		if got != v || n != len(enc) {
			t.Errorf("round trip %d: got %d (%d bytes of %d)", v, got, n, len(enc))
		}
	}
	if _, n := DecodeULEB128([]byte{0x80}); n != 0 {
		t.Error("truncated value should report 0 bytes")
	}
}
