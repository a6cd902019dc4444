package sysfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadAttributeTrimsAndHandlesMissing(t *testing.T) {
	dir := t.TempDir()
	oldRoot := Root
	Root = dir
	defer func() { Root = oldRoot }()

	syspath := "/devices/foo"
	if err := os.MkdirAll(filepath.Join(dir, syspath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, syspath, "idVendor"), []byte("1234\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, ok := ReadAttribute(syspath, "idVendor")
	if !ok || got != "1234" {
		t.Errorf("ReadAttribute() = %q, %v, want %q, true", got, ok, "1234")
	}

	if _, ok := ReadAttribute(syspath, "missing"); ok {
		t.Error("ReadAttribute() on missing file should report false")
	}
}
