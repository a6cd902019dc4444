package netlink

import "testing"

func TestDecodePayloadParsesKeyValuePairs(t *testing.T) {
	payload := []byte("add@/devices/foo\x00ACTION=add\x00SUBSYSTEM=usb\x00DEVPATH=/devices/foo\x00GARBAGE\x00")

	got := decodePayload(payload)

	want := map[string]string{
		"ACTION":    "add",
		"SUBSYSTEM": "usb",
		"DEVPATH":   "/devices/foo",
	}
	if len(got) != len(want) {
		t.Fatalf("decodePayload() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("decodePayload()[%q] = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got["GARBAGE"]; ok {
		t.Error("decodePayload() should drop fields without '='")
	}
}

func TestDecodePayloadRoundTripsKeySet(t *testing.T) {
	in := map[string]string{"ACTION": "add", "SUBSYSTEM": "usb", "KERNEL": "sda"}

	var payload []byte
	for k, v := range in {
		payload = append(payload, []byte(k+"="+v+"\x00")...)
	}

	out := decodePayload(payload)
	if len(out) != len(in) {
		t.Fatalf("decodePayload() round-trip lost keys: got %v, want keys of %v", out, in)
	}
	for k, v := range in {
		if out[k] != v {
			t.Errorf("decodePayload()[%q] = %q, want %q", k, out[k], v)
		}
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	if got := decodePayload(nil); len(got) != 0 {
		t.Errorf("decodePayload(nil) = %v, want empty", got)
	}
}
