package camera

import (
	"context"
	"testing"
)

func TestLinuxDiscovery_IsDeviceAvailable(t *testing.T) {
	ctx := context.Background()
	discovery := NewLinuxDiscovery()

	// 存在しないデバイス
	if discovery.IsDeviceAvailable(ctx, "/dev/video999") {
		t.Error("Expected non-existent device to be unavailable")
	}

	// video以外のパス
	if discovery.IsDeviceAvailable(ctx, "/dev/null") {
		t.Error("Expected non-video path to be unavailable")
	}
}

func TestParseV4L2Field(t *testing.T) {
	output := `Driver Info:
	Driver name      : uvcvideo
	Card type        : HD Webcam: HD Webcam
	Bus info         : usb-0000:00:14.0-6
`
	if got := parseV4L2Field(output, "Driver name"); got != "uvcvideo" {
		t.Errorf("Driver name = %q, want uvcvideo", got)
	}
	if got := parseV4L2Field(output, "Card type"); got != "HD Webcam: HD Webcam" {
		t.Errorf("Card type = %q", got)
	}
	if got := parseV4L2Field(output, "Serial"); got != "" {
		t.Errorf("Serial = %q, want empty", got)
	}
}

func TestExtractDeviceNumber(t *testing.T) {
	cases := map[string]int{
		"/dev/video0":  0,
		"/dev/video12": 12,
		"/dev/null":    0,
	}
	for device, want := range cases {
		if got := extractDeviceNumber(device); got != want {
			t.Errorf("extractDeviceNumber(%s) = %d, want %d", device, got, want)
		}
	}
}

func TestMockDiscovery(t *testing.T) {
	ctx := context.Background()
	mockDevices := []string{"/dev/video0", "/dev/video1"}
	discovery := NewMockDiscovery(mockDevices)

	devices, err := discovery.ScanDevices(ctx)
	if err != nil {
		t.Fatalf("ScanDevices failed: %v", err)
	}
	if len(devices) != len(mockDevices) {
		t.Fatalf("Expected %d devices, got %d", len(mockDevices), len(devices))
	}
	for i, device := range devices {
		if device != mockDevices[i] {
			t.Errorf("Expected device %s, got %s", mockDevices[i], device)
		}
	}

	if !discovery.IsDeviceAvailable(ctx, "/dev/video0") {
		t.Error("Expected /dev/video0 to be available")
	}
	if discovery.IsDeviceAvailable(ctx, "/dev/video2") {
		t.Error("Expected /dev/video2 to be unavailable")
	}

	back, err := discovery.GetDeviceInfo(ctx, "/dev/video0")
	if err != nil {
		t.Fatalf("GetDeviceInfo failed: %v", err)
	}
	if back.Facing != LensFacingBack {
		t.Errorf("Expected first device to face back, got %s", back.Facing)
	}
	if back.Driver != DriverMock {
		t.Errorf("Expected mock driver, got %s", back.Driver)
	}

	external, err := discovery.GetDeviceInfo(ctx, "/dev/video1")
	if err != nil {
		t.Fatalf("GetDeviceInfo failed: %v", err)
	}
	if external.Facing != LensFacingExternal {
		t.Errorf("Expected second device to be external, got %s", external.Facing)
	}

	if _, err := discovery.GetDeviceInfo(ctx, "/dev/video99"); err == nil {
		t.Error("Expected error for non-existent device")
	}
}

func TestMockDiscovery_AddRemoveDevice(t *testing.T) {
	ctx := context.Background()
	discovery := NewMockDiscovery([]string{"/dev/video0"})

	discovery.AddDevice("/dev/video1")
	devices, _ := discovery.ScanDevices(ctx)
	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices after addition, got %d", len(devices))
	}

	discovery.RemoveDevice("/dev/video0")
	devices, _ = discovery.ScanDevices(ctx)
	if len(devices) != 1 {
		t.Fatalf("Expected 1 device after removal, got %d", len(devices))
	}
	if discovery.IsDeviceAvailable(ctx, "/dev/video0") {
		t.Error("Expected /dev/video0 to be unavailable after removal")
	}

	// 重複追加は無視される
	discovery.AddDevice("/dev/video1")
	devices, _ = discovery.ScanDevices(ctx)
	if len(devices) != 1 {
		t.Fatalf("Expected 1 device after duplicate addition, got %d", len(devices))
	}
}
