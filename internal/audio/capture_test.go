package audio

import (
	"testing"
)

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		name     string
		device   string
		expected string
	}{
		// Loopback devices
		{"blackhole lowercase", "BlackHole 2ch", sourceLoopback},
		{"blackhole uppercase", "BLACKHOLE", sourceLoopback},
		{"vb-cable", "VB-Cable", sourceLoopback},
		{"monitor", "Monitor of Built-in Audio", sourceLoopback},
		{"soundflower", "Soundflower (2ch)", sourceLoopback},

		// Microphones
		{"microphone", "Built-in Microphone", sourceMic},
		{"mic short", "External Mic", sourceMic},
		{"input", "Line Input", sourceMic},
		{"macbook", "MacBook Pro Microphone", sourceMic},

		// Unknown devices
		{"speakers", "External Speakers", ""},
		{"hdmi", "HDMI Output", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyDevice(tt.device); got != tt.expected {
				t.Errorf("classifyDevice(%q) = %q, want %q", tt.device, got, tt.expected)
			}
		})
	}
}

func TestPreferDevice(t *testing.T) {
	tests := []struct {
		name, current string
		want          bool
	}{
		{"MacBook Pro Microphone", "USB Mic", true},
		{"Built-in Microphone", "Yeti Mic", true},
		{"USB Mic", "MacBook Pro Microphone", false},
		{"USB Mic", "Yeti Mic", false},
	}
	for _, tt := range tests {
		if got := preferDevice(tt.name, tt.current); got != tt.want {
			t.Errorf("preferDevice(%q, %q) = %v, want %v", tt.name, tt.current, got, tt.want)
		}
	}
}

func TestIsExcluded(t *testing.T) {
	c := NewCapturer(CaptureConfig{ExcludedDevices: []string{"iphone", "Teams"}})

	if !c.isExcluded("Jane's iPhone Microphone") {
		t.Error("iPhone mic should be excluded")
	}
	if !c.isExcluded("Microsoft teams Audio") {
		t.Error("exclusions should match case-insensitively")
	}
	if c.isExcluded("Built-in Microphone") {
		t.Error("built-in mic should not be excluded")
	}
}

func TestNewCapturerDefaults(t *testing.T) {
	c := NewCapturer(CaptureConfig{})
	if c.cfg.SampleRate != TargetRate {
		t.Errorf("SampleRate = %d, want %d", c.cfg.SampleRate, TargetRate)
	}
	if c.cfg.FramesPerBuffer != 1024 {
		t.Errorf("FramesPerBuffer = %d, want 1024", c.cfg.FramesPerBuffer)
	}
	if c.Frames() != nil {
		t.Error("Frames should be nil before Start")
	}
	c.Stop() // not running: no-op
}

func TestContainsFold(t *testing.T) {
	tests := []struct {
		s, substr string
		expected  bool
	}{
		{"BlackHole 2ch", "blackhole", true},
		{"blackhole", "BLACKHOLE", true},
		{"Built-in Microphone", "MICROPHONE", true},
		{"External Speakers", "blackhole", false},
		{"", "test", false},
		{"test", "", true},
	}
	for _, tt := range tests {
		if got := containsFold(tt.s, tt.substr); got != tt.expected {
			t.Errorf("containsFold(%q, %q) = %v, want %v", tt.s, tt.substr, got, tt.expected)
		}
	}
}
