package command_test

import (
	"testing"

	"github.com/snakescriptdev/voice-ninja-client/internal/command"
)

type fakeControls struct {
	mutes, unmutes, disconnects int
}

func (f *fakeControls) Mute()       { f.mutes++ }
func (f *fakeControls) Unmute()     { f.unmutes++ }
func (f *fakeControls) Disconnect() { f.disconnects++ }

func TestCheck_ExactPhrases(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"hang up", "disconnect"},
		{"please hang up now", "disconnect"},
		{"Goodbye!", "disconnect"},
		{"okay disconnect", "disconnect"},
		{"mute", "mute"},
		{"stop listening for a second", "mute"},
		{"unmute", "unmute"},
		{"start listening again", "unmute"},
	}

	f := command.NewFilter(command.DefaultPatterns())
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var c fakeControls
			name, ok := f.Check(tt.line, &c)
			if !ok {
				t.Fatalf("Check(%q) did not match", tt.line)
			}
			if name != tt.want {
				t.Errorf("Check(%q) = %q, want %q", tt.line, name, tt.want)
			}
		})
	}
}

func TestCheck_PhoneticVariants(t *testing.T) {
	// Speech-to-text often lands on a homophone or near-homophone of the
	// command. These are transcriptions seen in practice.
	tests := []struct {
		line string
		want string
	}{
		{"hang app", "disconnect"},
		{"hung up", "disconnect"},
		{"good bye", "disconnect"},
		{"stop listing", "mute"},
	}

	f := command.NewFilter(command.DefaultPatterns())
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var c fakeControls
			name, ok := f.Check(tt.line, &c)
			if !ok {
				t.Fatalf("Check(%q) did not match", tt.line)
			}
			if name != tt.want {
				t.Errorf("Check(%q) = %q, want %q", tt.line, name, tt.want)
			}
		})
	}
}

func TestCheck_MuteUnmuteDisambiguation(t *testing.T) {
	// "mute" and "unmute" are close enough in string distance to fool a
	// pure similarity match. The exact word must win both ways.
	f := command.NewFilter(command.DefaultPatterns())

	var c fakeControls
	name, ok := f.Check("mute the microphone", &c)
	if !ok || name != "mute" {
		t.Fatalf("Check(mute ...) = %q, %v, want mute", name, ok)
	}
	if c.mutes != 1 || c.unmutes != 0 {
		t.Errorf("mutes = %d, unmutes = %d, want 1, 0", c.mutes, c.unmutes)
	}

	c = fakeControls{}
	name, ok = f.Check("unmute the microphone", &c)
	if !ok || name != "unmute" {
		t.Fatalf("Check(unmute ...) = %q, %v, want unmute", name, ok)
	}
	if c.unmutes != 1 || c.mutes != 0 {
		t.Errorf("unmutes = %d, mutes = %d, want 1, 0", c.unmutes, c.mutes)
	}
}

func TestCheck_IgnoresConversation(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"what a beautiful morning",
		"I am going to hang out with friends later",
		"the weather today is disappointing",
		"tell me about the roman empire",
	}

	f := command.NewFilter(command.DefaultPatterns())
	for _, line := range lines {
		var c fakeControls
		if name, ok := f.Check(line, &c); ok {
			t.Errorf("Check(%q) matched %q, want no match", line, name)
		}
		if c.mutes+c.unmutes+c.disconnects != 0 {
			t.Errorf("Check(%q) dispatched an action", line)
		}
	}
}

func TestCheck_DispatchesAction(t *testing.T) {
	f := command.NewFilter(command.DefaultPatterns())

	var c fakeControls
	if _, ok := f.Check("goodbye", &c); !ok {
		t.Fatal("Check(goodbye) did not match")
	}
	if c.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", c.disconnects)
	}
	if c.mutes != 0 || c.unmutes != 0 {
		t.Errorf("unexpected actions: mutes = %d, unmutes = %d", c.mutes, c.unmutes)
	}
}

func TestCheck_CustomPatterns(t *testing.T) {
	var paused bool
	patterns := []command.Pattern{{
		Name:    "pause",
		Phrases: []string{"hold on"},
		Action:  func(c command.Controls) { paused = true; c.Mute() },
	}}

	f := command.NewFilter(patterns)
	var c fakeControls
	name, ok := f.Check("hold on a moment", &c)
	if !ok || name != "pause" {
		t.Fatalf("Check = %q, %v, want pause", name, ok)
	}
	if !paused || c.mutes != 1 {
		t.Errorf("paused = %v, mutes = %d, want true, 1", paused, c.mutes)
	}
}

func TestCheck_NoPatterns(t *testing.T) {
	f := command.NewFilter(nil)
	var c fakeControls
	if name, ok := f.Check("hang up", &c); ok {
		t.Errorf("Check with no patterns matched %q", name)
	}
}
