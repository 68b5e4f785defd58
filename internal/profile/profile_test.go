package profile

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// Feature: respira, Property 13: Profile save/load round trip
func TestProfileRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	rapid.Check(t, func(rt *rapid.T) {
		p := &Profile{
			Name:           rapid.StringMatching(`[a-zA-Z ]{0,20}`).Draw(rt, "name"),
			UserID:         rapid.StringMatching(`[a-z0-9-]{0,12}`).Draw(rt, "user"),
			RemoteToken:    rapid.StringMatching(`[A-Za-z0-9]{0,32}`).Draw(rt, "token"),
			Vibrate:        rapid.Bool().Draw(rt, "vibrate"),
			DefaultPattern: rapid.SampledFrom([]string{"", "box", "4-7-8", "coerencia"}).Draw(rt, "pattern"),
		}
		if err := Save(p); err != nil {
			rt.Fatalf("Save: %v", err)
		}
		got, err := Load()
		if err != nil {
			rt.Fatalf("Load: %v", err)
		}
		if *got != *p {
			rt.Fatalf("round trip: want %+v, got %+v", p, got)
		}
	})
}

func TestLoadMissingProfile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if Exists() {
		t.Fatal("no profile expected")
	}
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing profile")
	}
}

func TestRunSetupDefaults(t *testing.T) {
	in := strings.NewReader("Ana\n\n\n\n\n")
	var out bytes.Buffer
	p, err := RunSetup(in, &out, nil, func(string) bool { return true })
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Ana" || !p.Vibrate || p.DefaultPattern != "" || p.RemoteToken != "" {
		t.Fatalf("profile: %+v", p)
	}
	if !strings.Contains(out.String(), "first-time setup") {
		t.Fatal("missing banner")
	}
}

func TestRunSetupRepromptsUnknownPattern(t *testing.T) {
	in := strings.NewReader("\nnope\n4-7-8\nn\nuser-1\ntok\n")
	var out bytes.Buffer
	valid := func(k string) bool { return k == "4-7-8" }
	p, err := RunSetup(in, &out, &Profile{Name: "Bia", Vibrate: true}, valid)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Bia" || p.DefaultPattern != "4-7-8" || p.Vibrate || p.UserID != "user-1" || p.RemoteToken != "tok" {
		t.Fatalf("profile: %+v", p)
	}
	if !strings.Contains(out.String(), `unknown pattern "nope"`) {
		t.Fatalf("expected reprompt, got %q", out.String())
	}
}

func TestRunSetupEOF(t *testing.T) {
	if _, err := RunSetup(strings.NewReader(""), io.Discard, nil, nil); err == nil {
		t.Fatal("expected error on empty input")
	}
}
