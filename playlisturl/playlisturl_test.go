package playlisturl

import (
	"strings"
	"testing"
)

func TestNormalizeEquivalence(t *testing.T) {
	want := "https://www.youtube.com/playlist?list=PL_ABC"
	cases := []string{
		"https://www.youtube.com/playlist?list=PL_ABC",
		"https://www.youtube.com/playlist?list=PL_ABC&index=3",
		"https://www.youtube.com/playlist?list=PL_ABC&t=42",
		"http://youtube.com/playlist?list=PL_ABC",
		"https://m.youtube.com/Playlist?list=PL_ABC",
		"www.youtube.com/playlist?list=PL_ABC",
		"https://music.youtube.com/playlist?list=PL_ABC&index=1&t=10",
	}
	for _, in := range cases {
		got, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Normalize(%q) = %q want %q", in, got, want)
		}
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]string{
		"":                                    "empty",
		"https://vimeo.com/playlist?list=PL1": "host",
		"https://www.youtube.com/watch?v=abc": "path",
		"https://www.youtube.com/playlist":    "missing list",
		"https://www.youtube.com/playlist?list=": "empty list",
	}
	for in := range cases {
		if _, err := Normalize(in); err == nil {
			t.Fatalf("Normalize(%q): expected error", in)
		} else if _, ok := err.(*ErrInvalidURL); !ok {
			t.Fatalf("Normalize(%q): expected *ErrInvalidURL got %T", in, err)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	once, err := Normalize("https://www.youtube.com/playlist?list=PLxyz&index=9")
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Normalize(once)
	if err != nil {
		t.Fatal(err)
	}
	if once != twice {
		t.Fatalf("not idempotent: %q vs %q", once, twice)
	}
}

func TestFingerprint(t *testing.T) {
	canon, _ := Normalize("https://www.youtube.com/playlist?list=PL_ABC")
	id := Fingerprint(canon)
	if len(id) != 16 {
		t.Fatalf("fingerprint length %d want 16", len(id))
	}
	if id != strings.ToLower(id) {
		t.Fatalf("fingerprint not lowercase: %s", id)
	}
	// Equivalent inputs share the id.
	canon2, _ := Normalize("https://youtube.com/playlist?list=PL_ABC&index=3")
	if Fingerprint(canon2) != id {
		t.Fatalf("equivalent URLs produced different ids")
	}
	// Different lists do not.
	canon3, _ := Normalize("https://www.youtube.com/playlist?list=PL_OTHER")
	if Fingerprint(canon3) == id {
		t.Fatalf("distinct lists collided")
	}
}

func TestListID(t *testing.T) {
	if got := ListID("https://www.youtube.com/playlist?list=PL_X"); got != "PL_X" {
		t.Fatalf("ListID = %q", got)
	}
	if got := ListID("https://www.youtube.com/playlist"); got != "" {
		t.Fatalf("ListID on missing param = %q", got)
	}
}
