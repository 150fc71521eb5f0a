package dedupe

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestFingerprint_TrackingParamsDoNotMatter(t *testing.T) {
	t.Parallel()

	a := Fingerprint("https://Wire.Example/caldera-tge?utm_source=rss&utm_medium=feed", "t", "b")
	b := Fingerprint("https://wire.example/caldera-tge", "other title", "other body")
	if !bytes.Equal(a, b) {
		t.Fatalf("tracking params and casing must not change the fingerprint")
	}
}

func TestFingerprint_DistinctURLsDiffer(t *testing.T) {
	t.Parallel()

	a := Fingerprint("https://wire.example/story-1", "", "")
	b := Fingerprint("https://wire.example/story-2", "", "")
	if bytes.Equal(a, b) {
		t.Fatalf("distinct urls must produce distinct fingerprints")
	}
}

func TestFingerprint_FallsBackToContent(t *testing.T) {
	t.Parallel()

	a := Fingerprint("", "Caldera  TGE", "live   today")
	b := Fingerprint("", "caldera tge", "live today")
	if !bytes.Equal(a, b) {
		t.Fatalf("content fingerprints must normalize whitespace and case")
	}

	c := Fingerprint("", "caldera tge", "postponed")
	if bytes.Equal(a, c) {
		t.Fatalf("different content must produce different fingerprints")
	}
}

func TestSocialFingerprint_IgnoresURLFormattingAndCase(t *testing.T) {
	t.Parallel()

	a := SocialFingerprint("caldera", "The  $CAL token generation event is LIVE")
	b := SocialFingerprint("Caldera ", "the $cal token generation event is live")
	if !bytes.Equal(a, b) {
		t.Fatalf("same account and text must fingerprint identically")
	}

	c := SocialFingerprint("meridian", "the $cal token generation event is live")
	if bytes.Equal(a, c) {
		t.Fatalf("different accounts must produce different fingerprints")
	}

	d := SocialFingerprint("caldera", "the $cal token generation event is postponed")
	if bytes.Equal(a, d) {
		t.Fatalf("different text must produce different fingerprints")
	}
}

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"https://Wire.Example/Path/?utm_campaign=x", "https://wire.example/Path"},
		{"https://wire.example/a?b=2&a=1", "https://wire.example/a?a=1&b=2"},
		{"https://wire.example/a#section", "https://wire.example/a"},
		{"not a url", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CanonicalURL(tc.in); got != tc.want {
			t.Fatalf("CanonicalURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMemoryStore_RecordIsExactlyOnce(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	fingerprint := Fingerprint("https://wire.example/caldera-tge", "", "")

	const workers = 32
	var inserted atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			ok, err := store.Record(context.Background(), fingerprint)
			if err != nil {
				t.Errorf("record: %v", err)
				return
			}
			if ok {
				inserted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := inserted.Load(); got != 1 {
		t.Fatalf("exactly one concurrent Record must win, got %d", got)
	}

	seen, err := store.Seen(context.Background(), fingerprint)
	if err != nil || !seen {
		t.Fatalf("expected fingerprint to be seen afterwards: %v %v", seen, err)
	}
}
