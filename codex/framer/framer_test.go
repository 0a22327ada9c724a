package framer

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func feedAll(t *testing.T, f *Framer, chunks ...string) []string {
	t.Helper()
	var out []string
	for _, c := range chunks {
		objs, err := f.Feed([]byte(c))
		if err != nil {
			t.Fatalf("feed %q: %v", c, err)
		}
		for _, o := range objs {
			out = append(out, string(o))
		}
	}
	return out
}

func TestFeedSplitAcrossReads(t *testing.T) {
	f := New(0)
	got := feedAll(t, f, `{"kind":"JOIN`, `_GAME","gameName":"a`, `"}`)
	if len(got) != 1 || got[0] != `{"kind":"JOIN_GAME","gameName":"a"}` {
		t.Fatalf("got %q", got)
	}
	if f.Pending() != 0 {
		t.Fatalf("pending = %d", f.Pending())
	}
}

func TestFeedSeveralPerChunk(t *testing.T) {
	f := New(0)
	got := feedAll(t, f, "{\"a\":1}\n{\"b\":\"}{\"}\n{\"c\":", "[1,2]}\n")
	want := []string{`{"a":1}`, `{"b":"}{"}`, `{"c":[1,2]}`}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFeedKeepalive(t *testing.T) {
	f := New(0)
	got := feedAll(t, f, "ping\n", "pi", "ng{\"x\":1}", "\npi")
	if len(got) != 1 || got[0] != `{"x":1}` {
		t.Fatalf("got %q", got)
	}
	if f.Pending() != 2 {
		t.Fatalf("a partial keepalive should stay buffered, pending = %d", f.Pending())
	}
	got = feedAll(t, f, "ng")
	if len(got) != 0 || f.Pending() != 0 {
		t.Fatalf("got %q pending %d", got, f.Pending())
	}
}

func TestFeedErrors(t *testing.T) {
	f := New(0)
	if _, err := f.Feed([]byte("hello")); !errors.Is(err, ErrMalformed) {
		t.Fatalf("garbage: %v", err)
	}

	f = New(0)
	if _, err := f.Feed([]byte(`{"a" 1}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("syntax error: %v", err)
	}

	f = New(16)
	if _, err := f.Feed([]byte(`{"a":"0123456789`)); err != nil {
		t.Fatalf("under cap: %v", err)
	}
	if _, err := f.Feed([]byte(`0123456789`)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("over cap: %v", err)
	}
}

func TestFeedReturnsObjectsBeforeError(t *testing.T) {
	f := New(0)
	objs, err := f.Feed([]byte(`{"a":1} nope`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v", err)
	}
	if len(objs) != 1 {
		t.Fatalf("objs = %q", objs)
	}
}

type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestReader(t *testing.T) {
	r := NewReader(&chunkReader{chunks: []string{`{"a":`, `1}{"b":2}`, "ping", `{"c":`}}, 0)
	for _, want := range []string{`{"a":1}`, `{"b":2}`} {
		got, err := r.Next()
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Fatalf("got %s want %s", got, want)
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("trailing partial object should end with EOF, got %v", err)
	}
	if r.Pending() == 0 {
		t.Fatal("partial object should remain buffered")
	}
}
