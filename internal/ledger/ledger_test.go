package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newMini(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	r, err := NewRedis(ctx, mr.Addr(), "importer:", ttl)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestKey_StableAndDistinct(t *testing.T) {
	fp := []byte(`{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,1],[0,0]]]]}`)
	other := []byte(`{"type":"MultiPolygon","coordinates":[[[[0,0],[2,0],[2,2],[0,2],[0,0]]]]}`)

	a := Key("Scene 42/west", fp)
	if a != Key("  Scene 42/west ", fp) {
		t.Fatalf("surrounding whitespace must not change the key")
	}
	if a == Key("Scene 42/west", other) {
		t.Fatalf("different footprints must give different keys")
	}
	if a == Key("Scene 43/west", fp) {
		t.Fatalf("different names must give different keys")
	}
	if !strings.HasPrefix(a, "product:Scene_42-west:f=") {
		t.Fatalf("unexpected key shape %q", a)
	}
	if k := Key("", fp); !strings.HasPrefix(k, "product:-:f=") {
		t.Fatalf("unnamed key=%q", k)
	}
}

func TestKey_TruncatesLongNames(t *testing.T) {
	k := Key(strings.Repeat("a", 500), nil)
	if len(k) > len("product:")+maxNameLen+len(":f=")+16 {
		t.Fatalf("key too long: %d", len(k))
	}
}

func TestMemory_SeenAfterMark(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	if _, ok, _ := m.Seen(ctx, "a"); ok {
		t.Fatalf("empty ledger reported a hit")
	}
	_ = m.Mark(ctx, "a", "id-a")
	_ = m.Mark(ctx, "b", "id-b")
	_ = m.Mark(ctx, "c", "id-c")

	if _, ok, _ := m.Seen(ctx, "a"); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
	id, ok, err := m.Seen(ctx, "c")
	if err != nil || !ok || id != "id-c" {
		t.Fatalf("Seen(c)=%q,%v,%v", id, ok, err)
	}
	if m.Len() != 2 {
		t.Fatalf("len=%d want 2", m.Len())
	}
}

func TestRedis_MarkSeenWithPrefixAndTTL(t *testing.T) {
	r, mr := newMini(t, time.Hour)
	ctx := context.Background()

	if _, ok, err := r.Seen(ctx, "k"); ok || err != nil {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := r.Mark(ctx, "k", "abc"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	id, ok, err := r.Seen(ctx, "k")
	if err != nil || !ok || id != "abc" {
		t.Fatalf("Seen=%q,%v,%v", id, ok, err)
	}

	if !mr.Exists("importer:k") {
		t.Fatalf("key should be stored under the prefix")
	}
	if ttl := mr.TTL("importer:k"); ttl != time.Hour {
		t.Fatalf("ttl=%v want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, _ := r.Seen(ctx, "k"); ok {
		t.Fatalf("entry should expire")
	}
}

func TestRedis_CanceledContext(t *testing.T) {
	r, _ := newMini(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Mark(ctx, "k", "v"); err == nil {
		t.Fatalf("expected error on Mark with canceled context")
	}
	if _, _, err := r.Seen(ctx, "k"); err == nil {
		t.Fatalf("expected error on Seen with canceled context")
	}
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedis(ctx, addr, "", 0, WithDialTimeout(100*time.Millisecond)); err == nil {
		t.Fatalf("expected ping error")
	}
	if _, err := NewRedis(ctx, "", "", 0); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestNop(t *testing.T) {
	var l Ledger = Nop{}
	_ = l.Mark(context.Background(), "k", "v")
	if _, ok, _ := l.Seen(context.Background(), "k"); ok {
		t.Fatalf("Nop must never report a hit")
	}
}
