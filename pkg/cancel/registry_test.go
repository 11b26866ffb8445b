package cancel

import "testing"

func TestSubscribeObservesCancellation(t *testing.T) {
	r := NewRegistry()
	tok, release := r.Subscribe("job-1")
	defer release()

	if tok.Cancelled() {
		t.Fatal("token should not be cancelled yet")
	}

	r.RequestCancel("job-1")

	if !tok.Cancelled() {
		t.Fatal("token should observe cancellation")
	}
	select {
	case <-tok.Done():
	default:
		t.Fatal("Done channel should be closed")
	}
}

func TestRefCountCollapsesDuplicateSubscribers(t *testing.T) {
	r := NewRegistry()
	tok1, release1 := r.Subscribe("shared")
	tok2, release2 := r.Subscribe("shared")

	if r.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1 (one key, two subscribers)", r.ActiveCount())
	}

	r.RequestCancel("shared")
	if !tok1.Cancelled() || !tok2.Cancelled() {
		t.Fatal("both subscribers should observe the same cancellation")
	}

	release1()
	if r.ActiveCount() != 1 {
		t.Fatal("entry should survive while a subscriber remains")
	}
	release2()
	if r.ActiveCount() != 0 {
		t.Fatal("entry should be removed once the last subscriber releases")
	}
}

func TestRequestCancelBeforeSubscribeStillObserved(t *testing.T) {
	r := NewRegistry()
	r.RequestCancel("late")

	tok, release := r.Subscribe("late")
	defer release()

	if !tok.Cancelled() {
		t.Fatal("a subscriber arriving after RequestCancel must still observe cancellation")
	}
}

func TestKeyPrefersIdempotencyKey(t *testing.T) {
	k, ok := Key("idem", "session")
	if !ok || k != "idem" {
		t.Fatalf("Key() = %q, %v; want idem, true", k, ok)
	}

	k, ok = Key("", "session")
	if !ok || k != "session" {
		t.Fatalf("Key() = %q, %v; want session, true", k, ok)
	}

	if _, ok := Key("", ""); ok {
		t.Fatal("Key() should report false when neither is set")
	}
}
