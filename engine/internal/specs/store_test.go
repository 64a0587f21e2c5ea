package specs

import "testing"

func TestCameraSpecApplyNowSafe(t *testing.T) {
	s := NewCameraSpecStore()
	changed, err := s.Apply("camA", 1, []byte("profile-a"), ApplyNow, true)
	if err != nil || !changed {
		t.Fatalf("expected applied change, got changed=%v err=%v", changed, err)
	}
	if s.Get("camA").Version != 1 {
		t.Fatalf("expected version 1, got %d", s.Get("camA").Version)
	}
}

func TestCameraSpecApplyNowUnsafeFails(t *testing.T) {
	s := NewCameraSpecStore()
	_, err := s.Apply("camA", 1, []byte("profile-a"), ApplyNow, false)
	if err != ErrUnsafeApplyNow {
		t.Fatalf("expected ErrUnsafeApplyNow, got %v", err)
	}
	if s.Get("camA").Version != 0 {
		t.Fatalf("version should not have changed, got %d", s.Get("camA").Version)
	}
}

func TestCameraSpecApplyWhenSafeDefersThenRetries(t *testing.T) {
	s := NewCameraSpecStore()
	changed, err := s.Apply("camA", 1, []byte("profile-a"), ApplyWhenSafe, false)
	if err != nil || changed {
		t.Fatalf("expected deferred (no immediate change), got changed=%v err=%v", changed, err)
	}
	if !s.Get("camA").HasPending() {
		t.Fatal("expected a pending patch")
	}

	if applied := s.RetryPending("camA", false); applied {
		t.Fatal("retry while still unsafe should not apply")
	}
	if applied := s.RetryPending("camA", true); !applied {
		t.Fatal("retry once safe should apply")
	}
	if s.Get("camA").Version != 1 {
		t.Fatalf("expected version 1 after retry, got %d", s.Get("camA").Version)
	}
	if s.Get("camA").HasPending() {
		t.Fatal("pending patch should be cleared after apply")
	}
}

func TestApplyIdenticalContentDoesNotBumpVersion(t *testing.T) {
	s := NewCameraSpecStore()
	_, _ = s.Apply("camA", 1, []byte("profile-a"), ApplyNow, true)
	changed, err := s.Apply("camA", 2, []byte("profile-a"), ApplyNow, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("identical content should not be reported as changed")
	}
	if s.Get("camA").Version != 1 {
		t.Fatalf("version should remain 1, got %d", s.Get("camA").Version)
	}
}

func TestImagingSpecApplyWhenSafe(t *testing.T) {
	s := NewImagingSpecStore()
	changed, err := s.Apply(1, []byte("global-imaging"), ApplyWhenSafe, true)
	if err != nil || !changed {
		t.Fatalf("expected applied change, got changed=%v err=%v", changed, err)
	}
	if s.Get().Version != 1 {
		t.Fatalf("expected version 1, got %d", s.Get().Version)
	}
}
