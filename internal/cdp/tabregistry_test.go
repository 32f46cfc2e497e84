package cdp

import (
	"testing"

	"github.com/chromedp/cdproto/target"
)

func TestSessionRegistryAttachOnlyPages(t *testing.T) {
	r := NewSessionRegistry()

	if r.Attach("s-worker", &target.Info{TargetID: "W", Type: "service_worker"}) {
		t.Fatal("Attach(service_worker) = true; want false")
	}
	if r.Attach("s-nil", nil) {
		t.Fatal("Attach(nil) = true; want false")
	}
	if !r.Attach("s1", &target.Info{TargetID: "T1", Type: "page", URL: "https://a.example/"}) {
		t.Fatal("Attach(page) = false; want true")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d; want 1", r.Count())
	}

	if !r.HasTarget("T1") || r.HasTarget("W") {
		t.Fatal("HasTarget() mismatch")
	}

	tab, ok := r.BySession("s1")
	if !ok || tab.TargetID != "T1" || tab.URL != "https://a.example/" || tab.SessionID != "s1" {
		t.Fatalf("BySession(s1) = %+v, %v", tab, ok)
	}
}

func TestSessionRegistryAttachIsUniquePerSession(t *testing.T) {
	r := NewSessionRegistry()
	if !r.Attach("s1", &target.Info{TargetID: "T1", Type: "page", URL: "https://a.example/"}) {
		t.Fatal("first Attach() = false; want true")
	}
	if r.Attach("s1", &target.Info{TargetID: "T1", Type: "page", URL: "https://b.example/"}) {
		t.Fatal("repeat Attach() = true; want false")
	}

	if r.Count() != 1 {
		t.Fatalf("Count() = %d; want 1", r.Count())
	}
	if tab, _ := r.BySession("s1"); tab.URL != "https://b.example/" {
		t.Fatalf("URL = %q; want https://b.example/", tab.URL)
	}
}

func TestSessionRegistryUpdateTarget(t *testing.T) {
	r := NewSessionRegistry()
	r.Attach("s1", &target.Info{TargetID: "T1", Type: "page", URL: "https://a.example/"})
	r.Attach("s2", &target.Info{TargetID: "T2", Type: "page", URL: "https://b.example/"})

	tab, ok := r.UpdateTarget(&target.Info{TargetID: "T2", Type: "page", URL: "https://b.example/next", Title: "Next"})
	if !ok || tab.SessionID != "s2" {
		t.Fatalf("UpdateTarget() = %+v, %v; want session s2", tab, ok)
	}
	if got, _ := r.BySession("s2"); got.URL != "https://b.example/next" || got.Title != "Next" {
		t.Fatalf("BySession(s2) = %+v", got)
	}
	if got, _ := r.BySession("s1"); got.URL != "https://a.example/" {
		t.Fatalf("BySession(s1) changed: %+v", got)
	}

	if _, ok := r.UpdateTarget(&target.Info{TargetID: "unknown"}); ok {
		t.Fatal("UpdateTarget(unknown) = true; want false")
	}
	if _, ok := r.UpdateTarget(nil); ok {
		t.Fatal("UpdateTarget(nil) = true; want false")
	}
}

func TestSessionRegistryDetachAndReset(t *testing.T) {
	r := NewSessionRegistry()
	r.Attach("s1", &target.Info{TargetID: "T1", Type: "page"})
	r.Attach("s2", &target.Info{TargetID: "T2", Type: "page"})

	tab, ok := r.Detach("s1")
	if !ok || tab.TargetID != "T1" {
		t.Fatalf("Detach(s1) = %+v, %v", tab, ok)
	}
	if _, ok := r.Detach("s1"); ok {
		t.Fatal("second Detach(s1) = true; want false")
	}
	if len(r.List()) != 1 {
		t.Fatalf("List() len = %d; want 1", len(r.List()))
	}

	r.Reset()
	if r.Count() != 0 {
		t.Fatalf("Count() after Reset = %d; want 0", r.Count())
	}
}
