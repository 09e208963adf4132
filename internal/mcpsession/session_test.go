package mcpsession

import (
	"testing"
	"time"
)

func TestCreateAndGetSessionRefreshesActivity(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore(time.Hour, WithClock(func() time.Time { return clock }))

	sess := store.CreateSession("cli", "1.0", []string{"streaming"}, nil)
	if sess.ID == "" {
		t.Fatal("expected a generated id")
	}

	clock = clock.Add(30 * time.Minute)
	got, ok := store.GetSession(sess.ID)
	if !ok {
		t.Fatal("expected session to still be present")
	}
	if !got.LastActivity.Equal(clock) {
		t.Fatalf("expected LastActivity refreshed to %v, got %v", clock, got.LastActivity)
	}
}

func TestGetExpiredSessionIsRemovedAndReportedMissing(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore(time.Minute, WithClock(func() time.Time { return clock }))

	sess := store.CreateSession("cli", "1.0", nil, nil)
	clock = clock.Add(2 * time.Minute)

	if _, ok := store.GetSession(sess.ID); ok {
		t.Fatal("expected expired session to be reported missing")
	}
	if store.Count() != 0 {
		t.Fatalf("expected expired session removed from store, count=%d", store.Count())
	}
}

func TestCleanupExpiredRemovesOnlyStale(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore(time.Minute, WithClock(func() time.Time { return clock }))

	stale := store.CreateSession("a", "1", nil, nil)
	clock = clock.Add(2 * time.Minute)
	fresh := store.CreateSession("b", "1", nil, nil)

	removed := store.CleanupExpired()
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := store.GetSession(stale.ID); ok {
		t.Fatal("expected stale session removed")
	}
	if _, ok := store.GetSession(fresh.ID); !ok {
		t.Fatal("expected fresh session retained")
	}
}

func TestResolveUnknownIDFallsBackToAnonymous(t *testing.T) {
	store := NewStore(time.Hour)
	sess := store.Resolve("does-not-exist")
	if !sess.HasCapability(AnonymousCapability) {
		t.Fatalf("expected anonymous capability, got %v", sess.Capabilities)
	}
}

func TestNegotiateComputesCapabilityIntersection(t *testing.T) {
	store := NewStore(time.Hour)
	sess, resp, err := store.Negotiate(
		NegotiationRequest{ClientName: "cli", ClientVersion: "1", SupportedCapabilities: []string{"streaming", "cancellation", "unknown_future_cap"}},
		"docwatch-mcp", "0.1.0",
		[]string{"streaming", "progress_tracking"},
		[]string{"tool.a"}, []string{"resource.b"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.SupportedCapabilities) != 1 || resp.SupportedCapabilities[0] != "streaming" {
		t.Fatalf("expected intersection [streaming], got %v", resp.SupportedCapabilities)
	}
	if !sess.HasCapability("streaming") {
		t.Fatalf("expected session to carry negotiated capability")
	}
}

func TestNegotiateMissingClientNameFails(t *testing.T) {
	store := NewStore(time.Hour)
	_, _, err := store.Negotiate(NegotiationRequest{}, "srv", "1", nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for missing client_name")
	}
}
