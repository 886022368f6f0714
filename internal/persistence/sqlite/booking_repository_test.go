package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/testfixtures"
)

func pendingBookingFixture(hostID string, scheduledAt time.Time, digest string) persistence.Booking {
	expiry := scheduledAt.Add(-24 * time.Hour).Add(15 * time.Minute)
	return testfixtures.NewBookingFixture(
		testfixtures.WithBookingHost(hostID),
		testfixtures.WithBookingStatus("pending_confirmation"),
		testfixtures.WithBookingScheduledAt(scheduledAt),
		testfixtures.WithBookingToken(digest, expiry),
	).Persistence()
}

func TestBookingRepositoryClaim(t *testing.T) {
	t.Run("claim and get roundtrip", func(t *testing.T) {
		pool := setupTestPool(t)
		repo := NewBookingRepository(pool)
		host := mustCreateHost(t, pool)

		booking := pendingBookingFixture(host.ID, testfixtures.ReferenceTime(), "digest-1")
		if err := repo.ClaimBooking(context.Background(), booking); err != nil {
			t.Fatalf("ClaimBooking: %v", err)
		}

		got, err := repo.GetBooking(context.Background(), booking.ID)
		if err != nil {
			t.Fatalf("GetBooking: %v", err)
		}
		if got.Status != "pending_confirmation" {
			t.Fatalf("status = %q", got.Status)
		}
		if got.HostID == nil || *got.HostID != host.ID {
			t.Fatalf("host = %v, want %s", got.HostID, host.ID)
		}
		if !got.ScheduledAt.Equal(booking.ScheduledAt) {
			t.Fatalf("scheduled at = %v, want %v", got.ScheduledAt, booking.ScheduledAt)
		}
		if got.ConfirmationTokenDigest == nil || *got.ConfirmationTokenDigest != "digest-1" {
			t.Fatalf("digest = %v", got.ConfirmationTokenDigest)
		}
	})

	t.Run("second claim on the same slot loses", func(t *testing.T) {
		pool := setupTestPool(t)
		repo := NewBookingRepository(pool)
		host := mustCreateHost(t, pool)
		at := testfixtures.ReferenceTime()

		if err := repo.ClaimBooking(context.Background(), pendingBookingFixture(host.ID, at, "digest-1")); err != nil {
			t.Fatalf("first ClaimBooking: %v", err)
		}

		err := repo.ClaimBooking(context.Background(), pendingBookingFixture(host.ID, at, "digest-2"))
		if err != persistence.ErrDuplicate {
			t.Fatalf("err = %v, want ErrDuplicate", err)
		}
	})

	t.Run("equal instants in different zones still collide", func(t *testing.T) {
		pool := setupTestPool(t)
		repo := NewBookingRepository(pool)
		host := mustCreateHost(t, pool)
		at := testfixtures.ReferenceTime()

		if err := repo.ClaimBooking(context.Background(), pendingBookingFixture(host.ID, at, "digest-1")); err != nil {
			t.Fatalf("first ClaimBooking: %v", err)
		}

		paris := time.FixedZone("CET", 3600)
		err := repo.ClaimBooking(context.Background(), pendingBookingFixture(host.ID, at.In(paris), "digest-2"))
		if err != persistence.ErrDuplicate {
			t.Fatalf("err = %v, want ErrDuplicate", err)
		}
	})

	t.Run("terminal status frees the slot", func(t *testing.T) {
		pool := setupTestPool(t)
		repo := NewBookingRepository(pool)
		host := mustCreateHost(t, pool)
		at := testfixtures.ReferenceTime()

		first := pendingBookingFixture(host.ID, at, "digest-1")
		if err := repo.ClaimBooking(context.Background(), first); err != nil {
			t.Fatalf("ClaimBooking: %v", err)
		}

		canceled := first
		canceled.Status = "canceled"
		canceled.ConfirmationTokenDigest = nil
		canceled.TokenExpiresAt = nil
		canceled.UpdatedAt = at.Add(time.Minute)
		if err := repo.UpdateBookingStatus(context.Background(), canceled, "pending_confirmation"); err != nil {
			t.Fatalf("UpdateBookingStatus: %v", err)
		}

		if err := repo.ClaimBooking(context.Background(), pendingBookingFixture(host.ID, at, "digest-2")); err != nil {
			t.Fatalf("reclaiming a freed slot: %v", err)
		}
	})

	t.Run("different hosts share an instant", func(t *testing.T) {
		pool := setupTestPool(t)
		repo := NewBookingRepository(pool)
		hostA := mustCreateHost(t, pool)
		hostB := mustCreateHost(t, pool)
		at := testfixtures.ReferenceTime()

		if err := repo.ClaimBooking(context.Background(), pendingBookingFixture(hostA.ID, at, "digest-1")); err != nil {
			t.Fatalf("ClaimBooking host A: %v", err)
		}
		if err := repo.ClaimBooking(context.Background(), pendingBookingFixture(hostB.ID, at, "digest-2")); err != nil {
			t.Fatalf("ClaimBooking host B: %v", err)
		}
	})
}

func TestBookingRepositoryUpdateBookingStatus(t *testing.T) {
	t.Run("compare and set succeeds from the expected status", func(t *testing.T) {
		pool := setupTestPool(t)
		repo := NewBookingRepository(pool)
		host := mustCreateHost(t, pool)

		booking := pendingBookingFixture(host.ID, testfixtures.ReferenceTime(), "digest-1")
		if err := repo.ClaimBooking(context.Background(), booking); err != nil {
			t.Fatalf("ClaimBooking: %v", err)
		}

		confirmed := booking
		confirmed.Status = "confirmed"
		confirmed.ConfirmationTokenDigest = nil
		confirmed.TokenExpiresAt = nil
		if err := repo.UpdateBookingStatus(context.Background(), confirmed, "pending_confirmation"); err != nil {
			t.Fatalf("UpdateBookingStatus: %v", err)
		}

		got, err := repo.GetBooking(context.Background(), booking.ID)
		if err != nil {
			t.Fatalf("GetBooking: %v", err)
		}
		if got.Status != "confirmed" || got.ConfirmationTokenDigest != nil || got.TokenExpiresAt != nil {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("stale expected status is rejected", func(t *testing.T) {
		pool := setupTestPool(t)
		repo := NewBookingRepository(pool)
		host := mustCreateHost(t, pool)

		booking := pendingBookingFixture(host.ID, testfixtures.ReferenceTime(), "digest-1")
		if err := repo.ClaimBooking(context.Background(), booking); err != nil {
			t.Fatalf("ClaimBooking: %v", err)
		}

		update := booking
		update.Status = "canceled"
		if err := repo.UpdateBookingStatus(context.Background(), update, "confirmed"); err != persistence.ErrStaleStatus {
			t.Fatalf("err = %v, want ErrStaleStatus", err)
		}
	})

	t.Run("missing booking yields ErrNotFound", func(t *testing.T) {
		pool := setupTestPool(t)
		repo := NewBookingRepository(pool)

		booking := testfixtures.NewBookingFixture(testfixtures.WithoutBookingHost()).Persistence()
		if err := repo.UpdateBookingStatus(context.Background(), booking, "confirmed"); err != persistence.ErrNotFound {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestBookingRepositoryTokenLookup(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewBookingRepository(pool)
	host := mustCreateHost(t, pool)

	booking := pendingBookingFixture(host.ID, testfixtures.ReferenceTime(), "digest-1")
	if err := repo.ClaimBooking(context.Background(), booking); err != nil {
		t.Fatalf("ClaimBooking: %v", err)
	}

	got, err := repo.GetBookingByTokenDigest(context.Background(), "digest-1")
	if err != nil {
		t.Fatalf("GetBookingByTokenDigest: %v", err)
	}
	if got.ID != booking.ID {
		t.Fatalf("got %s, want %s", got.ID, booking.ID)
	}

	if _, err := repo.GetBookingByTokenDigest(context.Background(), "unknown"); err != persistence.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetBookingByTokenDigest(context.Background(), ""); err != persistence.ErrNotFound {
		t.Fatalf("empty digest err = %v, want ErrNotFound", err)
	}
}

func TestBookingRepositoryExpirePending(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewBookingRepository(pool)
	host := mustCreateHost(t, pool)
	now := testfixtures.ReferenceTime()

	lapsed := testfixtures.NewBookingFixture(
		testfixtures.WithBookingHost(host.ID),
		testfixtures.WithBookingStatus("pending_confirmation"),
		testfixtures.WithBookingScheduledAt(now.Add(time.Hour)),
		testfixtures.WithBookingToken("digest-lapsed", now.Add(-time.Minute)),
	).Persistence()
	fresh := testfixtures.NewBookingFixture(
		testfixtures.WithBookingHost(host.ID),
		testfixtures.WithBookingStatus("pending_confirmation"),
		testfixtures.WithBookingScheduledAt(now.Add(2*time.Hour)),
		testfixtures.WithBookingToken("digest-fresh", now.Add(10*time.Minute)),
	).Persistence()

	for _, booking := range []persistence.Booking{lapsed, fresh} {
		if err := repo.ClaimBooking(context.Background(), booking); err != nil {
			t.Fatalf("ClaimBooking(%s): %v", booking.ID, err)
		}
	}

	expired, err := repo.ExpirePending(context.Background(), now, "expired")
	if err != nil {
		t.Fatalf("ExpirePending: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	got, err := repo.GetBooking(context.Background(), lapsed.ID)
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if got.Status != "expired" || got.ConfirmationTokenDigest != nil {
		t.Fatalf("got %+v", got)
	}

	still, err := repo.GetBooking(context.Background(), fresh.ID)
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if still.Status != "pending_confirmation" {
		t.Fatalf("fresh booking status = %q", still.Status)
	}

	// Idempotent on repeat.
	again, err := repo.ExpirePending(context.Background(), now, "expired")
	if err != nil {
		t.Fatalf("second ExpirePending: %v", err)
	}
	if again != 0 {
		t.Fatalf("second expire = %d, want 0", again)
	}
}

func TestBookingRepositoryAttributionStats(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewBookingRepository(pool)
	hostA := mustCreateHost(t, pool)
	hostB := mustCreateHost(t, pool)
	now := testfixtures.ReferenceTime()

	recent := testfixtures.NewBookingFixture(
		testfixtures.WithBookingHost(hostA.ID),
		testfixtures.WithBookingStatus("confirmed"),
		testfixtures.WithBookingScheduledAt(now.Add(time.Hour)),
	).Persistence()
	recent.CreatedAt = now.Add(-time.Hour)
	old := testfixtures.NewBookingFixture(
		testfixtures.WithBookingHost(hostA.ID),
		testfixtures.WithBookingStatus("canceled"),
		testfixtures.WithBookingScheduledAt(now.Add(2*time.Hour)),
	).Persistence()
	old.CreatedAt = now.Add(-60 * 24 * time.Hour)

	for _, booking := range []persistence.Booking{recent, old} {
		if err := repo.ClaimBooking(context.Background(), booking); err != nil {
			t.Fatalf("ClaimBooking(%s): %v", booking.ID, err)
		}
	}

	stats, err := repo.AttributionStatsForHosts(context.Background(), []string{hostA.ID, hostB.ID}, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("AttributionStatsForHosts: %v", err)
	}

	statsA, ok := stats[hostA.ID]
	if !ok {
		t.Fatalf("no stats for %s", hostA.ID)
	}
	if statsA.RecentCount != 1 {
		t.Fatalf("recent count = %d, want 1 (old attribution outside lookback)", statsA.RecentCount)
	}
	if statsA.LastAttributedAt == nil || !statsA.LastAttributedAt.Equal(recent.CreatedAt) {
		t.Fatalf("last attributed = %v, want %v", statsA.LastAttributedAt, recent.CreatedAt)
	}

	if _, ok := stats[hostB.ID]; ok {
		t.Fatalf("host without bookings must have no stats row")
	}
}
