package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/testfixtures"
)

func setupTestPool(t *testing.T) *ConnectionPool {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "bookings.db")
	pool, err := NewConnectionPool(dsn)
	if err != nil {
		t.Fatalf("NewConnectionPool: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("closing pool: %v", err)
		}
	})

	if err := pool.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	return pool
}

func mustCreateHost(t *testing.T, pool *ConnectionPool, opts ...testfixtures.HostOption) persistence.Host {
	t.Helper()

	host := testfixtures.NewHostFixture(opts...).Persistence()
	if err := NewHostRepository(pool).CreateHost(context.Background(), host); err != nil {
		t.Fatalf("CreateHost: %v", err)
	}
	return host
}

func TestConnectionPoolMigrateIsIdempotent(t *testing.T) {
	pool := setupTestPool(t)

	if err := pool.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestHostRepository(t *testing.T) {
	t.Run("create and get roundtrip", func(t *testing.T) {
		pool := setupTestPool(t)
		repo := NewHostRepository(pool)
		host := mustCreateHost(t, pool, testfixtures.WithHostPriority(2))

		got, err := repo.GetHost(context.Background(), host.ID)
		if err != nil {
			t.Fatalf("GetHost: %v", err)
		}
		if got.Email != host.Email || got.Priority != 2 || !got.Active {
			t.Fatalf("got %+v, want %+v", got, host)
		}
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		pool := setupTestPool(t)
		repo := NewHostRepository(pool)
		host := mustCreateHost(t, pool)

		duplicate := testfixtures.NewHostFixture(testfixtures.WithHostEmail(host.Email)).Persistence()
		if err := repo.CreateHost(context.Background(), duplicate); err != persistence.ErrDuplicate {
			t.Fatalf("err = %v, want ErrDuplicate", err)
		}
	})

	t.Run("inactive hosts are excluded from the active list", func(t *testing.T) {
		pool := setupTestPool(t)
		repo := NewHostRepository(pool)
		active := mustCreateHost(t, pool)
		mustCreateHost(t, pool, testfixtures.WithHostActive(false))

		hosts, err := repo.ListActiveHosts(context.Background())
		if err != nil {
			t.Fatalf("ListActiveHosts: %v", err)
		}
		if len(hosts) != 1 || hosts[0].ID != active.ID {
			t.Fatalf("active hosts = %+v, want only %s", hosts, active.ID)
		}
	})

	t.Run("missing host yields ErrNotFound", func(t *testing.T) {
		pool := setupTestPool(t)

		if _, err := NewHostRepository(pool).GetHost(context.Background(), "missing"); err != persistence.ErrNotFound {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestAvailabilityRepository(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewAvailabilityRepository(pool)
	hostA := mustCreateHost(t, pool)
	hostB := mustCreateHost(t, pool)

	windows := []persistence.AvailabilityWindow{
		{ID: "w1", HostID: hostA.ID, Weekday: 1, StartTime: "09:00", EndTime: "12:00", Timezone: "Europe/Paris"},
		{ID: "w2", HostID: hostA.ID, Weekday: 3, StartTime: "14:00", EndTime: "18:00", Timezone: "Europe/Paris"},
		{ID: "w3", HostID: hostB.ID, Weekday: 1, StartTime: "10:00", EndTime: "16:00", Timezone: "UTC"},
	}
	for _, window := range windows {
		if err := repo.CreateWindow(context.Background(), window); err != nil {
			t.Fatalf("CreateWindow(%s): %v", window.ID, err)
		}
	}

	got, err := repo.ListWindowsForHosts(context.Background(), []string{hostA.ID})
	if err != nil {
		t.Fatalf("ListWindowsForHosts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("windows for %s = %d, want 2", hostA.ID, len(got))
	}
	if got[0].ID != "w1" || got[1].ID != "w2" {
		t.Fatalf("window order = %s, %s", got[0].ID, got[1].ID)
	}

	if got, err := repo.ListWindowsForHosts(context.Background(), nil); err != nil || got != nil {
		t.Fatalf("empty host list: got %v, %v", got, err)
	}

	unknown := persistence.AvailabilityWindow{ID: "w4", HostID: "missing", Weekday: 1, StartTime: "09:00", EndTime: "10:00", Timezone: "UTC"}
	if err := repo.CreateWindow(context.Background(), unknown); err != persistence.ErrForeignKeyViolation {
		t.Fatalf("err = %v, want ErrForeignKeyViolation", err)
	}
}

func TestRuleSetRepository(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewRuleSetRepository(pool)

	set := persistence.DisqualificationRuleSet{
		ID:              "set-1",
		EventTemplateID: "template-001",
		Combinator:      "OR",
		Message:         "merci, mais non",
		RedirectURL:     "https://example.com/sorry",
		Rules: []persistence.DisqualificationRule{
			{ID: "rule-1", FieldRef: "q-phone", Operator: "is_not", ExpectedValue: "+33"},
			{ID: "rule-2", FieldRef: "q-size", Operator: "is", ExpectedValue: "1-10"},
		},
	}
	if err := repo.CreateRuleSet(context.Background(), set); err != nil {
		t.Fatalf("CreateRuleSet: %v", err)
	}

	got, err := repo.GetRuleSetForTemplate(context.Background(), "template-001")
	if err != nil {
		t.Fatalf("GetRuleSetForTemplate: %v", err)
	}
	if got.Combinator != "OR" || got.Message != "merci, mais non" {
		t.Fatalf("got %+v", got)
	}
	if len(got.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(got.Rules))
	}
	if got.Rules[0].ID != "rule-1" || got.Rules[0].RuleSetID != "set-1" {
		t.Fatalf("first rule = %+v", got.Rules[0])
	}

	if _, err := repo.GetRuleSetForTemplate(context.Background(), "ungated"); err != persistence.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// One gate per template.
	second := set
	second.ID = "set-2"
	second.Rules = nil
	if err := repo.CreateRuleSet(context.Background(), second); err != persistence.ErrDuplicate {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}
