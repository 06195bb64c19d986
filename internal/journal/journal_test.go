package journal

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"fieldattend/internal/queue"
	"fieldattend/internal/store"
)

func testEvent(typ, employee string, at time.Time) Event {
	lat, lon := 19.076, 72.8777
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		SessionID:  uuid.NewString(),
		EmployeeID: employee,
		Action:     "check_in",
		State:      "success",
		Latitude:   &lat,
		Longitude:  &lon,
		Address:    "Andheri East",
		CapturedAt: at,
		OccurredAt: at,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeEvent(t *testing.T) {
	e := testEvent(TypeSubmitted, "EMP-1", time.Now())
	msg, err := e.Message()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeEvent(msg)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if got.ID != e.ID || *got.Latitude != 19.076 {
		t.Errorf("DecodeEvent() = %+v", got)
	}

	if _, err := DecodeEvent(queue.Message{Type: TypeSubmitted, Body: []byte(`{}`)}); err == nil {
		t.Error("event without ids should be rejected")
	}
	if _, err := DecodeEvent(queue.Message{Body: []byte(`nope`)}); err == nil {
		t.Error("garbage should be rejected")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first := testEvent(TypeSubmitted, "EMP-1", base)
	if ok, _ := s.Insert(ctx, first); !ok {
		t.Fatal("first insert should store")
	}
	if ok, _ := s.Insert(ctx, first); ok {
		t.Error("replayed event should be ignored")
	}
	_, _ = s.Insert(ctx, testEvent(TypeSubmitFailed, "EMP-1", base.Add(time.Minute)))
	_, _ = s.Insert(ctx, testEvent(TypeSubmitted, "EMP-2", base.Add(2*time.Minute)))
	_, _ = s.Insert(ctx, testEvent(TypeSubmitted, "EMP-1", base.Add(3*time.Minute)))

	all, _ := s.List(ctx, Filter{})
	if len(all) != 3 {
		t.Fatalf("List() returned %d entries, want 3 after eviction", len(all))
	}
	if !all[0].OccurredAt.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("List() not newest first: %v", all[0].OccurredAt)
	}

	mine, _ := s.List(ctx, Filter{EmployeeID: "EMP-1", Type: TypeSubmitted})
	if len(mine) != 1 {
		t.Errorf("filtered List() = %d entries, want 1", len(mine))
	}
	paged, _ := s.List(ctx, Filter{Offset: 10})
	if len(paged) != 0 {
		t.Errorf("offset past end returned %d entries", len(paged))
	}
}

func TestRecorder_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(8)
	s := NewMemoryStore(10)
	rec := NewRecorder(s, quietLogger())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx, q) }()

	evt := testEvent(TypeSubmitted, "EMP-9", time.Now())
	msg, _ := evt.Message()
	_ = q.Publish(ctx, queue.Message{Type: "junk", Body: []byte("junk")})
	_ = q.Publish(ctx, msg)
	_ = q.Publish(ctx, msg)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _ := s.List(ctx, Filter{EmployeeID: "EMP-9"})
		if len(got) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("recorder stored %d entries, want 1", len(got))
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRepository(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := store.NewDB(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	repo := NewRepository(db.Client)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	employee := "test-" + uuid.NewString()
	evt := testEvent(TypeSubmitted, employee, time.Now().UTC().Truncate(time.Millisecond))
	if ok, err := repo.Insert(ctx, evt); err != nil || !ok {
		t.Fatalf("Insert() = %v, %v", ok, err)
	}
	if ok, err := repo.Insert(ctx, evt); err != nil || ok {
		t.Errorf("duplicate Insert() = %v, %v", ok, err)
	}
	got, err := repo.List(ctx, Filter{EmployeeID: employee})
	if err != nil || len(got) != 1 {
		t.Fatalf("List() = %d, %v", len(got), err)
	}
	if got[0].Address != "Andheri East" || got[0].Latitude == nil {
		t.Errorf("entry = %+v", got[0])
	}
	_, _ = db.Client.ExecContext(ctx, `DELETE FROM attendance_journal WHERE employee_id = $1`, employee)
}
