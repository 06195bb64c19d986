package geo

import (
	"context"
	"errors"
	"testing"
	"time"
)

type locatorFunc func(ctx context.Context, opts Options) (Position, error)

func (f locatorFunc) Locate(ctx context.Context, opts Options) (Position, error) {
	return f(ctx, opts)
}

func TestAcquireOnce_RequestsFreshHighAccuracyFix(t *testing.T) {
	var got Options
	a := NewAcquirer(locatorFunc(func(_ context.Context, opts Options) (Position, error) {
		got = opts
		return Position{Latitude: 19.0760, Longitude: 72.8777, Timestamp: time.Now()}, nil
	}), 0)

	pos, err := a.AcquireOnce(context.Background())
	if err != nil {
		t.Fatalf("AcquireOnce() error = %v", err)
	}
	if pos.Latitude != 19.0760 || pos.Longitude != 72.8777 {
		t.Errorf("unexpected position %+v", pos)
	}
	if !got.HighAccuracy {
		t.Error("expected high accuracy to be requested")
	}
	if got.MaximumAge != 0 {
		t.Errorf("expected caching disabled, got maximum age %s", got.MaximumAge)
	}
	if got.Timeout != DefaultTimeout {
		t.Errorf("expected timeout %s, got %s", DefaultTimeout, got.Timeout)
	}
}

func TestAcquireOnce_Classification(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "permission denied", err: ErrPermissionDenied, wantErr: ErrPermissionDenied},
		{name: "unavailable", err: ErrPositionUnavailable, wantErr: ErrPositionUnavailable},
		{name: "locator timeout", err: ErrTimeout, wantErr: ErrTimeout},
		{name: "deadline from locator", err: context.DeadlineExceeded, wantErr: ErrTimeout},
		{name: "unknown error", err: errors.New("gps chip on fire"), wantErr: ErrPositionUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAcquirer(locatorFunc(func(context.Context, Options) (Position, error) {
				return Position{}, tt.err
			}), time.Second)
			_, err := a.AcquireOnce(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AcquireOnce() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAcquireOnce_TimesOutWhenLocatorHangs(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	a := NewAcquirer(locatorFunc(func(context.Context, Options) (Position, error) {
		<-release // ignores its context on purpose
		return Position{}, nil
	}), 20*time.Millisecond)

	start := time.Now()
	_, err := a.AcquireOnce(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("AcquireOnce() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}

func TestAcquireOnce_ParentCancellationIsNotTimeout(t *testing.T) {
	a := NewAcquirer(locatorFunc(func(ctx context.Context, _ Options) (Position, error) {
		<-ctx.Done()
		return Position{}, ctx.Err()
	}), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.AcquireOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("AcquireOnce() error = %v, want context.Canceled", err)
	}
}

func TestAcquireOnce_RejectsStaleFix(t *testing.T) {
	a := NewAcquirer(locatorFunc(func(context.Context, Options) (Position, error) {
		return Position{Latitude: 1, Longitude: 1, Timestamp: time.Now().Add(-time.Minute)}, nil
	}), time.Second)

	_, err := a.AcquireOnce(context.Background())
	if !errors.Is(err, ErrPositionUnavailable) {
		t.Errorf("AcquireOnce() error = %v, want ErrPositionUnavailable", err)
	}
}

func TestAcquireOnce_RejectsOutOfRangeCoordinates(t *testing.T) {
	a := NewAcquirer(locatorFunc(func(context.Context, Options) (Position, error) {
		return Position{Latitude: 91, Longitude: 0}, nil
	}), time.Second)

	if _, err := a.AcquireOnce(context.Background()); !errors.Is(err, ErrPositionUnavailable) {
		t.Errorf("AcquireOnce() error = %v, want ErrPositionUnavailable", err)
	}
}

func TestAcquireOnce_NoLocator(t *testing.T) {
	a := NewAcquirer(nil, time.Second)
	if _, err := a.AcquireOnce(context.Background()); !errors.Is(err, ErrPositionUnavailable) {
		t.Errorf("AcquireOnce() error = %v, want ErrPositionUnavailable", err)
	}
}

func TestFormatCoordinates(t *testing.T) {
	tests := []struct {
		pos  Position
		want string
	}{
		{Position{Latitude: 19.0760, Longitude: 72.8777}, "19.0760°N, 72.8777°E"},
		{Position{Latitude: -33.8688, Longitude: 151.2093}, "33.8688°S, 151.2093°E"},
		{Position{Latitude: 40.7128, Longitude: -74.0060}, "40.7128°N, 74.0060°W"},
		{Position{}, "0.0000°N, 0.0000°E"},
	}
	for _, tt := range tests {
		if got := FormatCoordinates(tt.pos); got != tt.want {
			t.Errorf("FormatCoordinates(%+v) = %q, want %q", tt.pos, got, tt.want)
		}
	}
}

func TestStaticLocator(t *testing.T) {
	a := NewAcquirer(StaticLocator{Latitude: 12.5, Longitude: -3.25}, time.Second)
	pos, err := a.AcquireOnce(context.Background())
	if err != nil {
		t.Fatalf("AcquireOnce() error = %v", err)
	}
	if pos.Latitude != 12.5 || pos.Longitude != -3.25 {
		t.Errorf("unexpected position %+v", pos)
	}
}
