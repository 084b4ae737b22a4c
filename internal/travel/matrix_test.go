package travel

import (
	"context"
	"testing"

	"github.com/fieldroute/fieldroute/internal/geo"
)

func TestBuildMatrix(t *testing.T) {
	points := []geo.Point{
		{Lat: 30.45, Lon: -91.18},
		{Lat: 30.55, Lon: -91.00},
		{Lat: 30.65, Lon: -90.80},
	}

	m, err := BuildMatrix(context.Background(), SpeedEstimator{}, points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range m {
		if m[i][i] != 0 {
			t.Errorf("diagonal [%d][%d] = %d, want 0", i, i, m[i][i])
		}
		for j := range m[i] {
			if m[i][j] != m[j][i] {
				t.Errorf("matrix not symmetric at (%d,%d)", i, j)
			}
		}
	}
	if m[0][2] <= 0 {
		t.Errorf("expected positive travel time for distinct points, got %d", m[0][2])
	}
}

func TestBuildMatrix_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	points := []geo.Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}}
	if _, err := BuildMatrix(ctx, SpeedEstimator{}, points); err == nil {
		t.Fatal("expected context error")
	}
}

func TestMatrixPathMinutes(t *testing.T) {
	m := Matrix{
		{0, 10, 20},
		{10, 0, 5},
		{20, 5, 0},
	}
	if got := m.PathMinutes([]int{0, 1, 2}); got != 15 {
		t.Errorf("expected 15, got %d", got)
	}
	if got := m.PathMinutes([]int{1}); got != 0 {
		t.Errorf("single stop path should be 0, got %d", got)
	}
	if got := m.PathMinutes(nil); got != 0 {
		t.Errorf("empty path should be 0, got %d", got)
	}
}
