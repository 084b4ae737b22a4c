package travel

import (
	"context"
	"fmt"

	"github.com/fieldroute/fieldroute/internal/geo"
)

// Matrix is a dense symmetric travel-time matrix in minutes. Matrix[i][j]
// is the travel time between points i and j; the diagonal is zero.
type Matrix [][]int

// BuildMatrix computes the pairwise travel-time matrix for the given points
// using the estimator. Each unordered pair is estimated once.
func BuildMatrix(ctx context.Context, est Estimator, points []geo.Point) (Matrix, error) {
	n := len(points)
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]int, n)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			minutes, err := est.Minutes(ctx, points[i], points[j])
			if err != nil {
				return nil, fmt.Errorf("estimate travel %d->%d: %w", i, j, err)
			}
			m[i][j] = minutes
			m[j][i] = minutes
		}
	}
	return m, nil
}

// PathMinutes sums the travel time along an ordered index path.
func (m Matrix) PathMinutes(path []int) int {
	total := 0
	for i := 1; i < len(path); i++ {
		total += m[path[i-1]][path[i]]
	}
	return total
}
