package geo

import (
	"runtime"
	"sort"
	"sync"
)

// Ranked pairs an item index with its distance from the query point
type Ranked struct {
	Index      int
	DistanceKm float64
}

// RankByDistance computes distances from origin to every point and
// returns indexes sorted nearest-first, dropping anything beyond
// maxRadiusKm (pass 0 for no limit). Distance math is fanned out over
// a bounded worker pool since map queries can return thousands of
// candidates.
func RankByDistance(origin Point, points []Point, maxRadiusKm float64) []Ranked {
	if len(points) == 0 {
		return nil
	}

	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8 // Cap at 8 workers to avoid overwhelming
	}
	if workers > len(points) {
		workers = len(points)
	}

	distances := make([]float64, len(points))
	jobs := make(chan int, len(points))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				distances[idx] = DistanceKm(origin, points[idx])
			}
		}()
	}

	for i := range points {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	ranked := make([]Ranked, 0, len(points))
	for i, d := range distances {
		if maxRadiusKm > 0 && d > maxRadiusKm {
			continue
		}
		ranked = append(ranked, Ranked{Index: i, DistanceKm: d})
	}

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})

	return ranked
}
