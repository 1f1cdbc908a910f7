package phrasecluster

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
)

// KMeansResult carries the final partition of one clustering run. Cluster
// ids are dense in [0, K) and no cluster is empty.
type KMeansResult struct {
	K           int
	Assignments []int
	Centroids   [][]float64
	Inertia     float64
}

// Cluster partitions the vectors into groups of similar vectors. The cluster
// count comes from cfg.K, or from an elbow scan when cfg.K is AutoK. A fixed
// cfg.Seed makes the partition reproducible; without one the best of
// cfg.Restarts randomized runs (lowest inertia) wins.
func Cluster(vectors [][]float32, cfg ClusterConfig) (*KMeansResult, error) {
	n := len(vectors)
	if n == 0 {
		return &KMeansResult{Assignments: []int{}}, nil
	}
	points := toFloat64(vectors)
	if len(points[0]) == 0 {
		return singleCluster(points), nil
	}
	var k int
	if cfg.K.Auto() {
		if n == 1 {
			return singleCluster(points), nil
		}
		k = optimalK(points, cfg)
	} else {
		k = int(cfg.K)
		if n < k {
			return nil, fmt.Errorf("%w: %d units for k=%d", ErrInsufficientData, n, k)
		}
	}
	res := runBest(points, k, cfg)
	return enforceMinSize(points, res, cfg.MinClusterSize), nil
}

// optimalK scans the configured k range and picks the elbow of the inertia
// curve by the max-gradient rule.
func optimalK(points [][]float64, cfg ClusterConfig) int {
	n := len(points)
	kMin := cfg.AutoKMin
	if kMin < 2 {
		kMin = 2
	}
	kMax := cfg.AutoKMax
	if kMax <= 0 {
		kMax = 20
	}
	if kMax > n-1 {
		kMax = n - 1
	}
	if kMax < kMin {
		if kMax < 1 {
			return 1
		}
		return kMax
	}
	if kMin == kMax {
		return kMin
	}
	inertias := make([]float64, 0, kMax-kMin+1)
	for k := kMin; k <= kMax; k++ {
		inertias = append(inertias, runBest(points, k, cfg).Inertia)
	}
	grad := gradient(inertias)
	best := 0
	for i, g := range grad {
		if g > grad[best] {
			best = i
		}
	}
	return kMin + best
}

// gradient computes central differences, forward/backward at the edges.
func gradient(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) < 2 {
		return out
	}
	out[0] = v[1] - v[0]
	out[len(v)-1] = v[len(v)-1] - v[len(v)-2]
	for i := 1; i < len(v)-1; i++ {
		out[i] = (v[i+1] - v[i-1]) / 2
	}
	return out
}

func runBest(points [][]float64, k int, cfg ClusterConfig) *KMeansResult {
	if k <= 1 {
		return singleCluster(points)
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 300
	}
	if cfg.Seed != nil {
		return kmeansRun(points, k, maxIter, rand.New(rand.NewSource(*cfg.Seed)))
	}
	restarts := cfg.Restarts
	if restarts < 1 {
		restarts = 1
	}
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	var best *KMeansResult
	for r := 0; r < restarts; r++ {
		res := kmeansRun(points, k, maxIter, rand.New(rand.NewSource(src.Int63())))
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best
}

// kmeansRun is a single Lloyd iteration loop: k-means++ seeding, then
// reassign/recompute until assignments settle or maxIter is hit.
func kmeansRun(points [][]float64, k, maxIter int, rng *rand.Rand) *KMeansResult {
	dim := len(points[0])
	centroids := seedCentroids(points, k, rng)
	assignments := make([]int, len(points))
	for i := range assignments {
		assignments[i] = -1
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			c, _ := nearestCentroid(p, centroids)
			if c != assignments[i] {
				assignments[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			c := assignments[i]
			counts[c]++
			floats.Add(sums[c], p)
		}
		for c := range sums {
			if counts[c] == 0 {
				// Re-seed an emptied centroid from the point
				// farthest from its current assignment.
				sums[c] = clonePoint(points[farthestPoint(points, centroids, assignments)])
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
		}
		centroids = sums
	}
	return finalize(points, assignments, k)
}

// seedCentroids picks k starting centroids k-means++ style: each next
// centroid is drawn proportionally to squared distance from the chosen set.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clonePoint(points[rng.Intn(n)]))
	dists := make([]float64, n)
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			_, d := nearestCentroid(p, centroids)
			dists[i] = d
			total += d
		}
		if total == 0 {
			// All remaining points coincide with a centroid.
			centroids = append(centroids, clonePoint(points[rng.Intn(n)]))
			continue
		}
		r := rng.Float64() * total
		idx := n - 1
		var acc float64
		for i, d := range dists {
			acc += d
			if acc >= r {
				idx = i
				break
			}
		}
		centroids = append(centroids, clonePoint(points[idx]))
	}
	return centroids
}

// nearestCentroid returns the index of the closest centroid and the squared
// distance to it. Ties resolve to the lowest index.
func nearestCentroid(p []float64, centroids [][]float64) (int, float64) {
	best := 0
	bestDist := sqDist(p, centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := sqDist(p, centroids[c]); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best, bestDist
}

func farthestPoint(points, centroids [][]float64, assignments []int) int {
	best := 0
	bestDist := -1.0
	for i, p := range points {
		if d := sqDist(p, centroids[assignments[i]]); d > bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// enforceMinSize dissolves clusters below the configured minimum and
// reassigns their members to the nearest surviving centroid. When every
// cluster is undersized the partition is kept as-is.
func enforceMinSize(points [][]float64, res *KMeansResult, minSize int) *KMeansResult {
	if minSize <= 1 || res.K <= 1 {
		return res
	}
	counts := make([]int, res.K)
	for _, c := range res.Assignments {
		counts[c]++
	}
	survivors := make([]int, 0, res.K)
	for c, size := range counts {
		if size >= minSize {
			survivors = append(survivors, c)
		}
	}
	if len(survivors) == 0 || len(survivors) == res.K {
		return res
	}
	kept := make([][]float64, len(survivors))
	oldToNew := make(map[int]int, len(survivors))
	for i, c := range survivors {
		kept[i] = res.Centroids[c]
		oldToNew[c] = i
	}
	assignments := make([]int, len(points))
	for i, c := range res.Assignments {
		if nc, ok := oldToNew[c]; ok {
			assignments[i] = nc
			continue
		}
		nc, _ := nearestCentroid(points[i], kept)
		assignments[i] = nc
	}
	return finalize(points, assignments, len(kept))
}

// finalize compacts empty cluster ids and recomputes centroids and inertia
// from the final assignments.
func finalize(points [][]float64, assignments []int, k int) *KMeansResult {
	counts := make([]int, k)
	for _, c := range assignments {
		counts[c]++
	}
	remap := make([]int, k)
	kept := 0
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			remap[c] = -1
			continue
		}
		remap[c] = kept
		kept++
	}
	dim := len(points[0])
	centroids := make([][]float64, kept)
	sizes := make([]int, kept)
	for c := range centroids {
		centroids[c] = make([]float64, dim)
	}
	out := make([]int, len(points))
	for i, c := range assignments {
		nc := remap[c]
		out[i] = nc
		sizes[nc]++
		floats.Add(centroids[nc], points[i])
	}
	for c := range centroids {
		floats.Scale(1/float64(sizes[c]), centroids[c])
	}
	var inertia float64
	for i, p := range points {
		inertia += sqDist(p, centroids[out[i]])
	}
	return &KMeansResult{K: kept, Assignments: out, Centroids: centroids, Inertia: inertia}
}

func singleCluster(points [][]float64) *KMeansResult {
	dim := len(points[0])
	centroid := make([]float64, dim)
	for _, p := range points {
		floats.Add(centroid, p)
	}
	floats.Scale(1/float64(len(points)), centroid)
	var inertia float64
	for _, p := range points {
		inertia += sqDist(p, centroid)
	}
	return &KMeansResult{
		K:           1,
		Assignments: make([]int, len(points)),
		Centroids:   [][]float64{centroid},
		Inertia:     inertia,
	}
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clonePoint(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}

func toFloat64(vectors [][]float32) [][]float64 {
	out := make([][]float64, len(vectors))
	for i, vec := range vectors {
		p := make([]float64, len(vec))
		for j, v := range vec {
			p[j] = float64(v)
		}
		out[i] = p
	}
	return out
}
