package pointcloud

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/golang/geo/r3"
)

// IsInvalid reports whether v is the float32 invalid sentinel written by the
// conversion chain, or not a finite number.
func IsInvalid(v float32) bool {
	return v >= math.MaxFloat32 || v <= -math.MaxFloat32 || math.IsNaN(float64(v))
}

// Container holds point clouds keyed by label. A label's cloud is replaced
// wholesale by Put; its backing array is reused between puts.
type Container struct {
	mu     sync.RWMutex
	clouds map[int][]r3.Vector
}

// NewContainer returns an empty container.
func NewContainer() *Container {
	return &Container{clouds: make(map[int][]r3.Vector)}
}

// Put stores the points (xs[i], ys[i], zs[i]) under label, replacing any
// previous cloud with that label. Points carrying an invalid X or Z are
// skipped. It returns the number of points stored.
func (c *Container) Put(label int, xs, ys, zs []float32) (int, error) {
	if len(xs) != len(ys) || len(xs) != len(zs) {
		return 0, fmt.Errorf("pointcloud: coordinate lengths differ: x=%d y=%d z=%d", len(xs), len(ys), len(zs))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pts := c.clouds[label][:0]
	for i := range xs {
		if IsInvalid(xs[i]) || IsInvalid(zs[i]) {
			continue
		}
		pts = append(pts, r3.Vector{X: float64(xs[i]), Y: float64(ys[i]), Z: float64(zs[i])})
	}
	c.clouds[label] = pts
	return len(pts), nil
}

// Size returns the number of points across all labels.
func (c *Container) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, pts := range c.clouds {
		n += len(pts)
	}
	return n
}

// Labels returns the labels in ascending order.
func (c *Container) Labels() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	labels := make([]int, 0, len(c.clouds))
	for l := range c.clouds {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// Iterate calls fn for every point, label by label in ascending order, until
// fn returns false. fn must not call back into the container.
func (c *Container) Iterate(fn func(label int, p r3.Vector) bool) {
	labels := c.Labels()

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range labels {
		for _, p := range c.clouds[l] {
			if !fn(l, p) {
				return
			}
		}
	}
}

// Bounds returns the axis-aligned bounding box of every stored point.
// ok is false when the container is empty.
func (c *Container) Bounds() (lo, hi r3.Vector, ok bool) {
	lo = r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi = r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	c.Iterate(func(_ int, p r3.Vector) bool {
		ok = true
		lo = r3.Vector{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vector{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
		return true
	})
	if !ok {
		return r3.Vector{}, r3.Vector{}, false
	}
	return lo, hi, true
}
