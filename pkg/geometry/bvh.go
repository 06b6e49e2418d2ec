package geometry

import (
	"math"

	"github.com/df07/go-instancing/pkg/core"
)

// Relative window within which two hit distances count as the same hit
const hitTieEpsilon = 1e-9

func tieWindow(t float64) float64 {
	return hitTieEpsilon * math.Max(1, math.Abs(t))
}

// closerHit reports whether candidate should replace current. Hits within
// the tie window resolve to the lower primitive index, so the result does
// not depend on traversal order or on the space the ray was traced in.
func closerHit(candidate, current *core.SurfaceInteraction) bool {
	if current == nil {
		return true
	}
	window := tieWindow(current.T)
	if candidate.T < current.T-window {
		return true
	}
	return candidate.T <= current.T+window && candidate.PrimIndex < current.PrimIndex
}

// hitLimit is the far bound for further queries once current is known.
// It stays open by the tie window so tied hits are still reported.
func hitLimit(current *core.SurfaceInteraction, tMax float64) float64 {
	if current == nil {
		return tMax
	}
	return math.Min(tMax, current.T+tieWindow(current.T))
}

// BVHNode represents a node in the Bounding Volume Hierarchy
type BVHNode struct {
	BoundingBox core.AABB
	Left        *BVHNode
	Right       *BVHNode
	Shapes      []core.Shape // Multiple shapes for leaf nodes (nil for internal nodes)
}

// BVH represents a Bounding Volume Hierarchy for fast ray-object intersection
type BVH struct {
	Root *BVHNode
}

// NewBVH constructs a BVH from a slice of shapes. Shapes whose bounding box
// is invalid cannot be placed and are left out.
func NewBVH(shapes []core.Shape) *BVH {
	// Copy so the caller's slice is never reordered
	placeable := make([]core.Shape, 0, len(shapes))
	for _, shape := range shapes {
		if shape.BoundingBox().IsValid() {
			placeable = append(placeable, shape)
		}
	}

	if len(placeable) == 0 {
		return &BVH{}
	}
	return &BVH{Root: buildBVH(placeable, 0)}
}

// Leaf threshold: if we have this many or fewer shapes, store them in a leaf node
const leafThreshold = 8

// buildBVH recursively builds the BVH using midpoint splits along the
// longest axis of the node bounds
func buildBVH(shapes []core.Shape, depth int) *BVHNode {
	boundingBox := core.EmptyAABB()
	for _, shape := range shapes {
		boundingBox = boundingBox.Union(shape.BoundingBox())
	}

	// Base case: few shapes - create leaf node with all shapes
	if len(shapes) <= leafThreshold {
		return &BVHNode{
			BoundingBox: boundingBox,
			Shapes:      shapes,
		}
	}

	bestAxis, splitPos := findBestSplitSimple(boundingBox)

	// If we couldn't find a good split, create a leaf
	if bestAxis == -1 {
		return &BVHNode{
			BoundingBox: boundingBox,
			Shapes:      shapes,
		}
	}

	leftShapes, rightShapes := partitionShapesSimple(shapes, bestAxis, splitPos)

	// Ensure we don't create empty partitions
	if len(leftShapes) == 0 || len(rightShapes) == 0 {
		return &BVHNode{
			BoundingBox: boundingBox,
			Shapes:      shapes,
		}
	}

	return &BVHNode{
		BoundingBox: boundingBox,
		Left:        buildBVH(leftShapes, depth+1),
		Right:       buildBVH(rightShapes, depth+1),
	}
}

// findBestSplitSimple picks the longest axis and its midpoint
func findBestSplitSimple(boundingBox core.AABB) (bestAxis int, splitPos float64) {
	bestAxis = boundingBox.LongestAxis()
	minVal := boundingBox.Min.Axis(bestAxis)
	maxVal := boundingBox.Max.Axis(bestAxis)

	// Skip if no extent along this axis
	if maxVal <= minVal {
		return -1, 0
	}

	return bestAxis, (minVal + maxVal) * 0.5
}

// partitionShapesSimple partitions shapes based on the chosen axis and split position
func partitionShapesSimple(shapes []core.Shape, axis int, splitPos float64) ([]core.Shape, []core.Shape) {
	var leftShapes, rightShapes []core.Shape

	for _, shape := range shapes {
		if shape.BoundingBox().Center().Axis(axis) < splitPos {
			leftShapes = append(leftShapes, shape)
		} else {
			rightShapes = append(rightShapes, shape)
		}
	}

	return leftShapes, rightShapes
}

// Hit returns the closest intersection among all shapes in the BVH
func (bvh *BVH) Hit(ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	if bvh.Root == nil {
		return nil, false
	}
	return bvh.hitNode(bvh.Root, ray, tMin, tMax)
}

// hitNode recursively tests ray intersection with BVH nodes, narrowing the
// interval as closer hits are found. Ties are broken by closerHit.
func (bvh *BVH) hitNode(node *BVHNode, ray core.Ray, tMin, tMax float64) (*core.SurfaceInteraction, bool) {
	// First check if ray hits the bounding box
	if !node.BoundingBox.Hit(ray, tMin, tMax) {
		return nil, false
	}

	var closest *core.SurfaceInteraction

	// If this is a leaf node, test against all shapes using linear search
	if node.Shapes != nil {
		for _, shape := range node.Shapes {
			if si, ok := shape.Hit(ray, tMin, hitLimit(closest, tMax)); ok && closerHit(si, closest) {
				closest = si
			}
		}
		return closest, closest != nil
	}

	for _, child := range [2]*BVHNode{node.Left, node.Right} {
		if child == nil {
			continue
		}
		if si, ok := bvh.hitNode(child, ray, tMin, hitLimit(closest, tMax)); ok && closerHit(si, closest) {
			closest = si
		}
	}

	return closest, closest != nil
}

// Test reports whether any shape in the BVH is hit, stopping at the first one
func (bvh *BVH) Test(ray core.Ray, tMin, tMax float64) bool {
	if bvh.Root == nil {
		return false
	}
	return bvh.testNode(bvh.Root, ray, tMin, tMax)
}

func (bvh *BVH) testNode(node *BVHNode, ray core.Ray, tMin, tMax float64) bool {
	if !node.BoundingBox.Hit(ray, tMin, tMax) {
		return false
	}
	if node.Shapes != nil {
		for _, shape := range node.Shapes {
			if shape.Test(ray, tMin, tMax) {
				return true
			}
		}
		return false
	}
	return (node.Left != nil && bvh.testNode(node.Left, ray, tMin, tMax)) ||
		(node.Right != nil && bvh.testNode(node.Right, ray, tMin, tMax))
}

// BoundingBox returns the overall bounding box of the BVH, invalid when empty
func (bvh *BVH) BoundingBox() core.AABB {
	if bvh.Root == nil {
		return core.EmptyAABB()
	}
	return bvh.Root.BoundingBox
}

// Stats returns statistics about the BVH structure
func (bvh *BVH) Stats() BVHStats {
	if bvh.Root == nil {
		return BVHStats{}
	}

	stats := BVHStats{}
	bvh.collectStats(bvh.Root, 0, &stats)

	// Calculate average depth after collecting all data
	if stats.LeafNodes > 0 {
		stats.AvgDepth = stats.AvgDepth / float64(stats.LeafNodes)
	}

	return stats
}

// BVHStats contains statistics about the BVH structure
type BVHStats struct {
	TotalNodes  int
	LeafNodes   int
	MaxDepth    int
	AvgDepth    float64
	TotalShapes int
}

// collectStats recursively collects statistics about the BVH
func (bvh *BVH) collectStats(node *BVHNode, depth int, stats *BVHStats) {
	stats.TotalNodes++

	if depth > stats.MaxDepth {
		stats.MaxDepth = depth
	}

	if node.Shapes != nil {
		stats.LeafNodes++
		stats.TotalShapes += len(node.Shapes)
		stats.AvgDepth += float64(depth) // Accumulate depth for average calculation
		return
	}
	if node.Left != nil {
		bvh.collectStats(node.Left, depth+1, stats)
	}
	if node.Right != nil {
		bvh.collectStats(node.Right, depth+1, stats)
	}
}
