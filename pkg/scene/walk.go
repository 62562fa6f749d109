package scene

import (
	"errors"
	"fmt"
	"slices"

	"github.com/taigrr/lumen/pkg/math3d"
)

// VisitFunc is called for each node with its world-from-local transform.
type VisitFunc func(idx int, n *Node, world math3d.Mat4)

type walkFrame struct {
	node   int
	parent math3d.Mat4
	// leave marks the point where node's subtree is finished.
	leave bool
}

// Walk visits the nodes reachable from the scene roots in depth-first
// pre-order, with world = parent * local. A node shared by several
// parents is visited once per path. A child that is already on the
// current path is skipped and reported through the returned ErrCycle;
// out-of-range children are skipped and reported as ErrBadNode. The rest
// of the hierarchy is still visited.
func Walk(sc *Scene, root math3d.Mat4, visit VisitFunc) error {
	var errs []error
	onPath := make([]bool, len(sc.Nodes))
	stack := make([]walkFrame, 0, len(sc.Nodes))

	push := func(nodes []int, parent math3d.Mat4) {
		for _, n := range slices.Backward(nodes) {
			stack = append(stack, walkFrame{node: n, parent: parent})
		}
	}
	push(sc.Roots, root)

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.leave {
			onPath[f.node] = false
			continue
		}
		if f.node < 0 || f.node >= len(sc.Nodes) {
			errs = append(errs, fmt.Errorf("node %d: %w", f.node, ErrBadNode))
			continue
		}
		if onPath[f.node] {
			errs = append(errs, fmt.Errorf("node %d: %w", f.node, ErrCycle))
			continue
		}
		onPath[f.node] = true
		stack = append(stack, walkFrame{node: f.node, leave: true})

		n := &sc.Nodes[f.node]
		world := f.parent.Mul(n.Local())
		visit(f.node, n, world)
		push(n.Children, world)
	}
	return errors.Join(errs...)
}

// Validate checks that every root, child, mesh and camera reference is in
// range and that no node is its own ancestor.
func Validate(sc *Scene) error {
	inRange := func(i, n int) bool { return i >= 0 && i < n }

	for _, r := range sc.Roots {
		if !inRange(r, len(sc.Nodes)) {
			return fmt.Errorf("root %d: %w", r, ErrBadNode)
		}
	}
	for i, n := range sc.Nodes {
		for _, c := range n.Children {
			if !inRange(c, len(sc.Nodes)) {
				return fmt.Errorf("node %d child %d: %w", i, c, ErrBadNode)
			}
		}
		if n.Mesh != -1 && !inRange(n.Mesh, len(sc.Meshes)) {
			return fmt.Errorf("node %d mesh %d: %w", i, n.Mesh, ErrBadNode)
		}
		if n.Camera != -1 && !inRange(n.Camera, len(sc.Cameras)) {
			return fmt.Errorf("node %d camera %d: %w", i, n.Camera, ErrBadNode)
		}
	}

	// Iterative three-color depth-first search over every node.
	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, len(sc.Nodes))
	type frame struct{ node, next int }
	for start := range sc.Nodes {
		if color[start] != white {
			continue
		}
		stack := []frame{{node: start}}
		color[start] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := sc.Nodes[top.node].Children
			if top.next == len(children) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}
			c := children[top.next]
			top.next++
			switch color[c] {
			case grey:
				return fmt.Errorf("node %d reaches ancestor %d: %w", top.node, c, ErrCycle)
			case white:
				color[c] = grey
				stack = append(stack, frame{node: c})
			}
		}
	}
	return nil
}
