package scene

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes a readable summary of sc: the node tree from each root,
// then the mesh, camera and material tables.
func Fprint(w io.Writer, sc *Scene) error {
	var b strings.Builder
	fmt.Fprintf(&b, "scene %q: %d nodes, %d roots\n", sc.Name, len(sc.Nodes), len(sc.Roots))

	type entry struct{ node, depth int }
	seen := make([]bool, len(sc.Nodes))
	for _, root := range sc.Roots {
		stack := []entry{{root, 1}}
		for len(stack) > 0 {
			e := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			indent := strings.Repeat("  ", e.depth)
			if e.node < 0 || e.node >= len(sc.Nodes) {
				fmt.Fprintf(&b, "%s[%d] <invalid>\n", indent, e.node)
				continue
			}
			n := &sc.Nodes[e.node]
			fmt.Fprintf(&b, "%s[%d] %s", indent, e.node, n.Name)
			if n.Mesh >= 0 && n.Mesh < len(sc.Meshes) {
				fmt.Fprintf(&b, " mesh=%s", sc.Meshes[n.Mesh].Name)
			}
			if n.Camera >= 0 && n.Camera < len(sc.Cameras) {
				fmt.Fprintf(&b, " camera=%s", sc.Cameras[n.Camera].Name)
			}
			if seen[e.node] {
				b.WriteString(" (revisited)\n")
				continue
			}
			seen[e.node] = true
			b.WriteByte('\n')
			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, entry{n.Children[i], e.depth + 1})
			}
		}
	}

	fmt.Fprintf(&b, "meshes: %d\n", len(sc.Meshes))
	for _, m := range sc.Meshes {
		if m.Err != nil {
			fmt.Fprintf(&b, "  %s: skipped: %v\n", m.Name, m.Err)
			continue
		}
		fmt.Fprintf(&b, "  %s: %d vertices, bounds %.3g..%.3g\n", m.Name, len(m.Vertices), m.BoundsMin, m.BoundsMax)
	}
	fmt.Fprintf(&b, "cameras: %d\n", len(sc.Cameras))
	for _, c := range sc.Cameras {
		fmt.Fprintf(&b, "  %s: vfov %.3g near %.3g far %.3g aspect %.3g\n", c.Name, c.VFov, c.Near, c.Far, c.AspectRatio)
	}
	fmt.Fprintf(&b, "materials: %d\n", len(sc.Materials))
	for _, m := range sc.Materials {
		tex := "none"
		if m.Image != nil {
			tex = m.Image.Bounds().Size().String()
		}
		fmt.Fprintf(&b, "  %s: base color %.3g texture %s\n", m.Name, m.BaseColor, tex)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
