package scene

import (
	"fmt"
	"sort"
	"strings"
)

// Primitive names a built-in mesh.
type Primitive string

const (
	Cube     Primitive = "cube"
	UVSphere Primitive = "uv_sphere"
	Plane    Primitive = "plane"
	Cylinder Primitive = "cylinder"
	Cone     Primitive = "cone"
	Monkey   Primitive = "monkey"
)

// Element counts of the host's default primitive meshes.
var primitives = map[Primitive]struct {
	name  string
	stats MeshStats
}{
	Cube:     {"Cube", MeshStats{Vertices: 8, Edges: 12, Polygons: 6}},
	UVSphere: {"Sphere", MeshStats{Vertices: 482, Edges: 992, Polygons: 512}},
	Plane:    {"Plane", MeshStats{Vertices: 4, Edges: 4, Polygons: 1}},
	Cylinder: {"Cylinder", MeshStats{Vertices: 64, Edges: 96, Polygons: 34}},
	Cone:     {"Cone", MeshStats{Vertices: 33, Edges: 64, Polygons: 33}},
	Monkey:   {"Suzanne", MeshStats{Vertices: 507, Edges: 1005, Polygons: 500}},
}

// Primitives lists the supported primitive names.
func Primitives() []string {
	names := make([]string, 0, len(primitives))
	for p := range primitives {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}

// NewPrimitive builds an unattached mesh object at the origin.
func NewPrimitive(kind Primitive) (*Object, error) {
	p, ok := primitives[Primitive(strings.ToLower(string(kind)))]
	if !ok {
		return nil, fmt.Errorf("unknown primitive %q (want one of %s)", kind, strings.Join(Primitives(), ", "))
	}
	stats := p.stats
	return &Object{
		Name:  p.name,
		Type:  Mesh,
		Scale: Vector{1, 1, 1},
		Mesh:  &stats,
	}, nil
}

// AddPrimitive creates a primitive at loc and adds it. An empty name keeps
// the primitive's default name.
func (s *Scene) AddPrimitive(kind Primitive, name string, loc Vector) (*Object, error) {
	obj, err := NewPrimitive(kind)
	if err != nil {
		return nil, err
	}
	if name != "" {
		obj.Name = name
	}
	obj.Location = loc
	return s.Add(obj), nil
}
