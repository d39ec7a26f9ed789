// Package scene is the simulated host's object graph.
//
// A Scene is owned by the host loop and is not safe for concurrent use:
// every read and write must happen on the loop goroutine, which is exactly
// what the command server's executor guarantees.
package scene

import (
	"errors"
	"fmt"
	"strings"
)

// Vector is an XYZ triple.
type Vector [3]float64

// ObjectType mirrors the host's object kinds.
type ObjectType string

const (
	Mesh   ObjectType = "MESH"
	Light  ObjectType = "LIGHT"
	Camera ObjectType = "CAMERA"
	Empty  ObjectType = "EMPTY"
)

// MeshStats counts mesh elements.
type MeshStats struct {
	Vertices int `json:"vertices"`
	Edges    int `json:"edges"`
	Polygons int `json:"polygons"`
}

// Object is one node of the scene.
type Object struct {
	Name     string
	Type     ObjectType
	Location Vector
	Rotation Vector // euler, radians
	Scale    Vector
	Mesh     *MeshStats
	// Source records where an imported object came from, e.g. "polyhaven:rock_01".
	Source string
}

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("object not found")

// NotFoundError reports a missing object by name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Object not found: %s", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Scene is an ordered set of uniquely named objects.
type Scene struct {
	name    string
	objects []*Object
}

// New creates an empty scene.
func New(name string) *Scene {
	return &Scene{name: name}
}

// NewDefault creates the host's startup scene: a cube, a light and a camera.
func NewDefault() *Scene {
	s := New("Scene")
	cube, _ := NewPrimitive(Cube)
	cube.Name = "Cube"
	s.Add(cube)
	s.Add(&Object{
		Name:     "Light",
		Type:     Light,
		Location: Vector{4.0762, 1.0055, 5.9039},
		Rotation: Vector{0.6503, 0.0552, 1.8664},
		Scale:    Vector{1, 1, 1},
	})
	s.Add(&Object{
		Name:     "Camera",
		Type:     Camera,
		Location: Vector{7.3589, -6.9258, 4.9583},
		Rotation: Vector{1.1093, 0, 0.8149},
		Scale:    Vector{1, 1, 1},
	})
	return s
}

// Name returns the scene name.
func (s *Scene) Name() string { return s.name }

// SetName renames the scene.
func (s *Scene) SetName(name string) { s.name = name }

// Len returns the number of objects.
func (s *Scene) Len() int { return len(s.objects) }

// Objects returns the objects in insertion order.
func (s *Scene) Objects() []*Object {
	return append([]*Object(nil), s.objects...)
}

// Names returns object names in insertion order.
func (s *Scene) Names() []string {
	names := make([]string, len(s.objects))
	for i, o := range s.objects {
		names[i] = o.Name
	}
	return names
}

func (s *Scene) index(name string) int {
	for i, o := range s.objects {
		if o.Name == name {
			return i
		}
	}
	return -1
}

// Get returns the object called name.
func (s *Scene) Get(name string) (*Object, bool) {
	if i := s.index(name); i >= 0 {
		return s.objects[i], true
	}
	return nil, false
}

// Lookup is Get returning a NotFoundError.
func (s *Scene) Lookup(name string) (*Object, error) {
	if o, ok := s.Get(name); ok {
		return o, nil
	}
	return nil, &NotFoundError{Name: name}
}

// UniqueName returns base, or base with the first free ".NNN" suffix.
func (s *Scene) UniqueName(base string) string {
	if base == "" {
		base = "Object"
	}
	if s.index(base) < 0 {
		return base
	}
	stem := base
	if i := strings.LastIndexByte(base, '.'); i > 0 && isDigits(base[i+1:]) {
		stem = base[:i]
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.%03d", stem, n)
		if s.index(candidate) < 0 {
			return candidate
		}
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Add inserts obj, renaming it if its name is taken, and returns it.
func (s *Scene) Add(obj *Object) *Object {
	obj.Name = s.UniqueName(obj.Name)
	if obj.Scale == (Vector{}) {
		obj.Scale = Vector{1, 1, 1}
	}
	s.objects = append(s.objects, obj)
	return obj
}

// Remove deletes the object called name.
func (s *Scene) Remove(name string) error {
	i := s.index(name)
	if i < 0 {
		return &NotFoundError{Name: name}
	}
	s.objects = append(s.objects[:i], s.objects[i+1:]...)
	return nil
}

// Rename changes an object's name. The new name is made unique.
func (s *Scene) Rename(oldName, newName string) (string, error) {
	obj, err := s.Lookup(oldName)
	if err != nil {
		return "", err
	}
	if oldName == newName {
		return newName, nil
	}
	obj.Name = s.UniqueName(newName)
	return obj.Name, nil
}

// Clear removes every object.
func (s *Scene) Clear() {
	s.objects = nil
}
