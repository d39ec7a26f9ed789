package scene

import (
	"context"

	"github.com/tiancaiamao/hostbridge/pkg/rpc"
)

// Info summarizes a scene.
type Info struct {
	Name        string   `json:"name"`
	ObjectCount int      `json:"object_count"`
	Objects     []string `json:"objects"`
}

// ObjectInfo describes one object.
type ObjectInfo struct {
	Name          string     `json:"name"`
	Type          ObjectType `json:"type"`
	Location      Vector     `json:"location"`
	RotationEuler Vector     `json:"rotation_euler"`
	Scale         Vector     `json:"scale"`
	MeshStats     *MeshStats `json:"mesh_stats,omitempty"`
}

// Info returns the scene summary.
func (s *Scene) Info() Info {
	return Info{
		Name:        s.name,
		ObjectCount: len(s.objects),
		Objects:     s.Names(),
	}
}

// ObjectInfo describes the object called name.
func (s *Scene) ObjectInfo(name string) (ObjectInfo, error) {
	obj, err := s.Lookup(name)
	if err != nil {
		return ObjectInfo{}, err
	}
	info := ObjectInfo{
		Name:          obj.Name,
		Type:          obj.Type,
		Location:      obj.Location,
		RotationEuler: obj.Rotation,
		Scale:         obj.Scale,
	}
	if obj.Type == Mesh && obj.Mesh != nil {
		stats := *obj.Mesh
		info.MeshStats = &stats
	}
	return info, nil
}

// Register adds the scene query commands to reg.
func Register(reg *rpc.Registry, s *Scene) {
	reg.Register(rpc.CommandGetSceneInfo, func(context.Context, rpc.Params) (any, error) {
		return s.Info(), nil
	})
	reg.Register(rpc.CommandGetObjectInfo, func(_ context.Context, p rpc.Params) (any, error) {
		name, err := p.String("object_name")
		if err != nil {
			return nil, err
		}
		return s.ObjectInfo(name)
	})
}
