package script

import (
	"github.com/Shopify/go-lua"

	"github.com/tiancaiamao/hostbridge/pkg/scene"
)

// sceneFunctions is the `scene` table available to scripts.
func sceneFunctions(s *scene.Scene) []lua.RegistryFunction {
	return []lua.RegistryFunction{
		{Name: "name", Function: func(l *lua.State) int {
			l.PushString(s.Name())
			return 1
		}},
		{Name: "objects", Function: func(l *lua.State) int {
			l.NewTable()
			for i, name := range s.Names() {
				l.PushString(name)
				l.RawSetInt(-2, i+1)
			}
			return 1
		}},
		{Name: "get", Function: func(l *lua.State) int {
			obj, ok := s.Get(lua.CheckString(l, 1))
			if !ok {
				l.PushNil()
				return 1
			}
			pushObject(l, obj)
			return 1
		}},
		{Name: "add", Function: func(l *lua.State) int {
			kind := lua.CheckString(l, 1)
			name := lua.OptString(l, 2, "")
			loc := scene.Vector{lua.OptNumber(l, 3, 0), lua.OptNumber(l, 4, 0), lua.OptNumber(l, 5, 0)}
			obj, err := s.AddPrimitive(scene.Primitive(kind), name, loc)
			if err != nil {
				lua.Errorf(l, "%s", err.Error())
			}
			l.PushString(obj.Name)
			return 1
		}},
		{Name: "remove", Function: func(l *lua.State) int {
			if err := s.Remove(lua.CheckString(l, 1)); err != nil {
				lua.Errorf(l, "%s", err.Error())
			}
			return 0
		}},
		{Name: "rename", Function: func(l *lua.State) int {
			name, err := s.Rename(lua.CheckString(l, 1), lua.CheckString(l, 2))
			if err != nil {
				lua.Errorf(l, "%s", err.Error())
			}
			l.PushString(name)
			return 1
		}},
		{Name: "set_location", Function: vectorSetter(s, func(o *scene.Object, v scene.Vector) { o.Location = v })},
		{Name: "set_rotation", Function: vectorSetter(s, func(o *scene.Object, v scene.Vector) { o.Rotation = v })},
		{Name: "set_scale", Function: vectorSetter(s, func(o *scene.Object, v scene.Vector) { o.Scale = v })},
		{Name: "clear", Function: func(l *lua.State) int {
			s.Clear()
			return 0
		}},
	}
}

func vectorSetter(s *scene.Scene, set func(*scene.Object, scene.Vector)) lua.Function {
	return func(l *lua.State) int {
		obj, err := s.Lookup(lua.CheckString(l, 1))
		if err != nil {
			lua.Errorf(l, "%s", err.Error())
		}
		set(obj, scene.Vector{lua.CheckNumber(l, 2), lua.CheckNumber(l, 3), lua.CheckNumber(l, 4)})
		return 0
	}
}

func pushVector(l *lua.State, v scene.Vector) {
	l.NewTable()
	for i, c := range v {
		l.PushNumber(c)
		l.RawSetInt(-2, i+1)
	}
}

func pushObject(l *lua.State, o *scene.Object) {
	l.NewTable()
	l.PushString(o.Name)
	l.SetField(-2, "name")
	l.PushString(string(o.Type))
	l.SetField(-2, "type")
	pushVector(l, o.Location)
	l.SetField(-2, "location")
	pushVector(l, o.Rotation)
	l.SetField(-2, "rotation")
	pushVector(l, o.Scale)
	l.SetField(-2, "scale")
	if o.Mesh != nil {
		l.PushInteger(o.Mesh.Vertices)
		l.SetField(-2, "vertices")
	}
}
