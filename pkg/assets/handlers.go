package assets

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tiancaiamao/hostbridge/pkg/rpc"
	"github.com/tiancaiamao/hostbridge/pkg/scene"
)

// maxSearchResults caps how many assets a search returns.
const maxSearchResults = 20

// RegisterStatus adds the always-available integration status commands.
func RegisterStatus(reg *rpc.Registry, flags rpc.FlagSource) {
	status := func(flag string) rpc.Handler {
		return func(context.Context, rpc.Params) (any, error) {
			return map[string]any{"enabled": flags.Enabled(flag)}, nil
		}
	}
	reg.Register(rpc.CommandGetPolyHavenStatus, status(rpc.FlagPolyHaven))
	reg.Register(rpc.CommandGetHyper3DStatus, status(rpc.FlagHyper3D))
}

// RegisterPolyHaven adds the Poly Haven commands, gated on FlagPolyHaven.
func RegisterPolyHaven(reg *rpc.Registry, ph *PolyHaven, s *scene.Scene) {
	reg.RegisterGated(rpc.FlagPolyHaven, rpc.CommandGetPolyHavenCategories, func(ctx context.Context, p rpc.Params) (any, error) {
		assetType, err := p.OptString("asset_type", "hdris")
		if err != nil {
			return nil, err
		}
		cats, err := ph.Categories(ctx, assetType)
		if err != nil {
			return nil, err
		}
		return map[string]any{"categories": cats}, nil
	})

	reg.RegisterGated(rpc.FlagPolyHaven, rpc.CommandSearchPolyHavenAssets, func(ctx context.Context, p rpc.Params) (any, error) {
		assetType, err := p.OptString("asset_type", "all")
		if err != nil {
			return nil, err
		}
		var categories []string
		if p.Has("categories") {
			if categories, err = categoryList(p); err != nil {
				return nil, err
			}
		}
		found, err := ph.Search(ctx, assetType, categories)
		if err != nil {
			return nil, err
		}
		return topAssets(found), nil
	})

	reg.RegisterGated(rpc.FlagPolyHaven, rpc.CommandDownloadPolyHavenAsset, func(ctx context.Context, p rpc.Params) (any, error) {
		id, err := p.String("asset_id")
		if err != nil {
			return nil, err
		}
		assetType, err := p.String("asset_type")
		if err != nil {
			return nil, err
		}
		if err := validAssetType(assetType); err != nil || assetType == "all" {
			return nil, fmt.Errorf("Unsupported asset type: %s", assetType)
		}
		resolution, err := p.OptString("resolution", "1k")
		if err != nil {
			return nil, err
		}

		available, err := ph.Resolutions(ctx, id)
		if err != nil {
			return nil, err
		}
		if !contains(available, resolution) {
			return nil, fmt.Errorf("Requested resolution %s not available for %s (available: %s)",
				resolution, id, strings.Join(available, ", "))
		}

		obj, err := importAsset(s, id, assetType)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"success":    true,
			"message":    fmt.Sprintf("Imported %s at %s as %s", id, resolution, obj.Name),
			"object":     obj.Name,
			"resolution": resolution,
		}, nil
	})
}

// categoryList accepts categories as a list or a comma-separated string.
func categoryList(p rpc.Params) ([]string, error) {
	if s, ok := p["categories"].(string); ok {
		var out []string
		for _, c := range strings.Split(s, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
		return out, nil
	}
	return p.StringSlice("categories")
}

// topAssets keeps the most downloaded assets.
func topAssets(found map[string]Asset) map[string]any {
	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := found[ids[i]], found[ids[j]]
		if a.DownloadCount != b.DownloadCount {
			return a.DownloadCount > b.DownloadCount
		}
		return ids[i] < ids[j]
	})
	if len(ids) > maxSearchResults {
		ids = ids[:maxSearchResults]
	}
	top := make(map[string]Asset, len(ids))
	for _, id := range ids {
		top[id] = found[id]
	}
	return map[string]any{
		"assets":         top,
		"total_count":    len(found),
		"returned_count": len(top),
	}
}

// importAsset places a stand-in object for a downloaded asset. HDRIs set
// up the world lighting and become an empty; textures land on a plane.
func importAsset(s *scene.Scene, id, assetType string) (*scene.Object, error) {
	name := "polyhaven_" + id
	var (
		obj *scene.Object
		err error
	)
	switch assetType {
	case "hdris":
		obj = s.Add(&scene.Object{Name: name, Type: scene.Empty, Scale: scene.Vector{1, 1, 1}})
	case "textures":
		obj, err = s.AddPrimitive(scene.Plane, name, scene.Vector{})
	default:
		obj, err = s.AddPrimitive(scene.Cube, name, scene.Vector{})
	}
	if err != nil {
		return nil, err
	}
	obj.Source = "polyhaven:" + id
	return obj, nil
}

// RegisterHyper3D adds the Hyper3D commands, gated on FlagHyper3D.
func RegisterHyper3D(reg *rpc.Registry, g *Generator, s *scene.Scene) {
	reg.RegisterGated(rpc.FlagHyper3D, rpc.CommandGenerateHyper3DViaText, func(_ context.Context, p rpc.Params) (any, error) {
		prompt, err := p.String("text_prompt")
		if err != nil {
			return nil, err
		}
		job, err := g.Submit(prompt, nil)
		if err != nil {
			return nil, err
		}
		return submitted(job), nil
	})

	reg.RegisterGated(rpc.FlagHyper3D, rpc.CommandGenerateHyper3DViaImages, func(_ context.Context, p rpc.Params) (any, error) {
		urls, err := p.StringSlice("input_image_urls")
		if err != nil {
			return nil, err
		}
		if len(urls) == 0 {
			return nil, fmt.Errorf("input_image_urls must not be empty")
		}
		job, err := g.Submit("", urls)
		if err != nil {
			return nil, err
		}
		return submitted(job), nil
	})

	reg.RegisterGated(rpc.FlagHyper3D, rpc.CommandPollRodinJobStatus, func(_ context.Context, p rpc.Params) (any, error) {
		id, err := p.String("job_id")
		if err != nil {
			return nil, err
		}
		job, err := g.Status(id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"job_id": job.ID, "status": job.Status}, nil
	})

	reg.RegisterGated(rpc.FlagHyper3D, rpc.CommandImportGeneratedAsset, func(_ context.Context, p rpc.Params) (any, error) {
		name, err := p.String("name")
		if err != nil {
			return nil, err
		}
		id, err := p.OptString("job_id", "")
		if err != nil {
			return nil, err
		}
		if id == "" {
			job, ok := g.LatestCompleted()
			if !ok {
				return nil, fmt.Errorf("No completed generation job to import")
			}
			id = job.ID
		}
		if err := g.MarkImported(id); err != nil {
			return nil, err
		}
		obj, err := s.AddPrimitive(scene.UVSphere, name, scene.Vector{})
		if err != nil {
			return nil, err
		}
		obj.Source = "hyper3d:" + id
		return map[string]any{"success": true, "name": obj.Name, "job_id": id}, nil
	})
}

func submitted(job *Job) map[string]any {
	return map[string]any{
		"success": true,
		"job_id":  job.ID,
		"status":  job.Status,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
