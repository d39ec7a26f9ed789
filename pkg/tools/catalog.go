package tools

import "github.com/tiancaiamao/hostbridge/pkg/rpc"

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func enum(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

// Catalog returns the canonical tool list.
func Catalog() *Registry {
	r := NewRegistry()
	for _, t := range catalog {
		r.Register(t)
	}
	return r
}

var catalog = []Tool{
	{
		Name:        rpc.CommandGetSceneInfo,
		Description: "Get the current scene's name, object count and object names.",
		Parameters:  object(map[string]any{}),
	},
	{
		Name:        rpc.CommandGetObjectInfo,
		Description: "Get location, rotation, scale and mesh statistics of one object.",
		Parameters: object(map[string]any{
			"object_name": str("Name of the object."),
		}, "object_name"),
	},
	{
		Name: rpc.CommandExecuteCode,
		Description: "Run a Lua script against the scene. The `scene` table offers name, objects, get, " +
			"add, remove, rename, set_location, set_rotation, set_scale and clear; print output is returned.",
		Parameters: object(map[string]any{
			"code": str("Lua source to run."),
		}, "code"),
	},
	{
		Name:        rpc.CommandGetPolyHavenStatus,
		Description: "Report whether the Poly Haven integration is enabled on the host.",
		Parameters:  object(map[string]any{}),
	},
	{
		Name:        rpc.CommandGetPolyHavenCategories,
		Description: "List Poly Haven categories for an asset type.",
		Parameters: object(map[string]any{
			"asset_type": enum("Asset type.", "hdris", "textures", "models", "all"),
		}),
		Gate: rpc.FlagPolyHaven,
	},
	{
		Name:        rpc.CommandSearchPolyHavenAssets,
		Description: "Search Poly Haven assets, most downloaded first.",
		Parameters: object(map[string]any{
			"asset_type": enum("Asset type.", "hdris", "textures", "models", "all"),
			"categories": str("Optional comma-separated categories to filter by."),
		}),
		Gate: rpc.FlagPolyHaven,
	},
	{
		Name:        rpc.CommandDownloadPolyHavenAsset,
		Description: "Download a Poly Haven asset and import it into the scene.",
		Parameters: object(map[string]any{
			"asset_id":   str("Poly Haven asset id."),
			"asset_type": enum("Asset type.", "hdris", "textures", "models"),
			"resolution": str("Resolution such as 1k, 2k or 4k. Defaults to 1k."),
		}, "asset_id", "asset_type"),
		Gate: rpc.FlagPolyHaven,
	},
	{
		Name:        rpc.CommandGetHyper3DStatus,
		Description: "Report whether the Hyper3D Rodin integration is enabled on the host.",
		Parameters:  object(map[string]any{}),
	},
	{
		Name:        rpc.CommandGenerateHyper3DViaText,
		Description: "Start generating a model from a text prompt. Returns a job id to poll.",
		Parameters: object(map[string]any{
			"text_prompt": str("Short English description of the model."),
		}, "text_prompt"),
		Gate: rpc.FlagHyper3D,
	},
	{
		Name:        rpc.CommandGenerateHyper3DViaImages,
		Description: "Start generating a model from reference images. Returns a job id to poll.",
		Parameters: object(map[string]any{
			"input_image_urls": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "URLs of reference images.",
			},
		}, "input_image_urls"),
		Gate: rpc.FlagHyper3D,
	},
	{
		Name:        rpc.CommandPollRodinJobStatus,
		Description: "Check a generation job. Status is QUEUED, GENERATING or COMPLETED.",
		Parameters: object(map[string]any{
			"job_id": str("Job id returned by a generate call."),
		}, "job_id"),
		Gate: rpc.FlagHyper3D,
	},
	{
		Name:        rpc.CommandImportGeneratedAsset,
		Description: "Import a completed generated model into the scene.",
		Parameters: object(map[string]any{
			"name":   str("Name for the imported object."),
			"job_id": str("Job to import. Defaults to the latest completed job."),
		}, "name"),
		Gate: rpc.FlagHyper3D,
	},
}
