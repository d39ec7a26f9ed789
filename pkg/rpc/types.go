package rpc

// Command is one request read from a command server connection.
type Command struct {
	// ID is an optional correlation id echoed on the response.
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	Params Params `json:"params,omitempty"`
}

// Response is the reply written back for a Command.
type Response struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Result  any    `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// IsError reports whether the response carries a failure.
func (r Response) IsError() bool {
	return r.Status == StatusError
}

// Command type constants
const (
	CommandGetSceneInfo       = "get_scene_info"
	CommandGetObjectInfo      = "get_object_info"
	CommandExecuteCode        = "execute_code"
	CommandGetPolyHavenStatus = "get_polyhaven_status"
	CommandGetHyper3DStatus   = "get_hyper3d_status"

	CommandGetPolyHavenCategories = "get_polyhaven_categories"
	CommandSearchPolyHavenAssets  = "search_polyhaven_assets"
	CommandDownloadPolyHavenAsset = "download_polyhaven_asset"

	CommandGenerateHyper3DViaText   = "generate_hyper3d_model_via_text"
	CommandGenerateHyper3DViaImages = "generate_hyper3d_model_via_images"
	CommandPollRodinJobStatus       = "poll_rodin_job_status"
	CommandImportGeneratedAsset     = "import_generated_asset"
)

// Feature flags guarding the gated command sets.
const (
	FlagPolyHaven = "use_polyhaven"
	FlagHyper3D   = "use_hyper3d"
)

// SuccessResponse creates a successful response.
func SuccessResponse(id string, result any) Response {
	return Response{
		ID:     id,
		Status: StatusSuccess,
		Result: result,
	}
}

// ErrorResponse creates an error response.
func ErrorResponse(id, message string) Response {
	return Response{
		ID:      id,
		Status:  StatusError,
		Message: message,
	}
}
