package assets

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiancaiamao/hostbridge/pkg/logger"
	"github.com/tiancaiamao/hostbridge/pkg/rpc"
	"github.com/tiancaiamao/hostbridge/pkg/scene"
)

type flagMap map[string]bool

func (f flagMap) Enabled(flag string) bool { return f[flag] }

func fakePolyHaven(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/categories/hdris", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"all": 3, "outdoor": 2, "studio": 1}`)
	})
	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("categories") == "rocks" {
			fmt.Fprint(w, `{"rock_01": {"name": "Rock 01", "type": 2, "categories": ["rocks"], "download_count": 10}}`)
			return
		}
		w.Write([]byte("{"))
		for i := 0; i < 25; i++ {
			if i > 0 {
				w.Write([]byte(","))
			}
			fmt.Fprintf(w, `"asset_%02d": {"name": "Asset %d", "type": 0, "categories": ["x"], "download_count": %d}`, i, i, i)
		}
		w.Write([]byte("}"))
	})
	mux.HandleFunc("/files/rock_01", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"gltf": {"1k": {"gltf": {"url": "x"}}, "2k": {"gltf": {"url": "y"}}}, "blend": {"4k": {}}}`)
	})
	mux.HandleFunc("/files/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "asset not found", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newAssetDispatcher(t *testing.T, flags rpc.FlagSource) (*rpc.Dispatcher, *scene.Scene, *Generator) {
	t.Helper()
	srv, _ := fakePolyHaven(t)
	s := scene.New("Scene")
	gen := NewGenerator(func() string { return "test-key" })
	gen.SetGenerationTicks(2)

	reg := rpc.NewRegistry()
	RegisterStatus(reg, flags)
	RegisterPolyHaven(reg, NewPolyHaven(srv.URL, srv.Client()), s)
	RegisterHyper3D(reg, gen, s)
	return rpc.NewDispatcher(reg, flags, rpc.WithLogger(logger.Discard())), s, gen
}

func dispatch(t *testing.T, d *rpc.Dispatcher, typ string, params rpc.Params) rpc.Response {
	t.Helper()
	return d.Dispatch(context.Background(), rpc.Command{Type: typ, Params: params})
}

func TestStatusCommandsFollowFlags(t *testing.T) {
	flags := flagMap{rpc.FlagPolyHaven: true}
	d, _, _ := newAssetDispatcher(t, flags)

	resp := dispatch(t, d, rpc.CommandGetPolyHavenStatus, nil)
	assert.Equal(t, map[string]any{"enabled": true}, resp.Result)
	resp = dispatch(t, d, rpc.CommandGetHyper3DStatus, nil)
	assert.Equal(t, map[string]any{"enabled": false}, resp.Result)
}

func TestGatedCommandsAreUnknownWhenDisabled(t *testing.T) {
	d, _, _ := newAssetDispatcher(t, flagMap{})

	resp := dispatch(t, d, rpc.CommandGetPolyHavenCategories, nil)
	assert.Equal(t, rpc.StatusError, resp.Status)
	assert.Equal(t, "Unknown command type: get_polyhaven_categories", resp.Message)

	resp = dispatch(t, d, rpc.CommandGenerateHyper3DViaText, rpc.Params{"text_prompt": "a chair"})
	assert.Equal(t, "Unknown command type: generate_hyper3d_model_via_text", resp.Message)
}

func TestPolyHavenCategories(t *testing.T) {
	d, _, _ := newAssetDispatcher(t, flagMap{rpc.FlagPolyHaven: true})

	resp := dispatch(t, d, rpc.CommandGetPolyHavenCategories, rpc.Params{"asset_type": "hdris"})
	require.Equal(t, rpc.StatusSuccess, resp.Status, resp.Message)
	assert.Equal(t, map[string]any{"categories": map[string]int{"all": 3, "outdoor": 2, "studio": 1}}, resp.Result)

	resp = dispatch(t, d, rpc.CommandGetPolyHavenCategories, rpc.Params{"asset_type": "sounds"})
	assert.Equal(t, rpc.StatusError, resp.Status)
	assert.Contains(t, resp.Message, "Invalid asset type: sounds")
}

func TestPolyHavenSearchKeepsTopResults(t *testing.T) {
	d, _, _ := newAssetDispatcher(t, flagMap{rpc.FlagPolyHaven: true})

	resp := dispatch(t, d, rpc.CommandSearchPolyHavenAssets, nil)
	require.Equal(t, rpc.StatusSuccess, resp.Status, resp.Message)
	result := resp.Result.(map[string]any)
	assert.Equal(t, 25, result["total_count"])
	assert.Equal(t, maxSearchResults, result["returned_count"])
	top := result["assets"].(map[string]Asset)
	assert.Contains(t, top, "asset_24")
	assert.NotContains(t, top, "asset_00")

	resp = dispatch(t, d, rpc.CommandSearchPolyHavenAssets, rpc.Params{"asset_type": "models", "categories": "rocks"})
	require.Equal(t, rpc.StatusSuccess, resp.Status, resp.Message)
	assert.Equal(t, 1, resp.Result.(map[string]any)["total_count"])
}

func TestPolyHavenDownloadImportsObject(t *testing.T) {
	d, s, _ := newAssetDispatcher(t, flagMap{rpc.FlagPolyHaven: true})

	resp := dispatch(t, d, rpc.CommandDownloadPolyHavenAsset, rpc.Params{
		"asset_id": "rock_01", "asset_type": "models", "resolution": "2k",
	})
	require.Equal(t, rpc.StatusSuccess, resp.Status, resp.Message)
	obj, ok := s.Get("polyhaven_rock_01")
	require.True(t, ok)
	assert.Equal(t, "polyhaven:rock_01", obj.Source)
	assert.Equal(t, scene.Mesh, obj.Type)

	resp = dispatch(t, d, rpc.CommandDownloadPolyHavenAsset, rpc.Params{
		"asset_id": "rock_01", "asset_type": "models", "resolution": "8k",
	})
	assert.Equal(t, rpc.StatusError, resp.Status)
	assert.Contains(t, resp.Message, "available: 1k, 2k, 4k")

	resp = dispatch(t, d, rpc.CommandDownloadPolyHavenAsset, rpc.Params{
		"asset_id": "missing", "asset_type": "models",
	})
	assert.Equal(t, rpc.StatusError, resp.Status)
	assert.Contains(t, resp.Message, "API error (404)")
}

func TestPolyHavenCachesResponses(t *testing.T) {
	srv, hits := fakePolyHaven(t)
	ph := NewPolyHaven(srv.URL, srv.Client())

	for i := 0; i < 3; i++ {
		_, err := ph.Categories(context.Background(), "hdris")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestHyper3DJobLifecycle(t *testing.T) {
	d, s, gen := newAssetDispatcher(t, flagMap{rpc.FlagHyper3D: true})

	resp := dispatch(t, d, rpc.CommandGenerateHyper3DViaText, rpc.Params{"text_prompt": "a wooden chair"})
	require.Equal(t, rpc.StatusSuccess, resp.Status, resp.Message)
	id := resp.Result.(map[string]any)["job_id"].(string)
	require.NotEmpty(t, id)

	poll := func() JobStatus {
		resp := dispatch(t, d, rpc.CommandPollRodinJobStatus, rpc.Params{"job_id": id})
		require.Equal(t, rpc.StatusSuccess, resp.Status, resp.Message)
		return resp.Result.(map[string]any)["status"].(JobStatus)
	}
	assert.Equal(t, JobQueued, poll())

	resp = dispatch(t, d, rpc.CommandImportGeneratedAsset, rpc.Params{"name": "Chair", "job_id": id})
	assert.Equal(t, rpc.StatusError, resp.Status)
	assert.Contains(t, resp.Message, "not complete")

	gen.Advance()
	assert.Equal(t, JobGenerating, poll())
	gen.Advance()
	gen.Advance()
	assert.Equal(t, JobCompleted, poll())

	resp = dispatch(t, d, rpc.CommandImportGeneratedAsset, rpc.Params{"name": "Chair"})
	require.Equal(t, rpc.StatusSuccess, resp.Status, resp.Message)
	obj, ok := s.Get("Chair")
	require.True(t, ok)
	assert.Equal(t, "hyper3d:"+id, obj.Source)

	resp = dispatch(t, d, rpc.CommandImportGeneratedAsset, rpc.Params{"name": "Chair"})
	assert.Equal(t, rpc.StatusError, resp.Status)
}

func TestHyper3DRequiresKeyAndInput(t *testing.T) {
	gen := NewGenerator(func() string { return "" })
	_, err := gen.Submit("a chair", nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)

	gen = NewGenerator(func() string { return "k" })
	_, err = gen.Submit("", nil)
	assert.Error(t, err)

	job, err := gen.Submit("", []string{"http://example.com/a.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.com/a.png"}, job.ImageURLs)
	assert.Len(t, gen.Jobs(), 1)

	_, err = gen.Status("nope")
	assert.Error(t, err)
}

func TestAPIErrorMessage(t *testing.T) {
	assert.Equal(t, "API error (502): Bad Gateway", (&APIError{StatusCode: 502}).Error())
	assert.Equal(t, "API error (404): gone", (&APIError{StatusCode: 404, Message: "gone\n"}).Error())
}
