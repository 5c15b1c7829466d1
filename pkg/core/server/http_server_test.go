package server

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"FaceRecDev/pkg/config"
	"FaceRecDev/pkg/core/jobs"
	"FaceRecDev/pkg/maths"
	"FaceRecDev/pkg/recognition"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pixels = 64

func init() {
	gin.SetMode(gin.TestMode)
}

// testGallery 每个身份一张随机原型脸，样本为原型加小噪声
type testGallery struct {
	rng        *rand.Rand
	prototypes [][]float64
}

func newTestGallery(seed uint64, identities int) *testGallery {
	g := &testGallery{rng: rand.New(rand.NewPCG(seed, 99))}
	for i := 0; i < identities; i++ {
		proto := make([]float64, pixels)
		for j := range proto {
			proto[j] = g.rng.Float64()
		}
		g.prototypes = append(g.prototypes, proto)
	}
	return g
}

func (g *testGallery) sample(identity int) []float64 {
	img := make([]float64, pixels)
	for j, x := range g.prototypes[identity] {
		img[j] = x + 0.02*(g.rng.Float64()-0.5)
	}
	return img
}

func (g *testGallery) request(perIdentity int) TrainRequest {
	labels := []string{"alice", "bob", "carol"}
	var req TrainRequest
	for i := range g.prototypes {
		s := SubjectInput{Label: labels[i]}
		for k := 0; k < perIdentity; k++ {
			s.Images = append(s.Images, g.sample(i))
		}
		req.Subjects = append(req.Subjects, s)
	}
	hiddens, epochs, target := 6, 3000, 0.005
	seed := uint64(7)
	req.Hiddens, req.MaxEpochs, req.TargetMSE, req.Seed = &hiddens, &epochs, &target, &seed
	return req
}

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	cfg := config.Default()
	cfg.Server.ModelDir = t.TempDir()
	hs := NewHTTPServer(cfg, nil, nil)
	t.Cleanup(hs.Jobs().Close)
	return hs
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestTrainThenRecognize(t *testing.T) {
	hs := newTestServer(t)
	srv := httptest.NewServer(hs.Router)
	defer srv.Close()

	g := newTestGallery(1, 3)
	req := g.request(4)

	w := doJSON(t, hs.Router, http.MethodPost, "/train", req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id := decode[map[string]string](t, w)["job_id"]
	require.NotEmpty(t, id)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/train/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// 订阅可能晚于前几轮，只检查轮次递增和最终的 done 消息
	last := 0
	var done ProgressMessage
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Minute)))
		var msg ProgressMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "done" {
			done = msg
			break
		}
		require.Equal(t, "epoch", msg.Type)
		require.NotNil(t, msg.Report)
		assert.Greater(t, msg.Report.Epoch, last)
		last = msg.Report.Epoch
	}
	require.NotNil(t, done.Job)
	assert.Equal(t, jobs.StatusSucceeded, done.Job.Status)

	// 任务状态在 SetPipeline 之后才变为成功
	require.NotNil(t, hs.Pipeline())

	w = doJSON(t, hs.Router, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[map[string]any](t, w)
	assert.Equal(t, true, status["model_loaded"])
	assert.Equal(t, []any{"alice", "bob", "carol"}, status["identities"])
	assert.EqualValues(t, 6, status["hiddens"])
	assert.EqualValues(t, pixels, status["image_size"])
	assert.Equal(t, "argmax", status["rule"])

	for i, s := range req.Subjects {
		for _, img := range s.Images {
			w = doJSON(t, hs.Router, http.MethodPost, "/recognize", map[string]any{"image": img})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			d := decode[recognition.Decision](t, w)
			assert.Equal(t, i, d.Index)
			assert.Equal(t, s.Label, d.Identity)
			assert.True(t, d.Known)
		}
	}

	// Base64 形式的图像
	data, err := EncodeVector(maths.NewVectorFrom(req.Subjects[1].Images[0]))
	require.NoError(t, err)
	w = doJSON(t, hs.Router, http.MethodPost, "/recognize", map[string]any{"image_data": data})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "bob", decode[recognition.Decision](t, w).Identity)

	w = doJSON(t, hs.Router, http.MethodPost, "/project", map[string]any{"image": req.Subjects[0].Images[0]})
	require.Equal(t, http.StatusOK, w.Code)
	features := decode[map[string][]float64](t, w)["features"]
	assert.Len(t, features, hs.Pipeline().Model().NumComponents())

	// 模型已写入目录
	loaded, err := recognition.LoadDir(hs.Config.Server.ModelDir, hs.Config.PipelineOptions())
	require.NoError(t, err)
	assert.Equal(t, hs.Pipeline().Identities(), loaded.Identities())

	w = doJSON(t, hs.Router, http.MethodGet, "/train/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[jobs.Snapshot](t, w)
	assert.Equal(t, jobs.StatusSucceeded, snap.Status)
	assert.Equal(t, hs.Pipeline().Epochs(), snap.Epoch)
}

func TestRecognizeWithoutModel(t *testing.T) {
	hs := newTestServer(t)

	w := doJSON(t, hs.Router, http.MethodPost, "/recognize", map[string]any{"image": []float64{1, 2}})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = doJSON(t, hs.Router, http.MethodPost, "/project", map[string]any{"image": []float64{1, 2}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, hs.Router, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["model_loaded"])
}

func TestTrainRejectsBadRequests(t *testing.T) {
	hs := newTestServer(t)

	cases := map[string]any{
		"no subjects":   map[string]any{"subjects": []any{}},
		"missing label": map[string]any{"subjects": []any{map[string]any{"images": [][]float64{{1}}}}},
		"no images":     map[string]any{"subjects": []any{map[string]any{"label": "a"}}},
		"bad base64":    map[string]any{"subjects": []any{map[string]any{"label": "a", "image_data": []string{"%%%"}}}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := doJSON(t, hs.Router, http.MethodPost, "/train", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/train", strings.NewReader("{"))
	w := httptest.NewRecorder()
	hs.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, hs.Jobs().List())
}

func TestRecognizeBadInput(t *testing.T) {
	hs := newTestServer(t)
	g := newTestGallery(1, 3)
	req := g.request(4)
	subjects, err := req.subjects()
	require.NoError(t, err)
	opts := hs.Config.BuildOptions()
	req.apply(&opts)
	opts.Run.MaxEpochs = 1
	p, err := recognition.Build(t.Context(), subjects, opts)
	require.NoError(t, err)
	hs.SetPipeline(p)

	cases := map[string]any{
		"wrong size":   map[string]any{"image": []float64{1, 2, 3}},
		"both forms":   map[string]any{"image": []float64{1}, "image_data": "AAAA"},
		"neither form": map[string]any{},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := doJSON(t, hs.Router, http.MethodPost, "/recognize", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, decode[map[string]string](t, w), "error")
		})
	}
}

func TestJobEndpoints(t *testing.T) {
	hs := newTestServer(t)

	w := doJSON(t, hs.Router, http.MethodGet, "/train/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, hs.Router, http.MethodDelete, "/train/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, hs.Router, http.MethodGet, "/train/missing/ws", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 训练轮数很大，取消后任务应当结束
	g := newTestGallery(2, 3)
	req := g.request(2)
	epochs, target := 1_000_000, 0.0
	req.MaxEpochs, req.TargetMSE = &epochs, &target
	w = doJSON(t, hs.Router, http.MethodPost, "/train", req)
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode[map[string]string](t, w)["job_id"]

	w = doJSON(t, hs.Router, http.MethodGet, "/train", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]jobs.Snapshot](t, w), 1)

	w = doJSON(t, hs.Router, http.MethodDelete, "/train/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	hs.Jobs().Wait()

	snap, err := hs.Jobs().Get(id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCancelled, snap.Status)
	assert.Nil(t, hs.Pipeline())
}

func TestCodecRoundTrip(t *testing.T) {
	v := maths.NewVectorFrom([]float64{0.5, -1, 3})
	s, err := EncodeVector(v)
	require.NoError(t, err)
	got, err := DecodeVector(s)
	require.NoError(t, err)
	assert.True(t, v.Equal(got))

	_, err = DecodeVector("not base64!")
	assert.ErrorIs(t, err, maths.ErrIO)

	// 只有长度头，声明 2^30 个元素
	header := make([]byte, 8)
	binary.LittleEndian.PutUint64(header, 1<<30)
	_, err = DecodeVector(base64.StdEncoding.EncodeToString(header))
	assert.ErrorIs(t, err, maths.ErrIO)

	// 多余字节
	raw, _ := EncodeVector(v)
	_, err = DecodeVector(raw + "AAAA")
	assert.ErrorIs(t, err, maths.ErrIO)
}
