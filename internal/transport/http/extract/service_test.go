package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-catalog-server-go/internal/core/providers/vlllm"
	"product-catalog-server-go/internal/domain/catalog"
	"product-catalog-server-go/internal/platform/errors"
	testutil "product-catalog-server-go/internal/platform/testing"
	httptransport "product-catalog-server-go/internal/transport/http"
)

type fakeExtractor struct {
	parts  []catalog.FilePart
	reqID  string
	result catalog.Result
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, parts []catalog.FilePart) (catalog.Result, error) {
	f.parts = parts
	f.reqID = catalog.RequestIDFrom(ctx)
	return f.result, f.err
}

func (f *fakeExtractor) PresetName() string { return "standard" }

type stubModel struct {
	reply string
	calls int
	last  vlllm.Invocation
}

func (m *stubModel) Invoke(_ context.Context, inv vlllm.Invocation) (string, error) {
	m.calls++
	m.last = inv
	return m.reply, nil
}

type upload struct {
	field, filename, contentType string
	data                         []byte
}

func multipartBody(t *testing.T, uploads []upload, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for _, u := range uploads {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+u.field+`"; filename="`+u.filename+`"`)
		if u.contentType != "" {
			header.Set("Content-Type", u.contentType)
		}
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(u.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func newTestRouter(t *testing.T, extractor Extractor, maxUpload int64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testutil.SetupTestConfig(t)
	logger := testutil.SetupTestLogger(t)
	router, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logger})
	require.NoError(t, err)

	svc, err := NewService(extractor, "gpt-4o", maxUpload, logger)
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), router.Root))
	return router.Engine
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (httptransport.APIResponse, httptransport.ErrorData) {
	t.Helper()
	var envelope struct {
		httptransport.APIResponse
		Data httptransport.ErrorData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.APIResponse, envelope.Data
}

func TestHandlePost_PassesFilePartsInOrder(t *testing.T) {
	extractor := &fakeExtractor{result: catalog.Result{"itemName": "Plak", "totalImageCount": 2}}
	engine := newTestRouter(t, extractor, 1<<20)

	body, contentType := multipartBody(t, []upload{
		{"images", "b.jpg", "image/jpeg", []byte("bb")},
		{"images", `C:\fakepath\a.png`, "image/png", []byte("aa")},
	}, map[string]string{"note": "ignored"})

	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"itemName":"Plak","totalImageCount":2}`, rec.Body.String())

	require.Len(t, extractor.parts, 2)
	assert.Equal(t, catalog.FilePart{Field: "images", Filename: "b.jpg", ContentType: "image/jpeg", Data: []byte("bb")}, extractor.parts[0])
	assert.Equal(t, `C:\fakepath\a.png`, extractor.parts[1].Filename)

	requestID := rec.Header().Get(httptransport.RequestIDHeader)
	assert.NotEmpty(t, requestID)
	assert.Equal(t, requestID, extractor.reqID)
}

func TestHandlePost_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantRaw    string
	}{
		{"input", errors.New(errors.KindInput, "catalog.collect", "no usable image supplied"), http.StatusBadRequest, "input", ""},
		{"unsupported", errors.New(errors.KindUnsupportedFormat, "catalog.format", "unsupported media type"), http.StatusBadRequest, "unsupported_format", ""},
		{"codec", errors.New(errors.KindCodec, "catalog.encode", "none decodable"), http.StatusInternalServerError, "codec", ""},
		{"model", errors.New(errors.KindModel, "catalog.invoke", "vision model call timed out"), http.StatusInternalServerError, "model", ""},
		{"parse", errors.New(errors.KindParse, "catalog.reconcile", "model reply is not valid JSON").WithDetail("Merhaba"), http.StatusInternalServerError, "parse", "Merhaba"},
		{"untyped", context.Canceled, http.StatusInternalServerError, "unknown", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestRouter(t, &fakeExtractor{err: tt.err}, 1<<20)
			body, contentType := multipartBody(t, []upload{{"image", "a.jpg", "", []byte("x")}}, nil)

			req := httptest.NewRequest(http.MethodPost, "/extract", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			envelope, data := decodeEnvelope(t, rec)
			assert.False(t, envelope.Success)
			assert.Equal(t, tt.wantStatus, envelope.Code)
			assert.Equal(t, tt.wantKind, data.Kind)
			assert.Equal(t, tt.wantRaw, data.RawResponse)
			assert.Equal(t, rec.Header().Get(httptransport.RequestIDHeader), data.RequestID)
			assert.NotEmpty(t, data.Error)
		})
	}
}

func TestHandlePost_BodyTooLarge(t *testing.T) {
	extractor := &fakeExtractor{}
	engine := newTestRouter(t, extractor, 1024)

	body, contentType := multipartBody(t, []upload{{"images", "big.jpg", "image/jpeg", bytes.Repeat([]byte("x"), 4096)}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Nil(t, extractor.parts)
}

func TestHandlePost_NotMultipart(t *testing.T) {
	extractor := &fakeExtractor{}
	engine := newTestRouter(t, extractor, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(`{"image":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, data := decodeEnvelope(t, rec)
	assert.Equal(t, "input", data.Kind)
}

func TestHandleGetAndOptions(t *testing.T) {
	engine := newTestRouter(t, &fakeExtractor{}, 1<<20)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extract", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "model=gpt-4o")
	assert.Contains(t, rec.Body.String(), "preset=standard")

	preflight := httptest.NewRequest(http.MethodOptions, "/extract", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	preflight.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, preflight)
	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/extract", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Allow"))
}

func TestExtractEndToEnd(t *testing.T) {
	cfg := testutil.SetupTestConfig(t)
	model := &stubModel{reply: "```json\n{\"itemName\":\"X\",\"totalImageCount\":100}\n```"}
	svc, err := catalog.NewService(catalog.Options{
		Extraction: cfg.Extraction,
		Security:   cfg.Security,
		Model:      model,
		Logger:     testutil.SetupTestLogger(t),
	})
	require.NoError(t, err)
	engine := newTestRouter(t, svc, cfg.Server.MaxUploadBytes)

	t.Run("five images under images", func(t *testing.T) {
		var uploads []upload
		for _, name := range []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg"} {
			uploads = append(uploads, upload{"images", name, "image/jpeg", testutil.JPEGBytes(t, 120, 80)})
		}
		body, contentType := multipartBody(t, uploads, nil)
		req := httptest.NewRequest(http.MethodPost, "/extract", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var result struct {
			ItemName             string                  `json:"itemName"`
			TotalImageCount      int                     `json:"totalImageCount"`
			AIAnalysisImageCount int                     `json:"aiAnalysisImageCount"`
			ImageFilenames       []string                `json:"imageFilenames"`
			Images               []catalog.StorageRecord `json:"images"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

		assert.Equal(t, "X", result.ItemName)
		assert.Equal(t, 5, result.TotalImageCount)
		assert.Equal(t, 3, result.AIAnalysisImageCount)
		assert.Equal(t, []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg"}, result.ImageFilenames)
		require.Len(t, result.Images, 5)
		for i, record := range result.Images {
			assert.Equal(t, i < 3, record.UsedForAI)
		}
		assert.Equal(t, 1, model.calls)
		assert.Len(t, model.last.Parts, 4)
	})

	t.Run("zero files", func(t *testing.T) {
		calls := model.calls
		body, contentType := multipartBody(t, nil, map[string]string{"title": "no files"})
		req := httptest.NewRequest(http.MethodPost, "/extract", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		_, data := decodeEnvelope(t, rec)
		assert.Equal(t, "input", data.Kind)
		assert.Equal(t, calls, model.calls)
	})
}
