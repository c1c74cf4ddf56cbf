package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HacksterAman/Clean-Bounty/internal/auth"
	"github.com/HacksterAman/Clean-Bounty/internal/classifier"
	"github.com/HacksterAman/Clean-Bounty/internal/imageprocessor"
	"github.com/HacksterAman/Clean-Bounty/internal/usecase"
	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

const testJWTSecret = "test-secret"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR-test-image")

func scenarioA() waste.ClassificationResult {
	return waste.ClassificationResult{Candidates: []waste.Candidate{
		{Type: "Plastic", Confidence: 0.7, Description: "bottle", Points: 10},
		{Type: "Paper", Confidence: 0.5, Description: "box", Points: 5},
	}}
}

func newTestRouter(t *testing.T, c classifier.Classifier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize

	d := classifier.DescriberFunc(func(ctx context.Context, _ waste.ClassificationResult) (waste.BountyDescription, error) {
		return waste.BountyDescription{Title: "Riverside sweep", TargetWasteTypes: []string{"Plastic"}}, nil
	})
	uc := usecase.NewSubmissionUseCase(nil, nil, c, d, zap.NewNop())
	RegisterRoutes(router, uc, auth.JWTMiddleware(testJWTSecret, ""))
	return router
}

func staticClassifier() classifier.Classifier {
	return classifier.ClassifierFunc(func(ctx context.Context, _ imageprocessor.Image) (waste.ClassificationResult, error) {
		return scenarioA(), nil
	})
}

func TestSubmitRejectsLargeUpload(t *testing.T) {
	router := newTestRouter(t, staticClassifier())

	token := buildTestToken(t, "user-123")
	body, contentType := buildMultipartBody(t, "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1), nil)

	resp := doRequest(router, http.MethodPost, "/submissions", body, contentType, token)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestSubmitRejectsUnsupportedContentType(t *testing.T) {
	router := newTestRouter(t, staticClassifier())

	token := buildTestToken(t, "user-123")
	body, contentType := buildMultipartBody(t, "text/plain", []byte("hello"), nil)

	resp := doRequest(router, http.MethodPost, "/submissions", body, contentType, token)

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestSubmitRejectsUndecodableImage(t *testing.T) {
	router := newTestRouter(t, staticClassifier())

	token := buildTestToken(t, "user-123")
	body, contentType := buildMultipartBody(t, "application/octet-stream", []byte("definitely not pixels"), nil)

	resp := doRequest(router, http.MethodPost, "/submissions", body, contentType, token)

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "encoding_error", decode(t, resp)["kind"])
}

func TestSubmitRejectsHalfLocation(t *testing.T) {
	router := newTestRouter(t, staticClassifier())

	token := buildTestToken(t, "user-123")
	body, contentType := buildMultipartBody(t, "image/png", pngBytes, map[string]string{"lat": "51.5"})

	resp := doRequest(router, http.MethodPost, "/submissions", body, contentType, token)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, staticClassifier())

	for _, path := range []string{"/points", "/submissions/abc", "/reports/abc", "/metrics"} {
		resp := doRequest(router, http.MethodGet, path, nil, "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.Code, path)
	}
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/health", nil, "", "").Code)
}

func TestSubmitSelectConfirmClaimFlow(t *testing.T) {
	router := newTestRouter(t, staticClassifier())
	token := buildTestToken(t, "user-123")

	body, contentType := buildMultipartBody(t, "image/png", pngBytes, map[string]string{"lat": "51.5007", "lng": "-0.1246"})
	resp := doRequest(router, http.MethodPost, "/submissions", body, contentType, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	created := decode(t, resp)
	id := created["id"].(string)
	assert.Equal(t, "ready", created["status"])
	assert.Len(t, created["candidates"], 2)
	assert.Equal(t, "Plastic", created["selected"].(map[string]any)["type"])
	assert.Equal(t, "Riverside sweep", created["bounty"].(map[string]any)["bounty_title"])

	resp = doJSON(router, "/submissions/"+id+"/select", `{"type":"glass"}`, token)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doJSON(router, "/submissions/"+id+"/select", `{"type":null}`, token)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Nil(t, decode(t, resp)["selected"])

	resp = doRequest(router, http.MethodPost, "/submissions/"+id+"/confirm", nil, "", token)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = doJSON(router, "/submissions/"+id+"/select", `{"type":"Paper"}`, token)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(router, http.MethodPost, "/submissions/"+id+"/confirm", nil, "", token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	rep := decode(t, resp)
	reportID := rep["id"].(string)
	assert.Contains(t, rep["narrative"], "paper waste has been identified with 41.7% confidence")
	assert.Contains(t, rep["narrative"], "Location: 51.500700, -0.124600")
	assert.Equal(t, false, rep["claimed"])

	resp = doRequest(router, http.MethodGet, "/submissions/"+id, nil, "", token)
	assert.Equal(t, http.StatusNotFound, resp.Code, "confirmed session is dropped")

	resp = doRequest(router, http.MethodPost, "/reports/"+reportID+"/claim", nil, "", token)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, map[string]any{"points": float64(5), "balance": float64(5)}, decode(t, resp))

	resp = doRequest(router, http.MethodPost, "/reports/"+reportID+"/claim", nil, "", token)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "already_claimed", decode(t, resp)["kind"])

	resp = doRequest(router, http.MethodGet, "/points", nil, "", token)
	assert.Equal(t, float64(5), decode(t, resp)["balance"])

	other := buildTestToken(t, "user-999")
	resp = doRequest(router, http.MethodGet, "/reports/"+reportID, nil, "", other)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestFailedSubmissionCanBeRetried(t *testing.T) {
	calls := 0
	c := classifier.ClassifierFunc(func(ctx context.Context, _ imageprocessor.Image) (waste.ClassificationResult, error) {
		calls++
		if calls == 1 {
			return waste.ClassificationResult{}, waste.ErrSchema
		}
		return scenarioA(), nil
	})
	router := newTestRouter(t, c)
	token := buildTestToken(t, "user-123")

	body, contentType := buildMultipartBody(t, "image/png", pngBytes, nil)
	resp := doRequest(router, http.MethodPost, "/submissions", body, contentType, token)
	require.Equal(t, http.StatusCreated, resp.Code)
	failed := decode(t, resp)
	assert.Equal(t, "failed", failed["status"])
	assert.Equal(t, "schema_error", failed["error_kind"])
	id := failed["id"].(string)

	resp = doJSON(router, "/submissions/"+id+"/select", `{"type":"Plastic"}`, token)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = doRequest(router, http.MethodPost, "/submissions/"+id+"/retry", nil, "", token)
	require.Equal(t, http.StatusCreated, resp.Code)
	retried := decode(t, resp)
	assert.Equal(t, "ready", retried["status"])
	assert.NotEqual(t, id, retried["id"])

	resp = doRequest(router, http.MethodPost, "/submissions/"+retried["id"].(string)+"/retry", nil, "", token)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestSubmitJSONDataURL(t *testing.T) {
	router := newTestRouter(t, staticClassifier())
	token := buildTestToken(t, "user-123")

	img := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	payload, err := json.Marshal(map[string]any{"image": img, "lat": 1.25, "lng": 2.5})
	require.NoError(t, err)

	resp := doRequest(router, http.MethodPost, "/submissions", bytes.NewBuffer(payload), "application/json", token)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	body := decode(t, resp)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, map[string]any{"lat": 1.25, "lng": 2.5}, body["location"])
}

func TestSubmitKeepsDeclaredHEIC(t *testing.T) {
	heic := []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00mif1heic")
	var seen []string
	cls := classifier.ClassifierFunc(func(ctx context.Context, img imageprocessor.Image) (waste.ClassificationResult, error) {
		seen = append(seen, img.MIMEType)
		return scenarioA(), nil
	})
	router := newTestRouter(t, cls)
	token := buildTestToken(t, "user-123")

	payload := `{"image":"data:image/heic;base64,` + base64.StdEncoding.EncodeToString(heic) + `"}`
	resp := doRequest(router, http.MethodPost, "/submissions", bytes.NewBufferString(payload), "application/json", token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, "ready", decode(t, resp)["status"])

	body, contentType := buildMultipartBody(t, "image/heif", heic, nil)
	resp = doRequest(router, http.MethodPost, "/submissions", body, contentType, token)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = doRequest(router, http.MethodPost, "/submissions", bytes.NewBufferString(`{"image":"`+base64.StdEncoding.EncodeToString(heic)+`"}`), "application/json", token)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code, "undeclared heic cannot be sniffed")

	assert.Equal(t, []string{"image/heic", "image/heif"}, seen)
}

func TestSubmitJSONRejects(t *testing.T) {
	router := newTestRouter(t, staticClassifier())
	token := buildTestToken(t, "user-123")

	cases := map[string]struct {
		body string
		code int
	}{
		"missing image": {`{}`, http.StatusBadRequest},
		"bad base64":    {`{"image":"%%%"}`, http.StatusUnprocessableEntity},
		"text data url": {`{"image":"data:text/plain;base64,aGVsbG8="}`, http.StatusUnsupportedMediaType},
		"half location": {`{"image":"` + base64.StdEncoding.EncodeToString(pngBytes) + `","lat":1}`, http.StatusBadRequest},
		"bad latitude":  {`{"image":"` + base64.StdEncoding.EncodeToString(pngBytes) + `","lat":91,"lng":0}`, http.StatusBadRequest},
		"not an image":  {`{"image":"aGVsbG8="}`, http.StatusUnprocessableEntity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp := doRequest(router, http.MethodPost, "/submissions", bytes.NewBufferString(tc.body), "application/json", token)
			assert.Equal(t, tc.code, resp.Code, resp.Body.String())
		})
	}
}

func TestHistoryRoutesWithoutDatabase(t *testing.T) {
	router := newTestRouter(t, staticClassifier())
	token := buildTestToken(t, "user-123")

	assert.Equal(t, http.StatusServiceUnavailable, doRequest(router, http.MethodGet, "/metrics", nil, "", token).Code)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(router, http.MethodGet, "/submissions/x/duplicates", nil, "", token).Code)
}

func doRequest(router *gin.Engine, method, path string, body *bytes.Buffer, contentType, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func doJSON(router *gin.Engine, path, payload, token string) *httptest.ResponseRecorder {
	return doRequest(router, http.MethodPost, path, bytes.NewBufferString(payload), "application/json", token)
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	return out
}

func buildMultipartBody(t *testing.T, contentType string, payload []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("failed to write field %s: %v", name, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
