// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-multimodal-chat/internal/api"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/model"
	"github.com/jaycherian/gcp-go-multimodal-chat/internal/core/services"
)

type fakeChat struct {
	last    *model.ChatRequest
	err     error
	cleared string
}

func (f *fakeChat) Send(_ context.Context, req *model.ChatRequest) (*model.ChatReply, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	id := req.SessionID
	if id == "" {
		id = "generated"
	}
	return &model.ChatReply{SessionID: id, Text: "echo: " + req.Text}, nil
}

func (f *fakeChat) History(_ context.Context, sessionID string) ([]model.Message, error) {
	if sessionID == "" {
		return nil, nil
	}
	return []model.Message{{Role: model.RoleUser, Content: "hi"}, {Role: model.RoleAssistant, Content: "hello"}}, nil
}

func (f *fakeChat) Clear(_ context.Context, sessionID string) error {
	f.cleared = sessionID
	return nil
}

func (f *fakeChat) Sessions(_ context.Context) ([]*model.Session, error) {
	return []*model.Session{{ID: "b"}, {ID: "a"}}, nil
}

// fakeSigner authorizes like MediaService and signs nothing.
type fakeSigner struct {
	media *services.MediaService
}

func (f fakeSigner) GenerateSignedURL(_ context.Context, uri string, sessionID string, _ time.Duration) (string, error) {
	if _, err := f.media.AuthorizeObject(uri, sessionID); err != nil {
		return "", err
	}
	return "https://signed.example/" + strings.TrimPrefix(uri, "gs://"), nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(chat *fakeChat) http.Handler {
	return api.NewRouter(chat, api.RouterOptions{
		ServiceName: "chat-test",
		Chat:        api.ChatOptions{MaxUploadSize: 1024},
		Media:       fakeSigner{media: &services.MediaService{Bucket: "bucket", ObjectPrefix: "uploads"}},
	})
}

type part struct {
	field    string
	filename string
	data     []byte
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSendTextMessage(t *testing.T) {
	chat := &fakeChat{}
	rec := httptest.NewRecorder()
	newRouter(chat).ServeHTTP(rec, multipartRequest(t, "/api/v1/chat/send", map[string]string{"message": "  hello  "}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "echo: hello", body["response"])
	assert.Equal(t, "generated", body["session_id"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, api.SessionCookie, cookies[0].Name)
	assert.Equal(t, "generated", cookies[0].Value)
}

func TestSendClassifiesUploads(t *testing.T) {
	chat := &fakeChat{}
	rec := httptest.NewRecorder()
	req := multipartRequest(t, "/api/v1/chat/send-message", map[string]string{"session_id": "s-1"},
		part{"images[]", "a.png", []byte("png")},
		part{"images[]", "b.png", []byte("png")},
		part{"videos[]", "c.mp4", []byte("mp4")},
		part{"videos[]", "empty.mp4", nil},
	)
	newRouter(chat).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, chat.last)
	assert.Equal(t, "s-1", chat.last.SessionID)
	assert.Len(t, chat.last.Images, 2)
	require.Len(t, chat.last.Videos, 1)
	assert.Equal(t, "c.mp4", chat.last.Videos[0].Filename)
	assert.Equal(t, []byte("mp4"), chat.last.Videos[0].Data)
}

func TestSendSessionFromCookie(t *testing.T) {
	chat := &fakeChat{}
	req := multipartRequest(t, "/api/v1/chat/send", map[string]string{"message": "hi"})
	req.AddCookie(&http.Cookie{Name: api.SessionCookie, Value: "from-cookie"})
	rec := httptest.NewRecorder()
	newRouter(chat).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-cookie", chat.last.SessionID)
}

func TestSendURLEncodedForm(t *testing.T) {
	chat := &fakeChat{}
	form := url.Values{"message": {"plain form"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/send", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	newRouter(chat).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "echo: plain form", decode(t, rec)["response"])
}

func TestSendRejectsEmptyRequest(t *testing.T) {
	chat := &fakeChat{}
	rec := httptest.NewRecorder()
	newRouter(chat).ServeHTTP(rec, multipartRequest(t, "/api/v1/chat/send", map[string]string{"message": "   "}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
	assert.Nil(t, chat.last)
}

func TestSendRejectsOversizedUpload(t *testing.T) {
	chat := &fakeChat{}
	rec := httptest.NewRecorder()
	req := multipartRequest(t, "/api/v1/chat/send", nil, part{"images[]", "big.png", bytes.Repeat([]byte("x"), 2048)})
	newRouter(chat).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Nil(t, chat.last)
}

func TestSendMapsServiceErrors(t *testing.T) {
	chat := &fakeChat{err: services.ErrEmptyMessage}
	rec := httptest.NewRecorder()
	newRouter(chat).ServeHTTP(rec, multipartRequest(t, "/api/v1/chat/send", map[string]string{"message": "x"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	chat.err = errors.New("store down")
	rec = httptest.NewRecorder()
	newRouter(chat).ServeHTTP(rec, multipartRequest(t, "/api/v1/chat/send", map[string]string{"message": "x"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "store down", decode(t, rec)["error"])
}

func TestWrongMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&fakeChat{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chat/send", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", decode(t, rec)["error"])
}

func TestHistory(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&fakeChat{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chat/history?session_id=s-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "s-1", body["session_id"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].(map[string]interface{})["role"])

	rec = httptest.NewRecorder()
	newRouter(&fakeChat{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chat/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["messages"])
}

func TestClearUsesCookie(t *testing.T) {
	chat := &fakeChat{}
	for _, path := range []string{"/api/v1/chat/clear", "/api/v1/chat/clear-history"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.AddCookie(&http.Cookie{Name: api.SessionCookie, Value: "s-9"})
		rec := httptest.NewRecorder()
		newRouter(chat).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, true, decode(t, rec)["success"])
		assert.Equal(t, "s-9", chat.cleared)
		chat.cleared = ""
	}
}

func TestSessionsAndHealth(t *testing.T) {
	router := newRouter(&fakeChat{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chat/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["sessions"], 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignedURL(t *testing.T) {
	router := newRouter(&fakeChat{})
	get := func(target string, cookie string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: api.SessionCookie, Value: cookie})
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/api/v1/media/signed-url?uri=gs://bucket/uploads/s-1/a.png", "s-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://signed.example/bucket/uploads/s-1/a.png", decode(t, rec)["url"])

	rec = get("/api/v1/media/signed-url?uri=gs://bucket/uploads/s-1/a.png&session_id=s-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get("/api/v1/media/signed-url?uri=http://x", "s-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignedURLRejectsForeignObjects(t *testing.T) {
	router := newRouter(&fakeChat{})
	cases := map[string]string{
		"foreign bucket":  "gs://other-bucket/uploads/s-1/a.png",
		"other session":   "gs://bucket/uploads/s-2/a.png",
		"outside prefix":  "gs://bucket/private/s-1/a.png",
		"session prefix":  "gs://bucket/uploads/s-10/a.png",
		"dot segments":    "gs://bucket/uploads/s-1/../s-2/a.png",
		"session as file": "gs://bucket/uploads/s-1",
	}
	for name, uri := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/media/signed-url?uri="+url.QueryEscape(uri), nil)
			req.AddCookie(&http.Cookie{Name: api.SessionCookie, Value: "s-1"})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/media/signed-url?uri=gs://bucket/uploads/s-1/a.png", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code, "no session")
}
