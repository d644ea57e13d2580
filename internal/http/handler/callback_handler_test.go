package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func postCallback(h *CallbackHandler, auth, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/callbacks/runs", h.RunResult)

	req := httptest.NewRequest(http.MethodPost, "/callbacks/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestCallbackRejectsBadToken(t *testing.T) {
	h := NewCallbackHandler(nil, "secret")

	w := postCallback(h, "", `{"run_id":"r1"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postCallback(h, "Bearer wrong", `{"run_id":"r1"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postCallback(h, "secret", `{"run_id":"r1"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "token without Bearer prefix is rejected")
}

func TestCallbackRejectsMalformedBody(t *testing.T) {
	h := NewCallbackHandler(nil, "secret")

	w := postCallback(h, "Bearer secret", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postCallback(h, "Bearer secret", `{"status":"succeeded"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "run_id is mandatory")
}
