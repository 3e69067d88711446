package testutils

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// PerformRequest executes a request against the test router.
func PerformRequest(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// AssertJSONResponse asserts response status and JSON structure.
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedKeys ...string) map[string]interface{} {
	assert.Equal(t, expectedStatus, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	response, err := ParseJSONResponse(w)
	assert.NoError(t, err)

	for _, key := range expectedKeys {
		assert.Contains(t, response, key, fmt.Sprintf("Response should contain key: %s", key))
	}
	return response
}

// AssertEnvelope asserts an {isSuccess, code, message, result} response and
// returns it.
func AssertEnvelope(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, success bool) map[string]interface{} {
	response := AssertJSONResponse(t, w, expectedStatus, "isSuccess", "code", "message", "result")
	assert.Equal(t, success, response["isSuccess"])
	return response
}

// BearerHeaders builds request headers for an authenticated calendar call.
func BearerHeaders(token, appVersion string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + token}
	if appVersion != "" {
		h["X-App-Version"] = appVersion
	}
	return h
}

// ParseJSONResponse parses a JSON response into a map.
func ParseJSONResponse(w *httptest.ResponseRecorder) (map[string]interface{}, error) {
	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	return response, err
}
