package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternalErrorHidesCause(t *testing.T) {
	rr := httptest.NewRecorder()
	InternalError(rr, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal server error","code":"internal"}`, rr.Body.String())
}

func TestDecode(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	rr := httptest.NewRecorder()
	ok := Decode(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ana"}`)), &dst)
	assert.True(t, ok)
	assert.Equal(t, "ana", dst.Name)

	rr = httptest.NewRecorder()
	ok = Decode(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)), &dst)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	big := `{"name":"` + strings.Repeat("x", maxJSONBody) + `"}`
	ok = Decode(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big)), &dst)
	assert.False(t, ok)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
