package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyShape(t *testing.T) {
	b, err := json.Marshal(MissingData("Missing field: name").Body())
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"missing_data","message":"Missing field: name","data":{"status":400}}`, string(b))
}

func TestCauseIsWrappedButHidden(t *testing.T) {
	cause := errors.New("disk full")
	e := InsertFailed("Could not insert preset", cause)

	assert.ErrorIs(t, e, cause)
	assert.Equal(t, http.StatusInternalServerError, e.Status)
	assert.Contains(t, e.Error(), "disk full")
	assert.NotContains(t, e.Body().Message, "disk full")
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, CodeForbidden, Forbidden("x").Code)
	assert.Equal(t, http.StatusUnauthorized, Forbidden("x").Status)
	assert.Equal(t, CodeInternal, Internal("x", nil).Code)
	assert.Equal(t, "internal_error: x", Internal("x", nil).Error())
}
