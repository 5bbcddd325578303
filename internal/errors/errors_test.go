package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageErrorMessage(t *testing.T) {
	err := NewGeometryError("estimate", "too few inliers", nil)
	assert.Equal(t, "geometry error in estimate: too few inliers", err.Error())

	cause := stderrors.New("boom")
	err = NewInputError("load", "cannot decode", cause)
	assert.Contains(t, err.Error(), "caused by: boom")
	assert.ErrorIs(t, err, cause)
}

func TestIsKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("pair 7: %w", NewMatchError("correspond", "2 correspondences", nil))
	assert.True(t, IsKind(err, KindMatch))
	assert.False(t, IsKind(err, KindGeometry))
	assert.False(t, IsKind(stderrors.New("plain"), KindMatch))
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewInputError("load", "x", nil), http.StatusBadRequest},
		{NewMatchError("correspond", "x", nil), http.StatusUnprocessableEntity},
		{NewGeometryError("estimate", "x", nil), http.StatusUnprocessableEntity},
		{NewCompositingError("composite", "x", nil), http.StatusUnprocessableEntity},
		{stderrors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusCode(tc.err), tc.err.Error())
	}
}
