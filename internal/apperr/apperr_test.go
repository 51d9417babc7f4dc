package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		Validation:     http.StatusBadRequest,
		Conflict:       http.StatusBadRequest,
		Authentication: http.StatusUnauthorized,
		Authorization:  http.StatusForbidden,
		NotFound:       http.StatusNotFound,
		Internal:       http.StatusInternalServerError,
	}
	for k, want := range cases {
		assert.Equal(t, want, k.Status(), k.String())
	}
}

func TestKindOfWrapped(t *testing.T) {
	base := E(NotFound, "Projet non trouvé")
	wrapped := fmt.Errorf("load project: %w", base)

	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, NotFound))
	assert.Equal(t, "Projet non trouvé", Message(wrapped))
}

func TestPlainErrorIsInternal(t *testing.T) {
	err := errors.New("connection reset")
	assert.Equal(t, Internal, KindOf(err))
	assert.Equal(t, "Erreur serveur", Message(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(Internal, "Erreur serveur", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Erreur serveur: disk full", err.Error())
	assert.Equal(t, "Erreur serveur", Message(err))
}
