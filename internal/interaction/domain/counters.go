package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/davicafu/hexapost/internal/shared/events"
)

// ---------- Errores de dominio ----------
var (
	ErrInvalidField  = errors.New("invalid counter field")
	ErrMissingPostID = errors.New("post id is required")
	ErrMissingEvent  = errors.New("event id is required")
)

// CounterField identifica qué contador de un post se incrementa.
type CounterField string

const (
	FieldLikes    CounterField = "likes"
	FieldComments CounterField = "comments"
)

func (f CounterField) Valid() bool {
	return f == FieldLikes || f == FieldComments
}

// FieldFor mapea una variante de evento a su contador. ok es false si la variante no cuenta.
func FieldFor(t events.Type) (CounterField, bool) {
	switch t {
	case events.LikeAdded:
		return FieldLikes, true
	case events.CommentAdded:
		return FieldComments, true
	}
	return "", false
}

// PostCounters es la vista de contadores de un post (los campos del PostDto original).
type PostCounters struct {
	PostID        string `json:"id"`
	LikesCount    int64  `json:"likesCount"`
	CommentsCount int64  `json:"commentsCount"`
}

// ---------- Interfaces (Ports) ----------

// CounterStore es el almacén externo donde viven los contadores.
//
// Increment es idempotente por (postID, field, eventID): el valor del contador es el
// número de eventIDs distintos que contribuyeron, no una suma ciega.
type CounterStore interface {
	Increment(ctx context.Context, postID string, field CounterField, eventID string) (int64, error)

	// Get devuelve contadores a cero para posts sin interacciones.
	Get(ctx context.Context, postID string) (*PostCounters, error)
}

// ValidateIncrement comprueba los argumentos comunes a todos los backends.
func ValidateIncrement(postID string, field CounterField, eventID string) error {
	if postID == "" {
		return ErrMissingPostID
	}
	if !field.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	if eventID == "" {
		return ErrMissingEvent
	}
	return nil
}

// CacheKeyByID forma una key consistente para el conjunto de contribuciones de un contador.
func CacheKeyByID(postID string, field CounterField) string {
	return fmt.Sprintf("post:%s:%s", postID, field)
}

// CacheKeyByPost es la key de la vista cacheada de un post.
func CacheKeyByPost(postID string) string {
	return fmt.Sprintf("post:%s:counters", postID)
}
