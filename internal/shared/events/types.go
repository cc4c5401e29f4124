package events

import "fmt"

// Type es la etiqueta cerrada que identifica la variante de un evento.
type Type string

const (
	PostCreated  Type = "PostCreated"
	LikeAdded    Type = "LikeAdded"
	CommentAdded Type = "CommentAdded"
	UserFollowed Type = "UserFollowed"
)

// Types devuelve todas las variantes conocidas por esta versión del codec.
func Types() []Type {
	return []Type{PostCreated, LikeAdded, CommentAdded, UserFollowed}
}

// Valid indica si la etiqueta pertenece al conjunto cerrado de variantes.
func (t Type) Valid() bool {
	switch t {
	case PostCreated, LikeAdded, CommentAdded, UserFollowed:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }

// ParseType convierte un string en una variante válida.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}
