package events

import (
	"fmt"
	"time"

	sharedBus "github.com/davicafu/hexapost/internal/shared/infra/platform/bus"
)

// Payload es el contrato que cumple cada variante de evento.
type Payload interface {
	sharedBus.Keyer
	EventType() Type
	Validate() error
}

// Visibilidades admitidas para un post (public por defecto).
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
	VisibilityFriends = "friends"
)

// Estos son contratos de integración, NO entidades del dominio.
type PostCreatedPayload struct {
	PostID     string    `json:"postId"`
	UserID     string    `json:"userId"`
	Content    string    `json:"content"`
	MediaURLs  []string  `json:"mediaUrls,omitempty"`
	Visibility string    `json:"visibility,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type LikeAddedPayload struct {
	LikeID    string    `json:"likeId"`
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type CommentAddedPayload struct {
	CommentID string    `json:"commentId"`
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserFollowedPayload struct {
	FollowerID     string    `json:"followerId"`
	FollowedUserID string    `json:"followedUserId"`
	FollowedAt     time.Time `json:"followedAt"`
}

func (p *PostCreatedPayload) EventType() Type      { return PostCreated }
func (p *PostCreatedPayload) PartitionKey() string { return p.PostID }

func (p *PostCreatedPayload) Validate() error {
	if err := required("postId", p.PostID, "userId", p.UserID); err != nil {
		return err
	}
	switch p.Visibility {
	case "", VisibilityPublic, VisibilityPrivate, VisibilityFriends:
		return nil
	}
	return fmt.Errorf("%w: unsupported visibility %q", ErrInvalidEvent, p.Visibility)
}

func (p *LikeAddedPayload) EventType() Type      { return LikeAdded }
func (p *LikeAddedPayload) PartitionKey() string { return p.PostID }

func (p *LikeAddedPayload) Validate() error {
	return required("postId", p.PostID, "userId", p.UserID)
}

func (p *CommentAddedPayload) EventType() Type      { return CommentAdded }
func (p *CommentAddedPayload) PartitionKey() string { return p.PostID }

func (p *CommentAddedPayload) Validate() error {
	if err := required("postId", p.PostID, "userId", p.UserID); err != nil {
		return err
	}
	if p.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidEvent)
	}
	return nil
}

// Los follows se ordenan por el usuario seguido.
func (p *UserFollowedPayload) EventType() Type      { return UserFollowed }
func (p *UserFollowedPayload) PartitionKey() string { return p.FollowedUserID }

func (p *UserFollowedPayload) Validate() error {
	if err := required("followerId", p.FollowerID, "followedUserId", p.FollowedUserID); err != nil {
		return err
	}
	if p.FollowerID == p.FollowedUserID {
		return fmt.Errorf("%w: a user cannot follow themselves", ErrInvalidEvent)
	}
	return nil
}

// required recibe pares nombre/valor.
func required(kv ...string) error {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidEvent, kv[i])
		}
	}
	return nil
}

// Verificación estática de las variantes.
var (
	_ Payload = (*PostCreatedPayload)(nil)
	_ Payload = (*LikeAddedPayload)(nil)
	_ Payload = (*CommentAddedPayload)(nil)
	_ Payload = (*UserFollowedPayload)(nil)
)
