package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	logApp "github.com/davicafu/hexapost/internal/eventlog/application"
	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
	"github.com/davicafu/hexapost/internal/interaction/domain"
	"github.com/davicafu/hexapost/internal/shared/events"
	sharedUtils "github.com/davicafu/hexapost/internal/shared/infra/utils"
	"github.com/davicafu/hexapost/pkg/utils"
)

// CountersReader es la vista de lectura que necesita GET /posts/:id.
type CountersReader interface {
	Get(ctx context.Context, postID string) (*domain.PostCounters, error)
}

// PostHandler traduce las peticiones HTTP de los productores a eventos.
type PostHandler struct {
	publisher logDomain.EventPublisher
	counters  CountersReader
}

func NewPostHandler(publisher logDomain.EventPublisher, counters CountersReader) *PostHandler {
	return &PostHandler{publisher: publisher, counters: counters}
}

type acceptedResponse struct {
	EventID string `json:"eventId"`
	PostID  string `json:"postId,omitempty"`
}

// ---------------- Handlers ----------------

// CreatePost endpoint POST /posts
func (h *PostHandler) CreatePost(c *gin.Context) {
	var req struct {
		EventID    string   `json:"eventId"`
		PostID     string   `json:"postId"`
		UserID     string   `json:"userId" binding:"required"`
		Content    string   `json:"content"`
		MediaURLs  []string `json:"mediaUrls"`
		Visibility string   `json:"visibility"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	if req.PostID == "" {
		req.PostID = uuid.NewString()
	}
	req.Visibility = sharedUtils.OrDefault(req.Visibility, events.VisibilityPublic)

	h.publish(c, req.EventID, req.PostID, &events.PostCreatedPayload{
		PostID:     req.PostID,
		UserID:     req.UserID,
		Content:    req.Content,
		MediaURLs:  req.MediaURLs,
		Visibility: req.Visibility,
		CreatedAt:  time.Now().UTC(),
	})
}

// GetPost endpoint GET /posts/:id
func (h *PostHandler) GetPost(c *gin.Context) {
	counters, err := h.counters.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrMissingPostID) {
			utils.SendBadRequest(c, err.Error())
			return
		}
		utils.SendInternalServerError(c, err.Error())
		return
	}
	utils.SendSuccess(c, http.StatusOK, counters)
}

// AddLike endpoint POST /posts/:id/likes
func (h *PostHandler) AddLike(c *gin.Context) {
	var req struct {
		EventID string `json:"eventId"`
		LikeID  string `json:"likeId"`
		UserID  string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}
	if req.LikeID == "" {
		req.LikeID = uuid.NewString()
	}

	postID := c.Param("id")
	h.publish(c, req.EventID, postID, &events.LikeAddedPayload{
		LikeID:    req.LikeID,
		PostID:    postID,
		UserID:    req.UserID,
		CreatedAt: time.Now().UTC(),
	})
}

// AddComment endpoint POST /posts/:id/comments
func (h *PostHandler) AddComment(c *gin.Context) {
	var req struct {
		EventID   string `json:"eventId"`
		CommentID string `json:"commentId"`
		UserID    string `json:"userId" binding:"required"`
		Content   string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}
	if req.CommentID == "" {
		req.CommentID = uuid.NewString()
	}

	postID := c.Param("id")
	h.publish(c, req.EventID, postID, &events.CommentAddedPayload{
		CommentID: req.CommentID,
		PostID:    postID,
		UserID:    req.UserID,
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
	})
}

// FollowUser endpoint POST /users/:id/followers
func (h *PostHandler) FollowUser(c *gin.Context) {
	var req struct {
		EventID    string `json:"eventId"`
		FollowerID string `json:"followerId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	h.publish(c, req.EventID, "", &events.UserFollowedPayload{
		FollowerID:     req.FollowerID,
		FollowedUserID: c.Param("id"),
		FollowedAt:     time.Now().UTC(),
	})
}

// publish responde 202 cuando el evento es durable. El eventId del cliente hace
// que reintentar la petición sea seguro.
func (h *PostHandler) publish(c *gin.Context, eventID, postID string, payload events.Payload) {
	id, err := h.publisher.Publish(c.Request.Context(), events.Event{
		ID:      eventID,
		Type:    payload.EventType(),
		Payload: payload,
	})
	if err != nil {
		sendPublishError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusAccepted, acceptedResponse{EventID: id, PostID: postID})
}

func sendPublishError(c *gin.Context, err error) {
	var pubErr *logApp.PublishError
	if !errors.As(err, &pubErr) {
		utils.SendInternalServerError(c, err.Error())
		return
	}

	switch pubErr.Kind {
	case logApp.PublishInvalid:
		utils.SendErrorCode(c, http.StatusBadRequest, "invalid", pubErr.Err.Error())
	case logApp.PublishUnavailable:
		utils.SendServiceUnavailable(c, "event log unavailable, retry with the same eventId")
	case logApp.PublishTimeout:
		utils.SendGatewayTimeout(c, "publish timed out, retry with the same eventId")
	default:
		utils.SendInternalServerError(c, err.Error())
	}
}
