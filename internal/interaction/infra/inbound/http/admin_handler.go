package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
	"github.com/davicafu/hexapost/internal/interaction/domain"
	"github.com/davicafu/hexapost/pkg/utils"
)

// AdminHandler expone la inspección de dead letters y la tendencia analítica.
// Cualquiera de los dos puede ser nil y entonces su ruta no se registra.
type AdminHandler struct {
	deadLetters logDomain.DeadLetterStore
	analytics   domain.AnalyticsRepository
}

func NewAdminHandler(deadLetters logDomain.DeadLetterStore, analytics domain.AnalyticsRepository) *AdminHandler {
	return &AdminHandler{deadLetters: deadLetters, analytics: analytics}
}

type deadLetterDTO struct {
	Key           string    `json:"key"`
	ConsumerGroup string    `json:"consumerGroup"`
	Partition     int       `json:"partition"`
	Position      int64     `json:"position"`
	EventID       string    `json:"eventId,omitempty"`
	EventType     string    `json:"eventType,omitempty"`
	Reason        string    `json:"reason"`
	Attempts      int       `json:"attempts"`
	FailedAt      time.Time `json:"failedAt"`
}

// ListDeadLetters endpoint GET /admin/dead-letters?limit=N
func (h *AdminHandler) ListDeadLetters(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		utils.SendBadRequest(c, "invalid limit")
		return
	}

	letters, err := h.deadLetters.List(c.Request.Context(), limit)
	if err != nil {
		utils.SendInternalServerError(c, err.Error())
		return
	}

	out := make([]deadLetterDTO, 0, len(letters))
	for _, l := range letters {
		dto := deadLetterDTO{
			Key:           l.Key(),
			ConsumerGroup: l.ConsumerGroup,
			Partition:     l.Partition,
			Position:      int64(l.Position),
			Reason:        l.Reason,
			Attempts:      l.Attempts,
			FailedAt:      l.FailedAt,
		}
		if l.Envelope != nil {
			dto.EventID, dto.EventType = l.Envelope.ID, l.Envelope.Type.String()
		}
		out = append(out, dto)
	}
	utils.SendSuccess(c, http.StatusOK, out)
}

// GetTrend endpoint GET /analytics/trend?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *AdminHandler) GetTrend(c *gin.Context) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)

	if s := c.Query("from"); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			utils.SendBadRequest(c, "invalid from format, use YYYY-MM-DD")
			return
		}
		from = d
	}
	if s := c.Query("to"); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			utils.SendBadRequest(c, "invalid to format, use YYYY-MM-DD")
			return
		}
		to = d.Add(24*time.Hour - time.Nanosecond)
	}
	if to.Before(from) {
		utils.SendBadRequest(c, "to is before from")
		return
	}

	trend, err := h.analytics.GetDailyTrend(c.Request.Context(), from, to)
	if err != nil {
		utils.SendInternalServerError(c, err.Error())
		return
	}
	utils.SendSuccess(c, http.StatusOK, trend)
}
