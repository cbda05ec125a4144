package dashboard

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/identmakers/roots-dashboard/internal/aggregation"
	"github.com/identmakers/roots-dashboard/internal/enrollment"
	"github.com/identmakers/roots-dashboard/internal/models"
	"github.com/identmakers/roots-dashboard/internal/projection"
	"github.com/identmakers/roots-dashboard/pkg/response"
)

// maxPresenceBody bounds PUT /dashboard/presence bodies.
const maxPresenceBody = 4 << 20

// Enqueuer hands change events to the ordered change feed.
type Enqueuer interface {
	EnqueueChange(ctx context.Context, ev models.ChangeEvent) error
}

// Handler handles dashboard HTTP endpoints.
type Handler struct {
	svc    *Service
	queue  Enqueuer
	logger *zap.Logger
}

// NewHandler creates a dashboard handler. With a nil queue, posted events are
// applied directly instead of going through the change feed.
func NewHandler(svc *Service, queue Enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, queue: queue, logger: logger}
}

// RegisterRoutes mounts the dashboard routes on g.
func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/summary", h.Summary)
	g.GET("/organizations", h.Organizations)
	g.GET("/dates", h.Dates)
	g.GET("/online", h.Online)
	g.GET("/subscription", h.Subscription)
	g.GET("/snapshot", h.Snapshot)
	g.POST("/events", h.PostEvent)
	g.PUT("/presence", h.PutPresence)
}

// Summary handles GET /dashboard/summary.
func (h *Handler) Summary(c *gin.Context) {
	response.OK(c, h.svc.Summary())
}

// Organizations handles GET /dashboard/organizations?search=&sort=.
func (h *Handler) Organizations(c *gin.Context) {
	var q projection.Query
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "invalid query")
		return
	}
	response.OK(c, h.svc.Organizations(q))
}

// Dates handles GET /dashboard/dates?limit=N.
func (h *Handler) Dates(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			response.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	response.OK(c, h.svc.RecentDates(limit))
}

// Online handles GET /dashboard/online.
func (h *Handler) Online(c *gin.Context) {
	online := h.svc.Online()
	response.OK(c, gin.H{
		"count": online.Count,
		"names": projection.SortedOnline(online),
	})
}

// Subscription handles GET /dashboard/subscription.
func (h *Handler) Subscription(c *gin.Context) {
	response.OK(c, h.svc.Subscription())
}

// Snapshot handles GET /dashboard/snapshot.
func (h *Handler) Snapshot(c *gin.Context) {
	response.OK(c, h.svc.Snapshot())
}

// EventResponse is the body returned for a directly applied event.
type EventResponse struct {
	Key     string `json:"key"`
	Date    string `json:"date,omitempty"`
	Created bool   `json:"created"`
	Removed bool   `json:"removed"`
	Orphan  bool   `json:"orphan"`
	Version uint64 `json:"version"`
}

// EventRequest is the body for POST /dashboard/events. An add without an
// enrollment id gets one minted from OrgCode and the current date.
type EventRequest struct {
	Organization string            `json:"organization"`
	Kind         models.RecordKind `json:"kind"`
	Delta        int               `json:"delta"`
	EnrollmentID string            `json:"enrollment_id"`
	OrgCode      string            `json:"org_code"`
}

// PostEvent handles POST /dashboard/events. With a queue the event goes
// through the change feed, which writes the record store before counting, so
// an enrollment id is required there.
func (h *Handler) PostEvent(c *gin.Context) {
	var body EventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid event body")
		return
	}
	ev := models.ChangeEvent{
		Organization: body.Organization,
		Kind:         body.Kind,
		Delta:        body.Delta,
		EnrollmentID: body.EnrollmentID,
	}
	if err := aggregation.Validate(ev); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if ev.EnrollmentID == "" && ev.Delta > 0 && body.OrgCode != "" {
		id, err := h.mintIdentifier(body.OrgCode)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		ev.EnrollmentID = id
	}

	if h.queue != nil {
		if ev.EnrollmentID == "" {
			response.BadRequest(c, "enrollment_id or org_code required")
			return
		}
		if err := h.queue.EnqueueChange(c.Request.Context(), ev); err != nil {
			h.logger.Error("enqueue change failed", zap.Error(err))
			response.ServiceUnavailable(c, "change feed unavailable")
			return
		}
		response.Accepted(c, gin.H{"queued": true, "enrollment_id": ev.EnrollmentID})
		return
	}

	res, err := h.svc.ApplyChange(ev)
	if err != nil {
		response.Internal(c, "failed to apply event")
		return
	}
	response.OK(c, EventResponse{
		Key:     res.Key,
		Date:    res.Date,
		Created: res.Created,
		Removed: res.Removed,
		Orphan:  res.Orphan,
		Version: res.Version,
	})
}

func (h *Handler) mintIdentifier(orgCode string) (string, error) {
	serial, err := enrollment.RandomSerial()
	if err != nil {
		return "", err
	}
	return enrollment.NewIdentifier(strings.ToUpper(strings.TrimSpace(orgCode)), h.svc.now(), serial)
}

// PutPresence handles PUT /dashboard/presence with a raw presence snapshot.
func (h *Handler) PutPresence(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPresenceBody))
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}
	if err := h.svc.ApplyPresenceSnapshot(raw); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	online := h.svc.Online()
	response.OK(c, gin.H{"count": online.Count})
}
