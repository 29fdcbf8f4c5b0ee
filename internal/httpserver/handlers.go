package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promantle/triangularlist/triangularlist"
)

const timeFormat = time.RFC3339

// Service holds the one engine this HTTP surface serves (spec §12.2: "a
// thin HTTP query/ingest surface over one configured TriangularList
// instance").
type Service struct {
	engine *Engine
}

func NewService(engine *Engine) *Service {
	return &Service{engine: engine}
}

// RegisterRoutes registers every route on r.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/events", s.IngestHandler)
	r.GET("/aggregates/:name/:rank", s.AggregateHandler)
	r.GET("/points/:name/:rank", s.PointHandler)
	r.GET("/points/:name/:rank/children", s.ChildrenHandler)
}

func writeErr(c *gin.Context, err error) {
	status, errType := statusAndType(err)
	c.JSON(status, ErrorResponse{ErrorType: errType, Message: err.Error()})
}

// IngestHandler handles POST /events, folding one Event into every rank
// of every registered aggregate.
func (s *Service) IngestHandler(c *gin.Context) {
	var evt Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorType: errInvalidRequest, Message: err.Error()})
		return
	}
	if err := evt.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorType: errInvalidRequest, Message: err.Error()})
		return
	}
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}

	scanned, err := s.engine.WriteItem(c.Request.Context(), evt)
	if err != nil {
		slog.Error("[httpserver] write_item failed", "event_id", evt.ID, "error", err)
		writeErr(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "children_scanned": scanned})
}

type nameRankURI struct {
	Name string `uri:"name" binding:"required"`
	Rank string `uri:"rank" binding:"required"`
}

// pointRangeQuery covers both the single-point form (?at=...) and the
// range form (?start=...&end=...) shared by the aggregate and point
// endpoints; the children endpoint reads only ?at.
type pointRangeQuery struct {
	At    string `form:"at"`
	Start string `form:"start"`
	End   string `form:"end"`
}

func (q pointRangeQuery) parse() (at time.Time, start time.Time, end time.Time, isRange bool, err error) {
	switch {
	case q.At != "":
		at, err = time.Parse(timeFormat, q.At)
		return at, time.Time{}, time.Time{}, false, err
	case q.Start != "" && q.End != "":
		start, err = time.Parse(timeFormat, q.Start)
		if err != nil {
			return time.Time{}, time.Time{}, time.Time{}, true, err
		}
		end, err = time.Parse(timeFormat, q.End)
		return time.Time{}, start, end, true, err
	default:
		return time.Time{}, time.Time{}, time.Time{}, false, errMissingTimeParams
	}
}

var errMissingTimeParams = &queryError{"either ?at or both ?start and ?end are required"}

type queryError struct{ msg string }

func (e *queryError) Error() string { return e.msg }

// AggregateHandler handles GET /aggregates/:name/:rank, dispatching to
// read_aggregate_at or read_aggregate_range depending on which query
// parameters are present.
func (s *Service) AggregateHandler(c *gin.Context) {
	var uri nameRankURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorType: errInvalidRequest, Message: err.Error()})
		return
	}
	var q pointRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorType: errInvalidRequest, Message: err.Error()})
		return
	}

	at, start, end, isRange, err := q.parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorType: errInvalidRequest, Message: err.Error()})
		return
	}

	ctx := c.Request.Context()
	if isRange {
		values, err := s.engine.ReadAggregateRange(ctx, uri.Name, uri.Rank, start, end)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"values": values})
		return
	}

	value, err := s.engine.ReadAggregateAt(ctx, uri.Name, uri.Rank, at)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": value})
}

type pointResponse struct {
	Value      any       `json:"value"`
	Count      int64     `json:"count"`
	LowerBound time.Time `json:"lower_bound"`
	UpperBound time.Time `json:"upper_bound"`
}

// PointHandler handles GET /points/:name/:rank, dispatching to
// read_point_at or read_points_over_range.
func (s *Service) PointHandler(c *gin.Context) {
	var uri nameRankURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorType: errInvalidRequest, Message: err.Error()})
		return
	}
	var q pointRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorType: errInvalidRequest, Message: err.Error()})
		return
	}

	at, start, end, isRange, err := q.parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorType: errInvalidRequest, Message: err.Error()})
		return
	}

	ctx := c.Request.Context()
	if isRange {
		points, err := s.engine.ReadPointsOverRange(ctx, uri.Name, uri.Rank, start, end)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"points": toPointResponses(points)})
		return
	}

	point, err := s.engine.ReadPointAt(ctx, uri.Name, uri.Rank, at)
	if err != nil {
		writeErr(c, err)
		return
	}
	if point == nil {
		c.JSON(http.StatusOK, gin.H{"point": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"point": pointResponse{
		Value: point.Value, Count: point.Count, LowerBound: point.LowerBound, UpperBound: point.UpperBound,
	}})
}

// ChildrenHandler handles GET /points/:name/:rank/children.
func (s *Service) ChildrenHandler(c *gin.Context) {
	var uri nameRankURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorType: errInvalidRequest, Message: err.Error()})
		return
	}
	atRaw := c.Query("at")
	if atRaw == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorType: errInvalidRequest, Message: "?at is required"})
		return
	}
	at, err := time.Parse(timeFormat, atRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorType: errInvalidRequest, Message: err.Error()})
		return
	}

	children, err := s.engine.ReadChildrenOfPoint(c.Request.Context(), uri.Name, uri.Rank, at)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"children": toPointResponses(children)})
}

func toPointResponses(points []triangularlist.Point[time.Time, decimal.Decimal]) []pointResponse {
	out := make([]pointResponse, len(points))
	for i, p := range points {
		out[i] = pointResponse{Value: p.Value, Count: p.Count, LowerBound: p.LowerBound, UpperBound: p.UpperBound}
	}
	return out
}
