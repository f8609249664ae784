// README: Local API for the app shell; snapshots and partner actions.
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"milkrun/internal/channel"
	"milkrun/internal/http/middleware"
	"milkrun/internal/modules/location"
	"milkrun/internal/modules/order"
	"milkrun/internal/modules/subscription"
	"milkrun/internal/types"
)

type ServerDeps struct {
	Order        *order.Service
	Subscription *subscription.Service
	Channel      *channel.Channel
	Location     *location.Manual
}

type Server struct {
	order        *order.Service
	subscription *subscription.Service
	channel      *channel.Channel
	location     *location.Manual
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		order:        deps.Order,
		subscription: deps.Subscription,
		channel:      deps.Channel,
		location:     deps.Location,
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	api.GET("/orders/available", s.handleAvailable)
	api.GET("/orders/active", s.handleActive)
	api.GET("/orders/history", s.handleHistory)
	api.POST("/orders/:id/accept", s.handleAccept)
	api.POST("/orders/:id/pickup", s.handlePickup)
	api.POST("/orders/:id/deliver", s.handleDeliver)

	api.GET("/deliveries/today", s.handleToday)
	api.GET("/deliveries/upcoming", s.handleUpcoming)
	api.POST("/deliveries/:id/journey/start", s.handleStartJourney)
	api.POST("/deliveries/:id/delivered", s.handleMarkDelivered)
	api.POST("/deliveries/:id/no-response", s.handleNoResponse)
	api.POST("/deliveries/:id/pickup/confirm", s.handleConfirmPickup)

	api.GET("/subscriptions", s.handleAssigned)
	api.PUT("/location", s.handleSetLocation)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "channel": s.channel.State()})
}

func (s *Server) handleAvailable(c *gin.Context) {
	c.JSON(http.StatusOK, s.order.Store().Available())
}

// handleActive returns active orders in presentation order, annotated with
// the next permitted partner action.
func (s *Server) handleActive(c *gin.Context) {
	sorted := order.SortActive(s.order.Store().Active())
	out := make([]gin.H, len(sorted))
	for i, o := range sorted {
		out[i] = gin.H{"order": o, "action": order.ActionFor(o.Status)}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleHistory(c *gin.Context) {
	c.JSON(http.StatusOK, s.order.Store().History())
}

func (s *Server) handleAccept(c *gin.Context) {
	o, err := s.order.Accept(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handlePickup(c *gin.Context) {
	o, err := s.order.Pickup(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleDeliver(c *gin.Context) {
	o, err := s.order.Deliver(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) handleToday(c *gin.Context) {
	c.JSON(http.StatusOK, subscription.SortDeliveries(s.subscription.Store().Today()))
}

func (s *Server) handleUpcoming(c *gin.Context) {
	c.JSON(http.StatusOK, subscription.SortDeliveries(s.subscription.Store().Upcoming()))
}

func (s *Server) handleStartJourney(c *gin.Context) {
	s.deliveryAction(c, s.subscription.StartJourney)
}

func (s *Server) handleMarkDelivered(c *gin.Context) {
	s.deliveryAction(c, s.subscription.MarkDelivered)
}

func (s *Server) handleNoResponse(c *gin.Context) {
	s.deliveryAction(c, s.subscription.MarkNoResponse)
}

func (s *Server) handleConfirmPickup(c *gin.Context) {
	s.deliveryAction(c, s.subscription.ConfirmPickup)
}

func (s *Server) deliveryAction(c *gin.Context, action func(ctx context.Context, id types.ID) (subscription.Delivery, error)) {
	d, err := action(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleAssigned(c *gin.Context) {
	c.JSON(http.StatusOK, s.subscription.Store().Assigned())
}

type setLocationReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (s *Server) handleSetLocation(c *gin.Context) {
	var req setLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	s.location.Set(types.Point{Lat: req.Lat, Lng: req.Lng})
	c.Status(http.StatusNoContent)
}
