package dashboard

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"tradeboard/internal/command"
	"tradeboard/internal/transport"
)

// textValue accepts a JSON string or number and keeps its literal text, so
// "10" and 10 reach the command builder identically.
type textValue string

func (v *textValue) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*v = textValue(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = textValue(s)
	return nil
}

type buySellRequest struct {
	Operation string    `json:"operation"`
	SecClass  string    `json:"secClass"`
	SecCode   string    `json:"secCode"`
	Quantity  textValue `json:"quantity"`
	Price     textValue `json:"price"`
}

type rawRequest struct {
	Message string `json:"message"`
}

func (s *Server) registerBoardRoutes(router *gin.Engine) {
	api := router.Group("/api")

	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.board.Status())
	})
	api.GET("/bars", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"bars": nonNil(s.board.Bars())})
	})
	api.GET("/orders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"orders": nonNil(s.board.Orders())})
	})
	api.GET("/accounts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"accounts": nonNil(s.board.Accounts())})
	})
	api.GET("/limits/stock", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"limits": nonNil(s.board.StockLimits())})
	})
	api.GET("/limits/money", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"limits": nonNil(s.board.MoneyLimits())})
	})
	api.GET("/events", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"events": nonNil(s.board.Events())})
	})
	api.GET("/raw/default", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": s.board.DefaultRawMessage()})
	})

	api.POST("/buysell", s.handleBuySell)
	api.POST("/raw", s.handleRaw)
}

func (s *Server) handleBuySell(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req buySellRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	entry, err := s.board.BuySell(c.Request.Context(), req.Operation, req.SecClass, req.SecCode, string(req.Quantity), string(req.Price))
	if err != nil {
		s.commandError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"event": entry})
}

// handleRaw accepts either {"message": "..."} or a text/plain body.
func (s *Server) handleRaw(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text := string(body)
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req rawRequest
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		text = req.Message
	}
	if strings.TrimSpace(text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		return
	}

	entry, err := s.board.SendRaw(c.Request.Context(), text)
	if err != nil {
		s.commandError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"event": entry})
}

func (s *Server) commandError(c *gin.Context, err error) {
	var verr *command.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, transport.ErrNotConnected):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.log.WithComponent("dashboard").WithError(err).Warn("command failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
