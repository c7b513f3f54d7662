package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"reservation-backend/internal/analyzer"
	"reservation-backend/internal/notification"
	"reservation-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	grid       []string
	dispatcher notification.Dispatcher
	analyzer   analyzer.Analyzer
	webpush    *webpush.Options
	now        func() time.Time
}

// Option customizes a Handler.
type Option func(*Handler)

// WithDispatcher sends reservation events to d after every successful upsert.
func WithDispatcher(d notification.Dispatcher) Option {
	return func(h *Handler) { h.dispatcher = d }
}

// WithAnalyzer enables POST /analyze.
func WithAnalyzer(a analyzer.Analyzer) Option {
	return func(h *Handler) { h.analyzer = a }
}

// WithWebPush exposes the VAPID public key to staff devices.
func WithWebPush(opts *webpush.Options) Option {
	return func(h *Handler) { h.webpush = opts }
}

// WithClock replaces the server clock used by check-in.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithLocation reads the server clock in loc.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) {
		if loc != nil {
			h.now = func() time.Time { return time.Now().In(loc) }
		}
	}
}

// NewHandler creates a new API handler serving the given slot grid.
func NewHandler(s store.Store, grid []string, opts ...Option) *Handler {
	useTagNames()
	h := &Handler{
		store: s,
		grid:  grid,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// bindError turns a binding failure into a 400 body, one message per field.
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": fields})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

var registerFieldNames sync.Once

// useTagNames makes validation errors name fields as clients send them.
func useTagNames() {
	registerFieldNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})
	})
}
