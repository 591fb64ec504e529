package notifications

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/evercal/notify-service/internal/domain"
	"github.com/evercal/notify-service/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotificationNotFound, Status: http.StatusNotFound, Message: "notification not found"},
	{Error: ErrEventNotFound, Status: http.StatusBadRequest, Message: "event not found"},
	{Error: ErrCalendarNotFound, Status: http.StatusBadRequest, Message: "calendar not found"},
}

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(service *Service) *Handler {
	v := validator.New()
	// Report the wire-format field names, not the Go ones.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		service:   service,
		validator: v,
	}
}

// RegisterRoutes registers notification routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/in-app/{recipientEmail}", h.ListUnreadInApp)
		r.Patch("/{id}/read", h.MarkRead)
	})
}

// CreateRequest represents request body for creating a notification.
type CreateRequest struct {
	EventID       string `json:"eventId" validate:"required"`
	CalendarID    string `json:"calendarId" validate:"required"`
	CommenterName string `json:"commenterName" validate:"required"`
}

// Create handles POST /notifications.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	notification, err := h.service.Create(r.Context(), CreateInput{
		EventID:       req.EventID,
		CalendarID:    req.CalendarID,
		CommenterName: req.CommenterName,
	})
	if err != nil {
		if ve, ok := IsValidationError(err); ok {
			httputil.Error(w, http.StatusBadRequest, ve.Error())
			return
		}
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, notification)
}

// List handles GET /notifications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// ListUnreadInApp handles GET /notifications/in-app/{recipientEmail}.
func (h *Handler) ListUnreadInApp(w http.ResponseWriter, r *http.Request) {
	recipientEmail := chi.URLParam(r, "recipientEmail")

	result, err := h.service.ListUnreadInApp(r.Context(), recipientEmail)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// MarkRead handles PATCH /notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	notification, err := h.service.MarkRead(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, notification)
}

func filterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{
		EventID:        q.Get("eventId"),
		CalendarID:     q.Get("calendarId"),
		RecipientEmail: q.Get("recipientEmail"),
		Channel:        domain.Channel(q.Get("channel")),
		Status:         domain.Status(q.Get("status")),
	}

	if raw := q.Get("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid query parameter: unread")
		}
		filter.Unread = &unread
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return Filter{}, fmt.Errorf("invalid query parameter: limit")
		}
		filter.Limit = limit
	}

	return filter, nil
}
