package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/core/service"
)

type sweetResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newSweetResponse(s domain.Sweet) sweetResponse {
	return sweetResponse{
		ID:        s.ID,
		Name:      s.Name,
		Category:  s.Category,
		Price:     s.Price,
		Quantity:  s.Quantity,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func newSweetResponses(sweets []domain.Sweet) []sweetResponse {
	out := make([]sweetResponse, 0, len(sweets))
	for _, s := range sweets {
		out = append(out, newSweetResponse(s))
	}
	return out
}

// userResponse is the public view of a user; the password hash never leaves
// the service.
type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func newSessionResponse(s *service.Session) sessionResponse {
	return sessionResponse{
		Token: s.Token,
		User: userResponse{
			ID:        s.User.ID,
			Username:  s.User.Username,
			Email:     s.User.Email,
			Role:      string(s.User.Role),
			CreatedAt: s.User.CreatedAt,
		},
	}
}

type fieldErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	var (
		verr *domain.ValidationError
		serr *domain.InsufficientStockError
	)

	switch {
	case errors.As(err, &verr):
		fields := make([]fieldErrorResponse, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, fieldErrorResponse{Field: f.Field, Message: f.Message})
		}
		c.JSON(http.StatusBadRequest, gin.H{"errors": fields})
	case errors.As(err, &serr):
		c.JSON(http.StatusBadRequest, gin.H{
			"message":   "Insufficient quantity in stock",
			"available": serr.Available,
		})
	case errors.Is(err, domain.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Valid quantity is required"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Sweet not found"})
	case errors.Is(err, domain.ErrAlreadyExists):
		c.JSON(http.StatusBadRequest, gin.H{"message": "User already exists"})
	case errors.Is(err, domain.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "Admin access required"})
	default:
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
	}
}

// bindError turns a JSON decoding failure into a field level validation error.
func bindError(err error) error {
	v := &domain.ValidationError{}

	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		v.Add(typeErr.Field, "must be of type "+typeErr.Type.String())
	case errors.Is(err, io.EOF):
		v.Add("body", "Request body is required")
	default:
		v.Add("body", "Malformed JSON body")
	}
	return v
}

// bindQuantity decodes an optional {quantity} body. Any undecodable body is
// reported as an invalid quantity.
func bindQuantity(c *gin.Context) (quantityRequest, error) {
	var in quantityRequest
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		return in, domain.ErrInvalidQuantity
	}
	return in, nil
}
