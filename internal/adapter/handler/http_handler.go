package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/core/service"
	"github.com/rl1809/sweet-shop/internal/port"
)

type HTTPHandler struct {
	sweets   *service.SweetService
	auth     *service.AuthService
	verifier port.TokenVerifier
	logger   *zap.Logger
}

type sweetRequest struct {
	Name     *string  `json:"name"`
	Category *string  `json:"category"`
	Price    *float64 `json:"price"`
	Quantity *int     `json:"quantity"`
}

func (r sweetRequest) draft() domain.SweetDraft {
	return domain.SweetDraft{
		Name:     r.Name,
		Category: r.Category,
		Price:    r.Price,
		Quantity: r.Quantity,
	}
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewHTTPHandler(sweets *service.SweetService, auth *service.AuthService, verifier port.TokenVerifier, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		sweets:   sweets,
		auth:     auth,
		verifier: verifier,
		logger:   logger,
	}
}

// Router mounts every route under prefix. All /sweets routes require a
// valid token; writes other than purchase also require the admin role.
func (h *HTTPHandler) Router(prefix string) *gin.Engine {
	r := gin.New()
	r.Use(h.recovery(), h.requestLogger(), cors())

	api := r.Group(strings.TrimSuffix(prefix, "/"))
	api.GET("/health", h.HealthCheck)

	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", h.Register)
	authRoutes.POST("/login", h.Login)

	sweets := api.Group("/sweets", h.authenticate())
	sweets.GET("", h.ListSweets)
	sweets.GET("/search", h.SearchSweets)
	sweets.POST("/:id/purchase", h.PurchaseSweet)

	admin := sweets.Group("", h.requireAdmin())
	admin.POST("", h.CreateSweet)
	admin.PUT("/:id", h.UpdateSweet)
	admin.DELETE("/:id", h.DeleteSweet)
	admin.POST("/:id/restock", h.RestockSweet)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Route not found"})
	})
	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "message": "Sweet Shop API is running"})
}

func (h *HTTPHandler) Register(c *gin.Context) {
	var in registerRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	sess, err := h.auth.Register(c.Request.Context(), domain.Registration{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newSessionResponse(sess))
}

func (h *HTTPHandler) Login(c *gin.Context) {
	var in loginRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	sess, err := h.auth.Login(c.Request.Context(), domain.Credentials{Email: in.Email, Password: in.Password})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sess))
}

func (h *HTTPHandler) ListSweets(c *gin.Context) {
	sweets, err := h.sweets.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sweets": newSweetResponses(sweets)})
}

func (h *HTTPHandler) SearchSweets(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	sweets, err := h.sweets.Search(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sweets": newSweetResponses(sweets)})
}

func (h *HTTPHandler) CreateSweet(c *gin.Context) {
	var in sweetRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	sweet, err := h.sweets.Create(c.Request.Context(), in.draft())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Sweet created successfully",
		"sweet":   newSweetResponse(*sweet),
	})
}

func (h *HTTPHandler) UpdateSweet(c *gin.Context) {
	var in sweetRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	sweet, err := h.sweets.Update(c.Request.Context(), c.Param("id"), in.draft())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Sweet updated successfully",
		"sweet":   newSweetResponse(*sweet),
	})
}

func (h *HTTPHandler) DeleteSweet(c *gin.Context) {
	if err := h.sweets.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Sweet deleted successfully"})
}

func (h *HTTPHandler) PurchaseSweet(c *gin.Context) {
	in, err := bindQuantity(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	quantity := service.DefaultPurchaseQuantity
	if in.Quantity != nil {
		quantity = *in.Quantity
	}

	sweet, err := h.sweets.Purchase(c.Request.Context(), c.Param("id"), quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Purchase successful",
		"sweet":   newSweetResponse(*sweet),
	})
}

func (h *HTTPHandler) RestockSweet(c *gin.Context) {
	in, err := bindQuantity(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if in.Quantity == nil {
		h.writeError(c, domain.ErrInvalidQuantity)
		return
	}

	sweet, err := h.sweets.Restock(c.Request.Context(), c.Param("id"), *in.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Restock successful",
		"sweet":   newSweetResponse(*sweet),
	})
}

func parseFilter(c *gin.Context) (domain.SweetFilter, error) {
	filter := domain.SweetFilter{
		Name:     strings.TrimSpace(c.Query("name")),
		Category: strings.TrimSpace(c.Query("category")),
	}

	v := &domain.ValidationError{}
	for _, p := range []struct {
		param string
		dst   **float64
	}{
		{"minPrice", &filter.MinPrice},
		{"maxPrice", &filter.MaxPrice},
	} {
		raw := strings.TrimSpace(c.Query(p.param))
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			v.Add(p.param, p.param+" must be a number")
			continue
		}
		*p.dst = &f
	}
	return filter, v.Err()
}
