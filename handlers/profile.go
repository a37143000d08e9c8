package handlers

import (
	"net/http"

	"canteen-runner-api/middleware"

	"github.com/gin-gonic/gin"
)

type ProfileDetailsRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
}

type ProfileNameRequest struct {
	Name string `json:"name" binding:"required"`
}

// GetProfile returns the caller's profile, delivery code included
func (h *Handler) GetProfile(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

// UpdateProfile sets name and phone together
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req ProfileDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.profiles.UpdateDetails(c.Request.Context(), middleware.GetUserID(c), req.Name, req.Phone)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated", "profile": p})
}

func (h *Handler) UpdateProfileName(c *gin.Context) {
	var req ProfileNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.profiles.UpdateName(c.Request.Context(), middleware.GetUserID(c), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Name updated", "profile": p})
}
