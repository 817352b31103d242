package httpserver

import (
	"net/http"

	"github.com/and161185/devdice/internal/model"
	"github.com/and161185/devdice/internal/service"
	"github.com/gin-gonic/gin"
)

type signUpReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResp struct {
	Token string           `json:"token"`
	User  model.PublicUser `json:"user"`
}

type updateProfileReq struct {
	Name            *string `json:"name"`
	CurrentPassword string  `json:"currentPassword"`
	NewPassword     *string `json:"newPassword"`
}

type forgotReq struct {
	Email string `json:"email"`
}

type resetReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type successResp struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (s *Server) signUp(c *gin.Context) {
	var req signUpReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	sess, err := s.auth.SignUp(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResp{Token: sess.Token, User: sess.User.Public()})
}

func (s *Server) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	sess, err := s.auth.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, sessionResp{Token: sess.Token, User: sess.User.Public()})
}

func (s *Server) me(c *gin.Context) {
	cl, _ := ClaimsFrom(c)
	u, err := s.auth.Me(c.Request.Context(), cl.UserID)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u.Public()})
}

func (s *Server) updateProfile(c *gin.Context) {
	var req updateProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	cl, _ := ClaimsFrom(c)
	u, err := s.auth.UpdateProfile(c.Request.Context(), cl, c.Param("email"), model.ProfileUpdate{
		CurrentPassword: req.CurrentPassword,
		Name:            req.Name,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u.Public()})
}

func (s *Server) deleteAccount(c *gin.Context) {
	cl, _ := ClaimsFrom(c)
	if err := s.auth.DeleteAccount(c.Request.Context(), cl, c.Param("email")); err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, successResp{Success: true, Message: "Account deleted successfully"})
}

func (s *Server) forgotPassword(c *gin.Context) {
	var req forgotReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if err := s.auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": service.ResetRequestedMessage})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req resetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if req.Token == "" {
		req.Token = c.Query("token")
	}
	if err := s.auth.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
}
