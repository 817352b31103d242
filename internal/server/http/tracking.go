package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type saveReq struct {
	ChallengeID int64 `json:"challengeId"`
}

func (s *Server) listMine(c *gin.Context) {
	cl, ok := ClaimsFrom(c)
	if !ok {
		writeError(c, s.log, errNoUser)
		return
	}
	list, err := s.tracking.List(c.Request.Context(), cl.UserID)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) saveMine(c *gin.Context) {
	cl, ok := ClaimsFrom(c)
	if !ok {
		writeError(c, s.log, errNoUser)
		return
	}
	var req saveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	uc, err := s.tracking.Save(c.Request.Context(), cl.UserID, req.ChallengeID)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, uc)
}

func (s *Server) completeMine(c *gin.Context) {
	cl, ok := ClaimsFrom(c)
	if !ok {
		writeError(c, s.log, errNoUser)
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	uc, err := s.tracking.MarkComplete(c.Request.Context(), cl.UserID, id)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, uc)
}

func (s *Server) deleteMine(c *gin.Context) {
	cl, ok := ClaimsFrom(c)
	if !ok {
		writeError(c, s.log, errNoUser)
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.tracking.Delete(c.Request.Context(), cl.UserID, id); err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, successResp{Success: true})
}
