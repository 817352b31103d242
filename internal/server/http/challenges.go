package httpserver

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/and161185/devdice/internal/model"
	"github.com/gin-gonic/gin"
)

type bulkReq struct {
	Challenges []model.ChallengeInput `json:"challenges"`
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid id", nil)
		return 0, false
	}
	return id, true
}

func (s *Server) listChallenges(c *gin.Context) {
	list, err := s.catalog.List(c.Request.Context())
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) randomChallenge(c *gin.Context) {
	ch, err := s.catalog.GetRandom(c.Request.Context())
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (s *Server) createChallenge(c *gin.Context) {
	var req model.ChallengeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	ch, err := s.catalog.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (s *Server) bulkCreate(c *gin.Context) {
	var req bulkReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	res, err := s.catalog.BulkCreate(c.Request.Context(), req.Challenges)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// importCSV accepts either a multipart form with a "file" part or a raw text/csv body.
func (s *Server) importCSV(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			badRequest(c, "Missing CSV file", err)
			return
		}
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "Unreadable CSV file", err)
			return
		}
		defer f.Close()
		body = f
	}
	res, err := s.catalog.ImportCSV(c.Request.Context(), body)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) updateChallenge(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req model.ChallengeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	ch, err := s.catalog.Update(c.Request.Context(), id, req)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (s *Server) deleteChallenge(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.catalog.Delete(c.Request.Context(), id); err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, successResp{Success: true})
}
