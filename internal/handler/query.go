package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type listQuery struct {
	Search    string
	Semester  int
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

func parseListQuery(c *gin.Context) listQuery {
	q := listQuery{
		Search:    strings.TrimSpace(c.Query("search")),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if semester, err := strconv.Atoi(c.Query("semester")); err == nil {
		q.Semester = semester
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		q.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		q.PageSize = size
	}
	return q
}
