package helper_util

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func GetPaginationParams(c *gin.Context) (limit int, offset int, err error) {
	limit, err = strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil {
		return 0, 0, err
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// GetTimeRangeParams parses the optional RFC3339 "from" and "to" query
// params. A missing "from" means unbounded; a missing "to" means now.
func GetTimeRangeParams(c *gin.Context) (from time.Time, to time.Time, err error) {
	if s := c.Query("from"); s != "" {
		from, err = ParseTime(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	to = time.Now().UTC()
	if s := c.Query("to"); s != "" {
		to, err = ParseTime(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}
