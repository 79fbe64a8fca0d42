package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"vintervej/internal/modules/winter/types"
)

const defaultHistoryWindow = 24 * time.Hour

func parseRoadsQuery(r *http.Request) (status types.SaltingStatus, hasStatus bool, limit int, err error) {
	q := r.URL.Query()

	if s := q.Get("status"); s != "" {
		status = types.SaltingStatus(s)
		if !status.Valid() {
			return "", false, 0, fmt.Errorf("invalid 'status' %q", s)
		}
		hasStatus = true
	}

	// limit 0 returns everything.
	if s := q.Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return "", false, 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return "", false, 0, errors.New("'limit' must be > 0")
		}
		if n > 1000 {
			return "", false, 0, errors.New("'limit' must be <= 1000")
		}
		limit = n
	}

	return status, hasStatus, limit, nil
}

func parseHistoryQuery(r *http.Request) (from time.Time, to time.Time, limit int, offset int, err error) {
	q := r.URL.Query()

	if s := q.Get("to"); s != "" {
		to, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, 0, 0, errors.New("invalid 'to' (expected RFC3339)")
		}
	} else {
		to = time.Now().UTC()
	}
	if s := q.Get("from"); s != "" {
		from, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, 0, 0, errors.New("invalid 'from' (expected RFC3339)")
		}
	} else {
		from = to.Add(-defaultHistoryWindow)
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, 0, 0, errors.New("'from' must be <= 'to'")
	}

	limit = 100
	if s := q.Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return time.Time{}, time.Time{}, 0, 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return time.Time{}, time.Time{}, 0, 0, errors.New("'limit' must be > 0")
		}
		if n > 1000 {
			return time.Time{}, time.Time{}, 0, 0, errors.New("'limit' must be <= 1000")
		}
		limit = n
	}

	if s := q.Get("offset"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return time.Time{}, time.Time{}, 0, 0, errors.New("invalid 'offset' (expected integer)")
		}
		if n < 0 {
			return time.Time{}, time.Time{}, 0, 0, errors.New("'offset' must be >= 0")
		}
		offset = n
	}

	return from, to, limit, offset, nil
}
