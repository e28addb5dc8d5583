package server

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/pitwall-bot/pitwall/internal/timing"
)

func intParam(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, &timing.ValidationError{Field: name, Reason: "is required"}
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &timing.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return v, nil
}

// listParam accepts both repeated and comma-separated values
func listParam(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}
