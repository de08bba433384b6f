package api

import (
	"time"

	"github.com/fulldump/itempicker/service"
)

func getStats(s service.Servicer) func() *service.Stats {
	return func() *service.Stats {
		return s.Stats()
	}
}

func listDeadLetters(s service.Servicer) func() []*service.DeadLetter {
	return func() []*service.DeadLetter {
		return s.DeadLetters()
	}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

func health() *HealthResponse {
	return &HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UnixMilli(),
	}
}
