package main

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fulldump/itempicker/service"
)

// TestAdd sends new ids above the generated range and waits for the add batch
// to land.
func TestAdd(c Config) {

	stop := CreateServer(&c)
	defer stop()

	before, err := GetStats(c.Base)
	if err != nil {
		fmt.Println("ERROR: stats:", err.Error())
		return
	}

	next := int64(before.Items.Total) + 1_000_000
	pending := c.N
	rejected := int64(0)

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for atomic.AddInt64(&pending, -1) >= 0 {
			id := atomic.AddInt64(&next, 1)
			status, err := Post(c.Base, "add", JSON{"id": id, "bench": true})
			if err != nil || status != http.StatusAccepted {
				atomic.AddInt64(&rejected, 1)
			}
		}
	})
	Report(c.N, time.Since(t0))
	fmt.Println("rejected:", rejected)

	total := before.Items.Total + int(c.N-rejected)
	took := WaitApplied(c.Base, func(s *service.Stats) bool {
		return s.Items.Total >= total
	})
	fmt.Println("applied after:", took)
}
