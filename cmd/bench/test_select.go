package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fulldump/itempicker/service"
)

// TestSelect sends select and deselect requests for random items, most of
// them collapse inside the update batch window.
func TestSelect(c Config) {

	stop := CreateServer(&c)
	defer stop()

	before, err := GetStats(c.Base)
	if err != nil {
		fmt.Println("ERROR: stats:", err.Error())
		return
	}

	pending := c.N
	rejected := int64(0)

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for atomic.AddInt64(&pending, -1) >= 0 {
			id := rand.Intn(c.Items) + 1
			action := "select"
			if rand.Intn(4) == 0 {
				action = "deselect"
			}
			status, err := Post(c.Base, action, JSON{"id": id})
			if err != nil || status != http.StatusAccepted {
				atomic.AddInt64(&rejected, 1)
			}
		}
	})
	Report(c.N, time.Since(t0))
	fmt.Println("rejected:", rejected)

	enqueued := before.UpdateQueue.Enqueued + c.N - rejected
	took := WaitApplied(c.Base, func(s *service.Stats) bool {
		return s.UpdateQueue.Enqueued >= enqueued && s.UpdateQueue.Pending == 0
	})
	fmt.Println("applied after:", took)

	stats, _ := GetStats(c.Base)
	fmt.Printf("batches: %d, overwritten: %d, selected: %d\n",
		stats.UpdateQueue.Batches-before.UpdateQueue.Batches,
		stats.UpdateQueue.Overwritten-before.UpdateQueue.Overwritten,
		stats.Items.Selected)
}
