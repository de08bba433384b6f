package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fulldump/itempicker/bootstrap"
	"github.com/fulldump/itempicker/configuration"
	"github.com/fulldump/itempicker/service"
)

type JSON = map[string]any

var client = &http.Client{
	Transport: &http.Transport{
		MaxConnsPerHost:     1024,
		MaxIdleConnsPerHost: 1024,
		MaxIdleConns:        1024,
	},
}

func Parallel(workers int, f func()) {
	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}
	wg.Wait()
}

// CreateServer starts a local server when no base URL is given and waits for
// it to be operating.
func CreateServer(c *Config) (stop func()) {
	if c.Base != "" {
		return func() {}
	}

	conf := configuration.Default()
	conf.Items = c.Items
	conf.ShowBanner = false
	c.Base = "http://localhost" + conf.HttpAddr

	start, stop := bootstrap.Bootstrap(&conf)
	go start()

	for {
		resp, err := client.Get(c.Base + "/v1/health")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	return stop
}

func Post(base, action string, body any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	resp, err := client.Post(base+"/v1/items/"+action, "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func GetStats(base string) (*service.Stats, error) {
	resp, err := client.Get(base + "/v1/stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	stats := &service.Stats{}
	err = json.NewDecoder(resp.Body).Decode(stats)
	return stats, err
}

// WaitApplied polls stats until done reports true.
func WaitApplied(base string, done func(s *service.Stats) bool) time.Duration {
	t0 := time.Now()
	for {
		stats, err := GetStats(base)
		if err != nil {
			fmt.Println("ERROR: stats:", err.Error())
		} else if done(stats) {
			return time.Since(t0)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func Report(n int64, took time.Duration) {
	fmt.Println("sent:", n)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f requests/sec\n", float64(n)/took.Seconds())
}
