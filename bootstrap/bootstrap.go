package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fulldump/box"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/fulldump/itempicker/api"
	"github.com/fulldump/itempicker/batchqueue"
	"github.com/fulldump/itempicker/configuration"
	"github.com/fulldump/itempicker/database"
	"github.com/fulldump/itempicker/service"
)

var VERSION = "dev"

func Bootstrap(c *configuration.Configuration) (start, stop func()) {

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	db := database.NewDatabase(&database.Config{
		Items: c.Items,
	})

	deadLetterLogger := log.New(os.Stdout, "DEADLETTER: ", log.LstdFlags)
	s := service.NewService(db.Store, &service.Config{
		AddDelay:      c.AddDelay,
		UpdateDelay:   c.UpdateDelay,
		MaxRetries:    c.MaxRetries,
		RetryDelay:    c.RetryDelay,
		MaxRetryDelay: c.MaxRetryDelay,
		DefaultLimit:  c.DefaultLimit,
		MaxLimit:      c.MaxLimit,
		Logger:        log.New(os.Stdout, "QUEUE: ", log.LstdFlags),
		Metrics:       batchqueue.NewMetrics(reg),
		OnDeadLetter:  func(d *service.DeadLetter) {
			deadLetterLogger.Printf("queue=%s key=%s attempts=%d error=%q", d.Queue, d.Key, d.Attempts, d.Error)
		},
	})
	err := api.RegisterStoreMetrics(reg, s)
	if err != nil {
		log.Println("ERROR:", err.Error())
		os.Exit(-1)
	}

	b := api.Build(s, c.Statics, VERSION, reg)
	if c.EnableCompression {
		b.WithInterceptors(api.Compression)
	}
	b.WithInterceptors(
		api.AccessLog(log.New(os.Stdout, "ACCESS: ", log.Lshortfile)),
		api.InterceptorUnavailable(db),
		api.RecoverFromPanic,
		api.PrettyErrorInterceptor,
		api.RateLimit(c.RateLimit, c.RateBurst),
	)

	server := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		log.Println("ERROR:", err.Error())
		os.Exit(-1)
	}
	log.Println("listening on", c.HttpAddr)

	stopOnce := &sync.Once{}
	stop = func() {
		stopOnce.Do(func() {
			db.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			err := server.Shutdown(ctx)
			if err != nil {
				log.Println("ERROR: shutdown:", err.Error())
			}

			// Pending mutations are applied before leaving
			err = s.Close(ctx)
			if err != nil {
				log.Println("ERROR: close service:", err.Error())
			}
		})
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		fmt.Println("Signal received", sig.String())
		stop()
	}()

	start = func() {

		g := &errgroup.Group{}

		g.Go(func() error {
			err := db.Start()
			if err != nil {
				log.Println("ERROR: database:", err.Error())
				stop()
			}
			return err
		})

		g.Go(func() error {
			err := server.Serve(ln)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			db.Stop()
			return err
		})

		err := g.Wait()
		if err != nil {
			fmt.Println(err.Error())
		}
	}

	return
}
