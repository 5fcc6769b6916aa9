// seed inserts a handful of demo schedules into the configured store for
// local testing. Adapted from the teacher's cmd/seed/main.go — same
// "idempotent re-run, print a short how-to-test summary" shape, retargeted
// from webhook job rows to Schedule records driving the http_invoke task.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ErlanBelekov/taskrun/config"
	ctxlog "github.com/ErlanBelekov/taskrun/internal/log"
	"github.com/ErlanBelekov/taskrun/internal/domain"
	"github.com/ErlanBelekov/taskrun/internal/codec"
	"github.com/ErlanBelekov/taskrun/internal/trigger"
)

type seedSpec struct {
	id       string
	url      string
	method   string
	interval time.Duration
}

var seeds = []seedSpec{
	{"seed-every-10s", "https://httpbin.org/post", "POST", 10 * time.Second},
	{"seed-every-1m", "https://httpbin.org/get", "GET", time.Minute},
	{"seed-every-5m", "https://httpbin.org/status/500", "POST", 5 * time.Minute},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := ctxlog.New(cfg.Env, cfg.SlogLevel())

	ctx := context.Background()
	st, _, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	c := codec.NewGobCodec()
	now := time.Now().UTC()

	var created, skipped int
	for _, spec := range seeds {
		trig, err := trigger.NewIntervalTrigger(spec.interval, now, nil)
		if err != nil {
			log.Fatalf("build trigger for %s: %v", spec.id, err)
		}
		first, ok, err := trig.Next()
		if err != nil {
			log.Fatalf("advance trigger for %s: %v", spec.id, err)
		}

		blob, err := c.Serialize(trig)
		if err != nil {
			log.Fatalf("serialize trigger for %s: %v", spec.id, err)
		}

		sched := &domain.Schedule{
			ID:                spec.id,
			TaskID:            "http_invoke",
			Kwargs:            map[string]any{"url": spec.url, "method": spec.method},
			SerializedTrigger: blob,
			Coalesce:          domain.CoalesceLatest,
			Tags:              []string{"seed"},
		}
		if ok {
			sched.NextFireTime = &first
		}

		if err := st.AddSchedule(ctx, sched, domain.ConflictDoNothing); err != nil {
			log.Fatalf("add schedule %s: %v", spec.id, err)
		}

		existing, err := st.GetSchedules(ctx, []string{spec.id})
		if err != nil {
			log.Fatalf("check schedule %s: %v", spec.id, err)
		}
		if len(existing) > 0 && existing[0].LastFireTime == nil {
			created++
		} else {
			skipped++
		}
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Store backend:  %s\n", cfg.StoreBackend)
	fmt.Printf("  Schedules:      %d created/unchanged, %d already present\n", created, skipped)
	fmt.Println()
	fmt.Println("  Register a task id \"http_invoke\" is already wired by cmd/schedulerd")
	fmt.Println("  and cmd/workerd. Start either binary to see these schedules fire.")
}
