// Command generate_metrics serves synthetic docmind worker metrics so the
// Grafana dashboard can be developed without running real jobs.
//
//	go run ./grafana/testdata/generate_metrics.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/docmind/internal/mindmap"
	"github.com/fyrsmithlabs/docmind/internal/pipeline"
	"github.com/fyrsmithlabs/docmind/internal/worker"
)

// failureKinds are weighted towards the common ones.
var failureKinds = []pipeline.Kind{
	pipeline.KindExtraction, pipeline.KindExtraction,
	pipeline.KindSynthesis, pipeline.KindSynthesis,
	pipeline.KindIndexing,
	pipeline.KindGroupNotFound,
	pipeline.KindPersistence,
	pipeline.KindInvalidJob,
}

// stageSeconds is the typical duration of each stage.
var stageSeconds = map[pipeline.Stage]float64{
	pipeline.StageValidate: 0.001,
	pipeline.StageResolve:  0.01,
	pipeline.StageExtract:  0.8,
	pipeline.StageIndex:    4,
	pipeline.StageSummary:  12,
	pipeline.StageMindMap:  20,
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9091"
	}

	registry := prometheus.NewRegistry()
	m := worker.NewMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for i := 0; i < 200; i++ {
		simulateJob(m, i == 0)
	}
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				simulateJob(m, false)
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Sample metrics server running on http://localhost:%s/metrics\n", port)
	fmt.Println("\nTo use with Prometheus, add this to prometheus.yml:")
	fmt.Printf("  - job_name: 'docmind-test'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// simulateJob records one job: its stages up to the first failure, the job
// outcome and, on success, a mind-map transition.
func simulateJob(m *worker.Metrics, first bool) {
	failAt := -1
	if rand.Float64() < 0.15 {
		failAt = rand.Intn(len(pipeline.Stages))
	}

	for i, stage := range pipeline.Stages {
		d := time.Duration(stageSeconds[stage] * (0.5 + rand.Float64()) * float64(time.Second))
		var err error
		if i == failAt {
			err = errors.New("synthetic failure")
		}
		m.ObserveStage(stage, d, err)
		if err != nil {
			kind := failureKinds[rand.Intn(len(failureKinds))]
			m.JobsTotal.WithLabelValues(worker.OutcomeDropped, string(kind)).Inc()
			return
		}
	}

	m.JobsTotal.WithLabelValues(worker.OutcomeAcked, "").Inc()
	transition := mindmap.TransitionMerged
	if first {
		transition = mindmap.TransitionCreated
	}
	m.MindMapTransitions.WithLabelValues(string(transition)).Inc()
}
