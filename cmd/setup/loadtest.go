package setup

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/IsaacDSC/gquery/internal/cfg"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	vegeta "github.com/tsenart/vegeta/v12/lib"
)

// RunLoadTest attacks the gateway's /query route with a random page of
// /users per request and writes a text report to out.
func RunLoadTest(conf cfg.LoadTest, out io.Writer) vegeta.Metrics {
	rate := vegeta.Rate{Freq: conf.Rate, Per: time.Second}
	attacker := vegeta.NewAttacker()

	var metrics vegeta.Metrics
	for res := range attacker.Attack(usersTargeter(conf), rate, conf.Duration.Std(), "gquery gateway") {
		metrics.Add(res)
	}
	metrics.Close()

	fmt.Fprintf(out, "99th percentile: %s\n", metrics.Latencies.P99)
	fmt.Fprintf(out, "95th percentile: %s\n", metrics.Latencies.P95)
	fmt.Fprintf(out, "Mean: %s\n", metrics.Latencies.Mean)
	fmt.Fprintf(out, "Requests per second: %.2f\n", metrics.Rate)
	fmt.Fprintf(out, "Success ratio: %.2f%%\n", metrics.Success*100)
	fmt.Fprintf(out, "Status codes: %v\n", metrics.StatusCodes)

	fmt.Fprintln(out, "\n=== Report ===")
	vegeta.NewTextReporter(&metrics).Report(out)

	return metrics
}

func usersTargeter(conf cfg.LoadTest) vegeta.Targeter {
	pages := max(conf.Pages, 1)
	base := strings.TrimRight(conf.Target, "/")

	return func(tgt *vegeta.Target) error {
		page := gofakeit.Number(1, pages)

		tgt.Method = http.MethodGet
		tgt.URL = fmt.Sprintf("%s/query?path=/users&page=%d&size=10", base, page)
		tgt.Header = http.Header{
			requestIDHeader: {uuid.NewString()},
		}
		return nil
	}
}
