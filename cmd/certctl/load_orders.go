package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

// loadStats счетчики обстрела, обновляются из всех горутин
type loadStats struct {
	total        int64
	success      int64
	failed       int64
	totalLatency int64
	minLatency   int64
	maxLatency   int64
}

func newLoadStats() *loadStats {
	return &loadStats{minLatency: int64(time.Hour)}
}

func (s *loadStats) record(latency time.Duration, ok bool) {
	atomic.AddInt64(&s.total, 1)
	if ok {
		atomic.AddInt64(&s.success, 1)
	} else {
		atomic.AddInt64(&s.failed, 1)
	}
	ns := int64(latency)
	atomic.AddInt64(&s.totalLatency, ns)
	for {
		cur := atomic.LoadInt64(&s.minLatency)
		if ns >= cur || atomic.CompareAndSwapInt64(&s.minLatency, cur, ns) {
			break
		}
	}
	for {
		cur := atomic.LoadInt64(&s.maxLatency)
		if ns <= cur || atomic.CompareAndSwapInt64(&s.maxLatency, cur, ns) {
			break
		}
	}
}

func (s *loadStats) avg() time.Duration {
	total := atomic.LoadInt64(&s.total)
	if total == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&s.totalLatency) / total)
}

// orderPayload подарочный сертификат на сумму amount с доставкой по ссылке
func orderPayload(companyID string, amount int64, n int64) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"companyId":      companyID,
		"type":           "gift",
		"amount":         amount,
		"recipientName":  "Нагрузочный тест",
		"deliveryMethod": "download",
		"visitorId":      fmt.Sprintf("load-%d", n),
		"client": map[string]interface{}{
			"firstName": "Load",
			"email":     fmt.Sprintf("load+%d@example.kz", n),
		},
	})
}

// runOrderLoad стреляет POST /api/orders из concurrency горутин до истечения ctx
func runOrderLoad(ctx context.Context, baseURL, companyID string, amount int64, concurrency int) *loadStats {
	stats := newLoadStats()
	url := strings.TrimRight(baseURL, "/") + "/api/orders"
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: concurrency,
			MaxIdleConns:        concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var seq int64
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				body, err := orderPayload(companyID, amount, atomic.AddInt64(&seq, 1))
				if err != nil {
					return
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
				if err != nil {
					return
				}
				req.Header.Set("Content-Type", "application/json")

				start := time.Now()
				resp, err := client.Do(req)
				if ctx.Err() != nil {
					if resp != nil {
						resp.Body.Close()
					}
					return
				}
				ok := err == nil && resp.StatusCode == http.StatusCreated
				if resp != nil {
					io.Copy(io.Discard, resp.Body)
					resp.Body.Close()
				}
				stats.record(time.Since(start), ok)
			}
		}()
	}
	wg.Wait()
	return stats
}

func loadOrdersCmd() *cobra.Command {
	var (
		baseURL     string
		companyID   string
		amount      int64
		concurrency int
		duration    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "load-orders",
		Short: "Нагрузочный тест оформления заказов (POST /api/orders)",
		Long: `Создает заказы на подарочный сертификат из нескольких горутин и печатает RPS
и задержки. Каждый заказ открывает платеж в OneVision: запускайте только на стенде
с тестовыми ключами филиала.

Examples:
  certctl load-orders --company 7b0c2c4e-... --concurrency 20 --duration 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if companyID == "" {
				return fmt.Errorf("--company is required")
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "🚀 Нагрузочное тестирование оформления заказов")
			fmt.Fprintf(out, "📍 URL: %s/api/orders\n", strings.TrimRight(baseURL, "/"))
			fmt.Fprintf(out, "⚙️  Горутин: %d, длительность: %v\n", concurrency, duration)

			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()

			start := time.Now()
			stats := runOrderLoad(ctx, baseURL, companyID, amount, concurrency)
			elapsed := time.Since(start)

			total := atomic.LoadInt64(&stats.total)
			fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			fmt.Fprintf(out, "⏱️  Время теста: %v\n", elapsed.Round(time.Millisecond))
			fmt.Fprintf(out, "📈 Всего запросов: %d\n", total)
			fmt.Fprintf(out, "✅ Успешных: %d\n", stats.success)
			fmt.Fprintf(out, "❌ Ошибок: %d\n", stats.failed)
			if total > 0 {
				fmt.Fprintf(out, "⚡ RPS: %.1f\n", float64(total)/elapsed.Seconds())
				fmt.Fprintf(out, "🕐 Задержка min/avg/max: %v / %v / %v\n",
					time.Duration(stats.minLatency).Round(time.Millisecond),
					stats.avg().Round(time.Millisecond),
					time.Duration(stats.maxLatency).Round(time.Millisecond))
			}
			fmt.Fprintf(out, "🔧 Горутин в процессе: %d\n", runtime.NumGoroutine())
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "Адрес API")
	cmd.Flags().StringVar(&companyID, "company", "", "ID филиала")
	cmd.Flags().Int64Var(&amount, "amount", 10000, "Номинал сертификата")
	cmd.Flags().IntVar(&concurrency, "concurrency", 10, "Количество горутин")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "Длительность теста")
	return cmd
}
