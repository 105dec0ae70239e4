package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/market_hours"
	"github.com/aristath/rebalancer/internal/work"
)

// HostSample is a point-in-time view of host resources
type HostSample struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsed    uint64
	MemoryTotal   uint64
}

// HostStats samples host resources
type HostStats interface {
	Sample(ctx context.Context) (HostSample, error)
}

// SystemHost reads host stats through gopsutil
type SystemHost struct{}

// Sample implements HostStats
func (SystemHost) Sample(ctx context.Context) (HostSample, error) {
	var s HostSample

	cpuPercent, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
	if err != nil {
		return s, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(cpuPercent) > 0 {
		s.CPUPercent = cpuPercent[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to read memory usage: %w", err)
	}
	s.MemoryPercent = vm.UsedPercent
	s.MemoryUsed = vm.Used
	s.MemoryTotal = vm.Total
	return s, nil
}

// marketReporter is implemented by market_hours.Policy
type marketReporter interface {
	Status() (*market_hours.MarketStatus, error)
	IsHoliday() bool
}

type healthCommand struct {
	host HostStats
}

func (c *healthCommand) Kind() domain.ExecCommand { return domain.CommandHealth }

// Execute reports queue depth, store and broker reachability, market state and host load.
// An unreachable broker is reported, not failed: health is informational.
func (c *healthCommand) Execute(ctx context.Context, req work.Request, caps work.Capabilities) work.Result {
	var b strings.Builder
	data := map[string]interface{}{}
	healthy := true

	fmt.Fprintf(&b, "Health for %s\n", req.Account.AccountID)

	if caps.Queue != nil {
		stats, err := caps.Queue.Stats(ctx)
		if err != nil {
			healthy = false
			fmt.Fprintf(&b, "Queue:  unavailable (%v)\n", err)
		} else {
			fmt.Fprintf(&b, "Queue:  active=%d retry=%d delayed=%d held=%d\n",
				stats.Active, stats.Retry, stats.Delayed, stats.Dedup)
			data["queue_active"] = stats.Active
			data["queue_retry"] = stats.Retry
			data["queue_delayed"] = stats.Delayed
		}
	}

	if caps.Store != nil {
		err := caps.Store.HealthCheck(ctx)
		if err != nil {
			healthy = false
			fmt.Fprintf(&b, "Store:  unavailable (%v)\n", err)
		} else {
			b.WriteString("Store:  ok\n")
		}
		data["store_ok"] = err == nil
	}

	if caps.Broker == nil {
		healthy = false
		b.WriteString("Broker: not configured\n")
	} else if equity, err := caps.Broker.GetEquity(ctx, req.Account.AccountID); err != nil {
		healthy = false
		fmt.Fprintf(&b, "Broker: unreachable (%v)\n", err)
	} else {
		fmt.Fprintf(&b, "Broker: ok (equity %.2f)\n", equity)
		data["equity"] = equity
	}

	if caps.MarketHours != nil {
		open := caps.MarketHours.IsOpen()
		state := "closed"
		if open {
			state = "open"
		}
		fmt.Fprintf(&b, "Market: %s%s\n", state, marketDetail(caps.MarketHours, data))
		data["market_open"] = open
	}

	if c.host != nil {
		sample, err := c.host.Sample(ctx)
		if err != nil {
			fmt.Fprintf(&b, "Host:   unavailable (%v)\n", err)
		} else {
			fmt.Fprintf(&b, "Host:   cpu %.1f%%, memory %.1f%% (%d MiB of %d MiB)\n",
				sample.CPUPercent, sample.MemoryPercent, sample.MemoryUsed>>20, sample.MemoryTotal>>20)
			data["cpu_percent"] = sample.CPUPercent
			data["memory_percent"] = sample.MemoryPercent
		}
	}

	data["healthy"] = healthy
	return work.Result{Output: b.String(), Data: data}
}

// marketDetail describes the session when the policy can report it
func marketDetail(hours domain.MarketHours, data map[string]interface{}) string {
	reporter, ok := hours.(marketReporter)
	if !ok {
		return ""
	}
	status, err := reporter.Status()
	if err != nil {
		return fmt.Sprintf(" (status unavailable: %v)", err)
	}

	data["market_exchange"] = status.Exchange
	parts := []string{status.Exchange}
	if status.Open {
		parts = append(parts, "closes "+status.ClosesAt)
		data["market_closes_at"] = status.ClosesAt
	} else {
		if reporter.IsHoliday() {
			parts = append(parts, "holiday")
			data["market_holiday"] = true
		}
		if status.OpensAt != "" {
			opens := "opens " + status.OpensAt
			if status.OpensDate != "" {
				opens += " on " + status.OpensDate
			}
			parts = append(parts, opens)
			data["market_opens_at"] = strings.TrimSpace(status.OpensDate + " " + status.OpensAt)
		}
	}
	return fmt.Sprintf(" (%s, %s)", strings.Join(parts, ", "), status.Timezone)
}
