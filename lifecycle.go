package sessionkit

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/scstanton20/sessionkit/internal/cookiewatch"
	"github.com/scstanton20/sessionkit/internal/state"
)

// lifecycleLoop keeps an authenticated session alive in the background:
// it schedules proactive refreshes, reacts to visibility changes, and
// walks the backoff chain when a refresh fails. One loop runs per
// authenticated session; logout cancels it.
type lifecycleLoop struct {
	c    *Client
	ctx  context.Context
	stop context.CancelFunc
	done chan struct{}
}

// startLifecycle launches the background loop if none is running.
func (c *Client) startLifecycle() {
	c.mu.Lock()
	if c.loop != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &lifecycleLoop{c: c, ctx: ctx, stop: cancel, done: make(chan struct{})}
	c.loop = l
	c.mu.Unlock()

	go l.run()
}

// stopLifecycle cancels the running loop. wait must be false when the
// caller might be the loop goroutine itself.
func (c *Client) stopLifecycle(wait bool) {
	c.mu.Lock()
	l := c.loop
	c.loop = nil
	c.mu.Unlock()

	if l == nil {
		return
	}
	l.stop()
	if wait {
		<-l.done
	}
}

// cancel asks the loop to exit without waiting for it.
func (l *lifecycleLoop) cancel() {
	l.stop()
}

func (l *lifecycleLoop) run() {
	defer close(l.done)

	visCh := l.c.visibility.Events()
	for {
		if l.ctx.Err() != nil {
			return
		}

		// Hidden clients do not burn refreshes; wait for the monitor to
		// report visibility again and catch up then.
		if !l.c.visibility.Visible() {
			select {
			case <-l.ctx.Done():
				return
			case vis, ok := <-visCh:
				if !ok {
					visCh = nil
					continue
				}
				if vis && l.refreshDue() {
					l.refreshChain(MetricVisibilityRefresh)
				}
			}
			continue
		}

		timer := time.NewTimer(l.sleepFor())
		select {
		case <-l.ctx.Done():
			timer.Stop()
			return

		case vis, ok := <-visCh:
			timer.Stop()
			if !ok {
				visCh = nil
				continue
			}
			if vis && l.refreshDue() {
				l.refreshChain(MetricVisibilityRefresh)
			}

		case <-timer.C:
			if l.refreshDue() {
				l.refreshChain(MetricProactiveRefresh)
			}
		}
	}
}

// dueAt computes when the next proactive refresh should run. The fixed
// interval anchors on the last successful refresh; when cookie watching
// is on and the session cookie is a readable JWT, its expiry schedule
// wins.
func (l *lifecycleLoop) dueAt() time.Time {
	cfg := l.c.config.Lifecycle
	due := l.c.LastRefresh().Add(cfg.RefreshInterval)

	if cfg.WatchCookies {
		w, ok := cookiewatch.FromJar(l.c.api.Jar(), l.c.api.Origin(), cfg.CookieNames...)
		if ok {
			due = w.RefreshAt(cookiewatch.DefaultLeadFraction)
		}
	}
	return due
}

// refreshDue reports whether the session is old enough to refresh.
func (l *lifecycleLoop) refreshDue() bool {
	return !time.Now().Before(l.dueAt())
}

// minLoopSleep keeps the loop from spinning when the due point is
// already behind us but the refresh keeps deciding not to run.
const minLoopSleep = 5 * time.Millisecond

// sleepFor clamps the time until the next due point to
// [minLoopSleep, interval] so the loop neither spins nor oversleeps a
// cookie that shortened the schedule.
func (l *lifecycleLoop) sleepFor() time.Duration {
	interval := l.c.config.Lifecycle.RefreshInterval
	d := time.Until(l.dueAt())
	if d < minLoopSleep {
		return minLoopSleep
	}
	if d > interval {
		return interval
	}
	return d
}

// refreshChain runs one refresh and, on transient failure, retries with
// exponential backoff until the budget is spent. Terminal outcomes
// (session dead, fingerprint mismatch, password change required) stop
// the chain immediately; exhausting the budget forces a logout.
func (l *lifecycleLoop) refreshChain(trigger MetricID) {
	c := l.c
	ctx := l.ctx

	if err := c.checkActivityAnomaly(ctx); err != nil {
		return
	}
	c.metricInc(trigger)

	retry := c.config.Retry
	delay := retry.BaseDelay
	for attempt := 0; ; attempt++ {
		err := c.handleRefreshOutcome(ctx, c.coord.Refresh(ctx))
		if err == nil || isTerminalRefreshErr(err) || ctx.Err() != nil {
			return
		}

		if attempt >= retry.MaxAttempts {
			c.metricInc(MetricRetryExhausted)
			cause := fmt.Errorf("%w: last error: %v", ErrRetryBudgetExhausted, err)
			c.emitAudit(ctx, auditEventRetryExhausted, false, c.CurrentUser(), cause, func() map[string]string {
				return map[string]string{"flights": strconv.Itoa(attempt + 1)}
			})
			c.forceLogout(ctx, cause)
			return
		}

		if c.retrySleep(ctx, delay) != nil {
			return
		}

		delay *= 2
		if retry.MaxDelay > 0 && delay > retry.MaxDelay {
			delay = retry.MaxDelay
		}
	}
}

// sleepContext is the production retrySleep: a plain timer wait that
// aborts when ctx does.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// checkActivityAnomaly inspects the shared activity marker before a
// proactive refresh. A marker ahead of the local clock beyond the
// configured skew means some other party is writing this session's
// state; that is always audited and, when enforcement is on, ends the
// session.
func (c *Client) checkActivityAnomaly(ctx context.Context) error {
	cfg := c.config.Lifecycle
	if cfg.ActivitySkew <= 0 {
		return nil
	}

	raw, err := c.store.Get(ctx, state.KeyLastActivity)
	if err != nil {
		return nil
	}
	ts, err := state.DecodeTime(raw)
	if err != nil {
		return nil
	}

	ahead := time.Until(ts)
	if ahead <= cfg.ActivitySkew {
		return nil
	}

	c.metricInc(MetricActivityAnomaly)
	cause := fmt.Errorf("%w: marker %s ahead of local clock", ErrActivityAnomaly, ahead.Round(time.Second))
	c.emitAudit(ctx, auditEventActivityAnomaly, false, c.CurrentUser(), cause, func() map[string]string {
		return map[string]string{"marker": raw}
	})

	if !cfg.EnforceActivityAnomaly {
		log.Print("sessionkit: ", cause)
		return nil
	}
	c.forceLogout(ctx, cause)
	return cause
}
