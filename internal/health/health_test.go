package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func check(name string, critical bool, err error) Checker {
	return CheckFunc{
		ComponentName: name,
		IsCritical:    critical,
		Fn:            func(context.Context) error { return err },
	}
}

func TestAllHealthy(t *testing.T) {
	m := NewManager(time.Second)
	m.Register(check("a", true, nil))
	m.Register(check("b", false, nil))

	report := m.Run(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	require.Len(t, report.Components, 2)
	assert.Equal(t, StatusHealthy, report.Components["a"].Status)
}

func TestCriticalFailureIsUnhealthy(t *testing.T) {
	m := NewManager(time.Second)
	m.Register(check("store", true, errors.New("down")))
	m.Register(check("cache", false, nil))

	report := m.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "down", report.Components["store"].Error)
}

func TestNonCriticalFailureDegrades(t *testing.T) {
	m := NewManager(time.Second)
	m.Register(check("store", true, nil))
	m.Register(check("cache", false, errors.New("slow")))

	report := m.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
}

func TestCheckTimeout(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	m.Register(CheckFunc{
		ComponentName: "slow",
		IsCritical:    true,
		Fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	report := m.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "healthy", StatusHealthy.String())
	assert.Equal(t, "degraded", StatusDegraded.String())
	assert.Equal(t, "unhealthy", StatusUnhealthy.String())
}
