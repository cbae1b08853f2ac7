// Package metrics provides Prometheus instrumentation for a trap
// platform. Wrap any trap.Raw with Instrument to count traps per driver,
// subscribe/allow failures, upcall dispatches and yields.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Semihalf/libtock-go/trap"
)

// Metrics holds all Prometheus metrics for the trap boundary.
type Metrics struct {
	Commands   *prometheus.CounterVec
	Subscribes *prometheus.CounterVec
	Allows     *prometheus.CounterVec
	Errors     *prometheus.CounterVec
	Upcalls    prometheus.Counter
	Yields     prometheus.Counter
}

// New creates a metrics collector registered with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "libtock_commands_total",
				Help: "Total number of command traps",
			},
			[]string{"driver"},
		),
		Subscribes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "libtock_subscribes_total",
				Help: "Total number of subscribe traps, including clear-slot registrations",
			},
			[]string{"driver"},
		),
		Allows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "libtock_allows_total",
				Help: "Total number of allow traps, including reclaims",
			},
			[]string{"driver"},
		),
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "libtock_trap_errors_total",
				Help: "Non-zero subscribe/allow statuses (command statuses are driver-defined and not counted)",
			},
			[]string{"verb", "driver"},
		),
		Upcalls: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "libtock_upcalls_total",
				Help: "Total number of upcall dispatches",
			},
		),
		Yields: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "libtock_yields_total",
				Help: "Total number of yields",
			},
		),
	}
}

// Instrument wraps a platform so every trap is counted.
func (m *Metrics) Instrument(raw trap.Raw) trap.Raw {
	return &instrumented{raw: raw, metrics: m}
}

type instrumented struct {
	raw     trap.Raw
	metrics *Metrics
}

func driverLabel(driver trap.DriverNum) string {
	return strconv.FormatUint(uint64(driver), 10)
}

func (i *instrumented) Command(driver trap.DriverNum, cmd trap.CommandNum, arg1, arg2 uintptr) trap.ReturnCode {
	i.metrics.Commands.WithLabelValues(driverLabel(driver)).Inc()
	return i.raw.Command(driver, cmd, arg1, arg2)
}

func (i *instrumented) Command1(driver trap.DriverNum, cmd trap.CommandNum, arg uintptr) trap.ReturnCode {
	i.metrics.Commands.WithLabelValues(driverLabel(driver)).Inc()
	return i.raw.Command1(driver, cmd, arg)
}

func (i *instrumented) Subscribe(driver trap.DriverNum, sub trap.SubscribeNum, fn trap.Upcall, userdata uintptr) trap.ReturnCode {
	i.metrics.Subscribes.WithLabelValues(driverLabel(driver)).Inc()

	// The nil clear-slot sentinel must pass through untouched; only a
	// real registration gets the counting wrapper.
	wrapped := fn
	if fn != nil {
		upcalls := i.metrics.Upcalls
		wrapped = func(arg1, arg2, arg3, userdata uintptr) {
			upcalls.Inc()
			fn(arg1, arg2, arg3, userdata)
		}
	}

	rc := i.raw.Subscribe(driver, sub, wrapped, userdata)
	if !rc.Ok() {
		i.metrics.Errors.WithLabelValues("subscribe", driverLabel(driver)).Inc()
	}
	return rc
}

func (i *instrumented) Allow(driver trap.DriverNum, num trap.AllowNum, ptr *byte, length int) trap.ReturnCode {
	i.metrics.Allows.WithLabelValues(driverLabel(driver)).Inc()
	rc := i.raw.Allow(driver, num, ptr, length)
	if !rc.Ok() {
		i.metrics.Errors.WithLabelValues("allow", driverLabel(driver)).Inc()
	}
	return rc
}

func (i *instrumented) Yield() {
	i.metrics.Yields.Inc()
	i.raw.Yield()
}
