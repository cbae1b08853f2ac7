// Command hosted-demo runs the syscall layer against the in-process
// hosted kernel: it registers a tick driver, subscribes to its events,
// shares a buffer the driver stamps on every tick, and yields until the
// requested number of ticks has been delivered.
package main

import (
	"encoding/binary"
	"flag"
	"log"
	"time"

	"github.com/Semihalf/libtock-go/platform/hosted"
	"github.com/Semihalf/libtock-go/syscalls"
	"github.com/Semihalf/libtock-go/trap"
)

const (
	tickDriver    trap.DriverNum    = 1
	tickSubscribe trap.SubscribeNum = 0
	tickAllow     trap.AllowNum     = 0
)

type tickPrinter struct {
	seen int
}

func (p *tickPrinter) Upcall(arg1, arg2, arg3 uintptr) {
	p.seen++
	log.Printf("tick %d (event args: %d %d %d)", p.seen, arg1, arg2, arg3)
}

func main() {
	ticks := flag.Int("ticks", 5, "Number of tick events to wait for")
	interval := flag.Duration("interval", 200*time.Millisecond, "Tick interval")
	trace := flag.Bool("trace", false, "Trace every trap at debug level")
	flag.Parse()

	cfg := hosted.LoadConfigOrDefault()
	if *trace {
		cfg.Trace = true
		cfg.LogLevel = "debug"
	}

	kernel, err := hosted.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create hosted kernel: %v", err)
	}
	kernel.RegisterDriver(tickDriver, &hosted.StubDriver{})

	sys := syscalls.New(kernel)

	printer := &tickPrinter{}
	sub, err := syscalls.Subscribe(sys, tickDriver, tickSubscribe, printer)
	if err != nil {
		log.Fatalf("Subscribe failed: %v", err)
	}

	shm, err := sys.Allow(tickDriver, tickAllow, make([]byte, 8))
	if err != nil {
		log.Fatalf("Allow failed: %v", err)
	}

	// The driver side: stamp the shared buffer and deliver an event on
	// every tick.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		n := uintptr(0)
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				n++
				if region, ok := kernel.AllowedRegion(tickDriver, tickAllow); ok {
					binary.LittleEndian.PutUint64(region, uint64(n))
				}
				if err := kernel.Deliver(tickDriver, tickSubscribe, n, 0, 0); err != nil {
					log.Printf("Dropped tick %d: %v", n, err)
				}
			}
		}
	}()

	for printer.seen < *ticks {
		sys.Yield()
	}
	close(stop)

	buf, rc := shm.Reclaim()
	if !rc.Ok() {
		log.Printf("Reclaim status: %v", rc)
	}
	log.Printf("Last stamped tick in reclaimed buffer: %d", binary.LittleEndian.Uint64(buf))

	if rc := sub.Unsubscribe(); !rc.Ok() {
		log.Printf("Unsubscribe status: %v", rc)
	}
}
