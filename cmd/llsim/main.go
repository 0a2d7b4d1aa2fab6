package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"llsched/internal/radiosim"
	"llsched/internal/rat"
	"llsched/internal/sched"
	"llsched/internal/trace"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML configuration")
	steps := flag.Int("steps", 200, "number of radio interrupts to simulate")
	csvPath := flag.String("csv", "", "write events to this CSV file")
	dbPath := flag.String("db", "", "store events in this SQLite database")
	drop := flag.Int("drop", 0, "lose sync on every n-th receive event (0 = never)")
	quiet := flag.Bool("quiet", false, "do not print events")
	verbose := flag.Bool("v", false, "log scheduler warnings to stderr")
	flag.Parse()

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(os.Stderr, "llsim: ", log.LstdFlags|log.Lmicroseconds)
	}

	// Read the configuration
	cfg := sched.Load(*configPath)
	fmt.Printf("Loaded config: %+v\n", cfg)

	if err := run(cfg, *steps, *csvPath, *dbPath, *drop, *quiet, logger); err != nil {
		fmt.Fprintln(os.Stderr, "llsim:", err)
		os.Exit(1)
	}
}

func run(cfg sched.Config, steps int, csvPath, dbPath string, drop int, quiet bool, logger *log.Logger) error {
	filter, err := cfg.Whitelist.BuildFilter()
	if err != nil {
		return err
	}

	var recorders []sched.Recorder
	if !quiet {
		recorders = append(recorders, trace.NewConsole(os.Stdout))
	}
	if csvPath != "" {
		c, err := trace.NewCSV(csvPath)
		if err != nil {
			return err
		}
		defer c.Close()
		recorders = append(recorders, c)
	}
	var store *trace.Store
	if dbPath != "" {
		store, err = trace.OpenStore(dbPath, time.Now().UTC().Format(time.RFC3339), logger)
		if err != nil {
			return err
		}
		defer store.Close()
		recorders = append(recorders, store)
	}

	clock := rat.NewSimCounter(0)
	radio := radiosim.New(clock, radiosim.DropEvery(drop, nil))
	s := sched.New(cfg, clock, radio, radio,
		sched.WithLogger(logger),
		sched.WithFilter(filter),
		sched.WithRecorder(trace.Multi(recorders...)),
	)

	if err := populate(s, cfg, clock.Now()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	done := radio.Run(ctx, s, steps)

	st := s.Stats()
	fmt.Printf("\n%d steps, RAT %d (%v)\n", done, uint32(clock.Now()), rat.Ticks(clock.Now()).Duration())
	fmt.Printf("scheduled=%d dispatched=%d completed=%d skipped=%d slips=%d denied=%d cancelled=%d dropped=%d\n",
		st.Scheduled, st.Dispatched, st.Completed, st.Skipped, st.Slips, st.Denied, st.Cancelled, st.Dropped)

	if store != nil {
		if err := store.Flush(); err != nil {
			return err
		}
		counts, err := store.KindCounts()
		if err != nil {
			return err
		}
		fmt.Printf("stored events: %v\n", counts)
	}
	return nil
}

// populate starts an advertiser, a scanner and as many master connections
// as the configuration admits.
func populate(s *sched.Scheduler, cfg sched.Config, now rat.Time) error {
	lead := rat.Microseconds(1000)

	adv, err := s.Allocate(sched.RoleAdvertiser)
	if err != nil {
		return err
	}
	if err := s.Configure(adv, &sched.AdvParams{PDU: []byte{0x02, 0x01, 0x06}}); err != nil {
		return err
	}
	if err := s.SetTiming(adv, now.Add(lead), rat.Microseconds(400), rat.Microseconds(100_000)); err != nil {
		return err
	}

	scan, err := s.Allocate(sched.RoleScanner)
	if err != nil {
		return err
	}
	if err := s.Configure(scan, &sched.ScanParams{}); err != nil {
		return err
	}
	if err := s.SetTiming(scan, now.Add(2*lead), rat.Microseconds(5_000), rat.Microseconds(50_000)); err != nil {
		return err
	}

	interval := rat.Microseconds(int64(cfg.MinConnIntervalUS))
	for i := 0; ; i++ {
		h, err := s.Allocate(sched.RoleMaster)
		if errors.Is(err, sched.ErrPoolExhausted) || errors.Is(err, sched.ErrSlotCapacity) {
			fmt.Printf("%d connections admitted: %v\n", i, err)
			return nil
		}
		if err != nil {
			return err
		}
		conn := &sched.ConnParams{
			AccessAddress: 0x50654A00 + uint32(i)*0x1357,
			CRCInit:       0x555555,
			HopIncrement:  uint8(5 + i%12),
			PeerSCA:       0,
		}
		if err := s.Configure(h, conn); err != nil {
			return err
		}
		start := now.Add(4*lead + rat.Slots(i*cfg.SlotsPerMaster))
		if err := s.SetTiming(h, start, rat.Slots(2), interval); err != nil {
			return err
		}
	}
}
