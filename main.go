package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/vehicle.gate/internal/api"
	"github.com/banshee-data/vehicle.gate/internal/config"
	"github.com/banshee-data/vehicle.gate/internal/db"
	"github.com/banshee-data/vehicle.gate/internal/estop"
	"github.com/banshee-data/vehicle.gate/internal/gate"
	"github.com/banshee-data/vehicle.gate/internal/ingest"
	"github.com/banshee-data/vehicle.gate/internal/monitor"
	"github.com/banshee-data/vehicle.gate/internal/timeutil"
	"github.com/banshee-data/vehicle.gate/internal/wallmarker"
)

var (
	devMode     = flag.Bool("dev", false, "Run in dev mode (mock emergency stop monitor)")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	configPath  = flag.String("config", config.DefaultConfigPath, "Gate configuration file")
	dbFile      = flag.String("db", "gate.db", "Audit trail database file")
	inputListen = flag.String("input-listen", ":9870", "UDP address for input feeds")
	emitAddr    = flag.String("emit", "127.0.0.1:9871", "UDP address commands are emitted to")
	markerAddr  = flag.String("markers", "127.0.0.1:9872", "UDP address wall markers are published to")
	estopPort   = flag.String("estop-port", "/dev/ttySC1", "Emergency stop monitor serial port")
	speedUnits  = flag.String("units", "mps", "Speed units for API responses (mps, mph, kmph)")
	pcapFile    = flag.String("pcap", "", "Replay input from a PCAP capture instead of listening")
	plotDir     = flag.String("plot-limits", "", "Write limit profile plots to this directory and exit")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := config.LoadGateConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || *configPath == config.DefaultConfigPath {
			log.Printf("config %s not loadable (%v); using built-in defaults", *configPath, err)
			cfg = config.EmptyGateConfig()
		} else {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	limits, err := cfg.BuildFilterLimits()
	if err != nil {
		log.Fatalf("invalid limit tables: %v", err)
	}

	if *plotDir != "" {
		if err := monitor.SaveLimitProfiles(limits, *plotDir); err != nil {
			log.Fatalf("failed to plot limits: %v", err)
		}
		log.Printf("limit profiles written to %s", *plotDir)
		return
	}

	var mux estop.MuxInterface
	if *devMode {
		mux = estop.NewMockMux(cfg.GetHeartbeatTimeout() / 3)
	} else {
		m, err := estop.NewSerialMux(*estopPort, estop.PortOptions{})
		if err != nil {
			log.Fatalf("failed to open emergency stop monitor: %v", err)
		}
		mux = m
	}
	defer mux.Close()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	runID := uuid.NewString()
	cfgJSON, _ := json.Marshal(cfg)
	if err := database.BeginRun(runID, string(cfgJSON)); err != nil {
		log.Fatalf("failed to record run: %v", err)
	}
	log.Printf("gate run %s", runID)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The tick writes through a buffered channel; sqlite latency never
	// stalls the control loop.
	tickRecords := make(chan db.TickRecord, 256)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case rec := <-tickRecords:
				if err := database.RecordTick(rec); err != nil {
					log.Printf("failed to record tick: %v", err)
				}
			case <-ctx.Done():
				log.Print("tick recorder terminated")
				return
			}
		}
	}()
	dbEmitter := gate.EmitterFunc(func(out gate.TickOutput) {
		select {
		case tickRecords <- db.TickRecord{
			RunID:        runID,
			Tick:         out.Tick,
			Mode:         out.Mode.String(),
			Engaged:      out.Engaged,
			Override:     out.Override,
			MrmState:     out.Watchdog.String(),
			RawSteering:  out.Raw.SteeringAngle,
			RawSpeed:     out.Raw.Speed,
			RawAccel:     out.Raw.Acceleration,
			OutSteering:  out.Control.SteeringAngle,
			OutSpeed:     out.Control.Speed,
			OutAccel:     out.Control.Acceleration,
			VehicleSpeed: out.Speed,
		}:
		default:
		}
	})

	udpEmitter, err := ingest.NewUDPEmitter(*emitAddr, time.Minute)
	if err != nil {
		log.Fatalf("failed to create command emitter: %v", err)
	}
	defer udpEmitter.Close()
	udpEmitter.Start(ctx)

	history := monitor.NewHistory(4096)

	walls := monitor.NewStopWallPublisher(wallmarker.Pose{}, 0, newMarkerPublisher(*markerAddr))

	controller, err := gate.NewController(gate.ControllerConfig{
		TickInterval: cfg.GetTickInterval(),
		Limits:       limits,
		Watchdog:     cfg.BuildWatchdogConfig(),
	}, timeutil.RealClock{}, gate.MultiEmitter{udpEmitter, history, walls, dbEmitter},
		func(from, to gate.MrmState, reason string, at time.Time) {
			if err := database.RecordEvent(runID, "mrm_transition", from.String()+" -> "+to.String()+": "+reason); err != nil {
				log.Printf("failed to record transition: %v", err)
			}
		})
	if err != nil {
		log.Fatalf("failed to build controller: %v", err)
	}

	// serial monitor routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("emergency stop monitor failed: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// heartbeat/estop subscriber routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := mux.Subscribe()
		defer mux.Unsubscribe(id)
		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				msg, err := estop.ParseLine(line)
				if err != nil {
					log.Printf("bad monitor line: %v", err)
					continue
				}
				switch msg.Kind {
				case estop.KindHeartbeat:
					controller.HeartbeatSeen(time.Now())
				case estop.KindEstop:
					log.Printf("emergency stop requested: %s", msg.Reason)
					controller.UpdateUpstreamMrm(gate.UpstreamMrmState{
						Stamp:    time.Now(),
						State:    gate.MrmOperating,
						Behavior: gate.MrmBehaviorEmergencyStop,
					})
					if err := database.RecordEvent(runID, "estop", msg.Reason); err != nil {
						log.Printf("failed to record estop event: %v", err)
					}
					if err := mux.SendCommand(estop.CommandAck); err != nil {
						log.Printf("failed to ack estop: %v", err)
					}
				}
			case <-ctx.Done():
				log.Print("subscribe routine terminated")
				return
			}
		}
	}()

	// control loop routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := controller.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("control loop failed: %v", err)
		}
		log.Print("control loop terminated")
	}()

	// input routine: live UDP or pcap replay
	listener := ingest.NewUDPListener(ingest.UDPListenerConfig{
		Address: *inputListen,
		RcvBuf:  1 << 20,
		Sink:    controller,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if *pcapFile != "" {
			if err := ingest.ReplayPCAPFile(ctx, *pcapFile, udpPortOf(*inputListen), listener); err != nil && err != context.Canceled {
				log.Printf("pcap replay failed: %v", err)
			}
			return
		}
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("input listener failed: %v", err)
		}
	}()

	// HTTP server routine
	wg.Add(1)
	go func() {
		defer wg.Done()

		httpMux := http.NewServeMux()

		// admin debugging routes (accessible only in dev mode or over a
		// private network)
		database.AttachAdminRoutes(httpMux)
		mux.AttachAdminRoutes(httpMux)
		history.AttachDebugRoutes(httpMux)

		apiServer := api.NewServer(controller, database, runID, *speedUnits)
		for _, route := range []string{"/api/", "/healthz"} {
			httpMux.Handle(route, apiServer.ServeMux())
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(httpMux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// newMarkerPublisher returns a publish func sending marker batches as
// JSON datagrams, or nil when the address cannot be dialed.
func newMarkerPublisher(address string) monitor.PublishFunc {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		log.Printf("marker publishing disabled: %v", err)
		return nil
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		log.Printf("marker publishing disabled: %v", err)
		return nil
	}
	return func(markers []wallmarker.Marker) {
		data, err := json.Marshal(markers)
		if err != nil {
			return
		}
		conn.Write(data)
	}
}

// udpPortOf extracts the numeric port from a listen address for the pcap
// BPF filter.
func udpPortOf(address string) int {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return 0
	}
	port, err := net.LookupPort("udp", portStr)
	if err != nil {
		return 0
	}
	return port
}
