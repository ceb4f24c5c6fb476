package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/momentics/hioload-netmap/api"
	"github.com/momentics/hioload-netmap/control"
	"github.com/momentics/hioload-netmap/core/netmap"
	"github.com/momentics/hioload-netmap/facade"
	"github.com/momentics/hioload-netmap/reactor"
	"github.com/momentics/hioload-netmap/stream"
)

func errExit(err error) {
	fmt.Printf("Error: %s\n", err)
	os.Exit(1)
}

var (
	configFile  string
	iface       string
	devicePath  string
	logLevel    string
	linkCheck   bool
	metricsAddr string
	reactorCPU  int
)

var rootCmd = &cobra.Command{
	Use:   "netmapctl",
	Short: "Inspect and drive netmap interfaces",
}

// loadConfig merges the config file, if any, with command line flags.
func loadConfig(cmd *cobra.Command) (control.Config, error) {
	cfg := control.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = control.LoadConfig(configFile)
		if err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("iface") || cfg.Interface == "" {
		cfg.Interface = iface
	}
	if flags.Changed("device") {
		cfg.DevicePath = devicePath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("link-check") {
		cfg.LinkCheck = linkCheck
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if flags.Changed("cpu") {
		cfg.ReactorCPU = reactorCPU
	}
	return cfg, cfg.Validate()
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Register the interface and print its negotiated layout",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			errExit(err)
		}
		setLevel(cfg.LogLevel)
		if link, err := netmap.LookupLink(cfg.Interface); err == nil {
			fmt.Printf("link: %+v\n", link)
		} else {
			log.WithError(err).Warn("link lookup failed")
		}
		s, err := netmap.Open(cfg.Interface,
			netmap.WithDevicePath(cfg.DevicePath),
			netmap.WithLinkCheck(cfg.LinkCheck))
		if err != nil {
			errExit(err)
		}
		defer s.Close()
		fmt.Println(s)
		fmt.Println(s.Request())
		ifc, err := s.Interface()
		if err != nil {
			errExit(err)
		}
		fmt.Println(ifc)
		for _, id := range []api.RingID{api.TxRing(0), api.RxRing(0)} {
			r, err := s.Ring(id)
			if err != nil {
				errExit(err)
			}
			fmt.Printf("%s %s\n", id, r)
		}
	},
}

var (
	captureCount    uint64
	captureHex      bool
	captureRing     uint32
	captureInterval time.Duration
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Print packets arriving on a receive ring",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			errExit(err)
		}
		cfg.RxRings = []uint32{captureRing}
		cfg.TxRings = nil
		if captureInterval > 0 {
			if err := pollCapture(cfg); err != nil {
				errExit(err)
			}
			return
		}
		n, err := facade.New(cfg, facade.WithLogger(log.StandardLogger()))
		if err != nil {
			errExit(err)
		}
		defer n.Shutdown()
		rx, _ := n.Stream(api.RxRing(captureRing))
		task := facade.NewCapture(rx, captureCount, func(p *stream.Packet) error {
			printPacket(p.Ring(), p.Index(), p.Bytes())
			return nil
		})
		if err := runTask(n, task); err != nil {
			errExit(err)
		}
		log.WithField("packets", task.Seen()).Info("capture finished")
	},
}

// pollCapture syncs and drains the ring on a fixed interval without the
// reactor, printing "idle" when nothing arrived.
func pollCapture(cfg control.Config) error {
	setLevel(cfg.LogLevel)
	s, err := netmap.Open(cfg.Interface,
		netmap.WithDevicePath(cfg.DevicePath),
		netmap.WithLinkCheck(cfg.LinkCheck))
	if err != nil {
		return err
	}
	defer s.Close()
	id := api.RxRing(captureRing)
	r, err := s.Ring(id)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	tick := time.NewTicker(captureInterval)
	defer tick.Stop()
	var seen uint64
	for {
		if err := s.RxSync(); err != nil {
			return err
		}
		idx, ok := r.Next()
		if ok {
			seen++
			slot, err := r.Slot(idx)
			if err != nil {
				return err
			}
			buf, err := r.Buffer(slot.BufIndex())
			if err != nil {
				return err
			}
			n := int(slot.Len())
			if n > len(buf) {
				n = len(buf)
			}
			printPacket(id, idx, buf[:n])
		} else {
			fmt.Println("idle")
		}
		r.Reclaim()
		if captureCount > 0 && seen >= captureCount {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

func printPacket(id api.RingID, idx uint32, b []byte) {
	fmt.Printf("%s slot=%d len=%d\n", id, idx, len(b))
	if captureHex {
		fmt.Print(hex.Dump(b))
	}
}

var (
	reflectRx      uint32
	reflectTx      uint32
	reflectSwapMAC bool
)

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Send every received frame back out of a transmit ring",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			errExit(err)
		}
		cfg.RxRings = []uint32{reflectRx}
		cfg.TxRings = []uint32{reflectTx}
		n, err := facade.New(cfg, facade.WithLogger(log.StandardLogger()))
		if err != nil {
			errExit(err)
		}
		defer n.Shutdown()
		rx, _ := n.Stream(api.RxRing(reflectRx))
		tx, _ := n.Stream(api.TxRing(reflectTx))
		fn := facade.Copy
		if reflectSwapMAC {
			fn = swapMAC
		}
		task := facade.NewReflector(rx, tx, fn)
		if err := runTask(n, task); err != nil {
			errExit(err)
		}
		log.WithField("forwarded", task.Forwarded()).Info("reflect finished")
	},
}

// swapMAC copies the frame and exchanges the Ethernet source and
// destination addresses.
func swapMAC(in, out []byte) int {
	k := copy(out, in)
	if k >= 12 {
		var dst [6]byte
		copy(dst[:], out[0:6])
		copy(out[0:6], out[6:12])
		copy(out[6:12], dst[:])
	}
	return k
}

// runTask serves metrics if configured, spawns t and drives the reactor
// until t finishes or the process is interrupted.
func runTask(n *facade.Netmap, t reactor.Task) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := n.Config().GetSnapshot().MetricsAddr
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", n.Metrics().Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server failed")
			}
		}()
		defer srv.Close()
		log.WithField("addr", addr).Info("serving metrics")
	}

	h, err := n.Spawn(t)
	if err != nil {
		return err
	}
	if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	select {
	case <-h.Done():
		return h.Err()
	default:
		return nil
	}
}

func setLevel(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		errExit(err)
	}
	log.SetLevel(lvl)
}

func main() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML config file")
	pf.StringVarP(&iface, "iface", "i", "", "interface to register")
	pf.StringVar(&devicePath, "device", netmap.DefaultDevicePath, "netmap device node")
	pf.StringVar(&logLevel, "log-level", "info", "log level (error, warning, info, debug)")
	pf.BoolVar(&linkCheck, "link-check", false, "look the interface up over netlink before registering")

	for _, c := range []*cobra.Command{captureCmd, reflectCmd} {
		c.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
		c.Flags().IntVar(&reactorCPU, "cpu", -1, "pin the reactor thread to this CPU")
	}

	captureCmd.Flags().Uint64VarP(&captureCount, "count", "c", 0, "stop after this many packets")
	captureCmd.Flags().BoolVarP(&captureHex, "hex", "x", false, "hex dump packet contents")
	captureCmd.Flags().Uint32Var(&captureRing, "ring", 0, "receive ring index")
	captureCmd.Flags().DurationVar(&captureInterval, "interval", 0, "poll on this interval instead of waiting for the device")

	reflectCmd.Flags().Uint32Var(&reflectRx, "rx-ring", 0, "receive ring index")
	reflectCmd.Flags().Uint32Var(&reflectTx, "tx-ring", 0, "transmit ring index")
	reflectCmd.Flags().BoolVar(&reflectSwapMAC, "swap-mac", false, "swap Ethernet source and destination")

	rootCmd.AddCommand(infoCmd, captureCmd, reflectCmd)
	if err := rootCmd.Execute(); err != nil {
		errExit(err)
	}
}
