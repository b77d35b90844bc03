/**
 * Capture-Replay Demo.
 *
 * Replays a .pcap/.pcapng file through the analytics core and prints
 * the resulting samples, standing in for the live tunnel provider the
 * core is normally embedded in. Every real I/O concern (raw socket
 * access, the tunnel interface, policy decisions) lives outside this
 * module; this binary exists only to exercise the pipeline end to end
 * without one.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kleaSCM/tunnelscope/internal/capture"
	"github.com/kleaSCM/tunnelscope/internal/config"
	"github.com/kleaSCM/tunnelscope/internal/core"
	"github.com/kleaSCM/tunnelscope/internal/corelog"
)

func main() {
	capFile := flag.String("pcap", "", "path to a .pcap/.pcapng capture file to replay")
	configFile := flag.String("config", "", "path to a YAML configuration file (optional, defaults used otherwise)")
	quiet := flag.Bool("quiet", false, "suppress per-packet sample output; print only the final snapshot")
	flag.Parse()

	if *capFile == "" {
		fmt.Fprintln(os.Stderr, "usage: netscope -pcap capture.pcap [-config config.yaml] [-quiet]")
		os.Exit(2)
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}

	logger, err := corelog.New("info")
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync()

	c, err := core.NewCore(cfg, logger)
	if err != nil {
		log.Fatalf("initializing analytics core: %v", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Sugar().Warnw("error closing core", "error", err)
		}
	}()

	var packetCount int
	err = capture.Replay(*capFile, func(raw capture.RawPacket) error {
		sample, ok := c.OnPacket(raw.IPBytes, 0, raw.Direction, raw.Timestamp)
		if !ok {
			return nil
		}
		packetCount++
		if !*quiet {
			data, err := json.Marshal(sample)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		}
		return nil
	})
	if err != nil {
		log.Fatalf("replaying capture: %v", err)
	}

	snapshot := c.Snapshot()
	snapData, _ := json.MarshalIndent(snapshot, "", "  ")
	fmt.Fprintf(os.Stderr, "\nreplayed %d packets (%d tracked flows, %d active bursts, %d classifier cache entries)\n",
		packetCount, c.FlowCount(), c.BurstCount(), c.ClassifierCacheLen())
	fmt.Fprintln(os.Stderr, string(snapData))
}
