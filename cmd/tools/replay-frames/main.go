// replay-frames resends a recorded detector feed to a running engine.
//
// Two input formats:
//   - .oslog files written by the engine's -record flag (or the
//     source.Recorder API): JSON-lines with capture timestamps.
//   - pcap captures of the live detector UDP stream: payloads of UDP
//     packets on the detector port are resent verbatim.
//
// Pacing reproduces original inter-message gaps unless -no-pace is set;
// -speed scales them.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/overlay.studio/internal/source"
)

var (
	target  = flag.String("target", "127.0.0.1:7788", "UDP address of the engine's detector feed")
	oslog   = flag.String("oslog", "", "Path to an .oslog feed recording")
	pcapArg = flag.String("pcap", "", "Path to a pcap capture of the detector stream")
	port    = flag.Int("port", 7788, "Detector UDP port to filter in pcap mode")
	speed   = flag.Float64("speed", 1.0, "Pacing multiplier (2 = twice as fast)")
	noPace  = flag.Bool("no-pace", false, "Send messages back to back")
)

func main() {
	flag.Parse()
	if (*oslog == "") == (*pcapArg == "") {
		log.Fatal("exactly one of -oslog or -pcap is required")
	}
	if *speed <= 0 {
		*speed = 1
	}

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatalf("dial %s: %v", *target, err)
	}
	defer conn.Close()

	var sent int
	if *oslog != "" {
		sent, err = replayLog(conn, *oslog)
	} else {
		sent, err = replayPcap(conn, *pcapArg)
	}
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	log.Printf("replayed %d messages to %s", sent, *target)
}

// replayLog streams an .oslog recording, pacing on capture timestamps.
func replayLog(conn net.Conn, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	if !sc.Scan() {
		return 0, fmt.Errorf("log missing header")
	}
	var hdr source.LogHeader
	if err := json.Unmarshal(sc.Bytes(), &hdr); err != nil {
		return 0, fmt.Errorf("parse header: %w", err)
	}
	log.Printf("replaying log v%s captured %s", hdr.Version, time.UnixMilli(hdr.CreatedMs).Format(time.RFC3339))

	sent := 0
	var prevMs int64
	for sc.Scan() {
		var entry struct {
			CapturedMs int64           `json:"captured_ms"`
			Message    json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return sent, fmt.Errorf("parse entry %d: %w", sent+1, err)
		}
		pause(entry.CapturedMs, &prevMs)
		if _, err := conn.Write(entry.Message); err != nil {
			return sent, fmt.Errorf("send: %w", err)
		}
		sent++
	}
	return sent, sc.Err()
}

// replayPcap extracts UDP payloads on the detector port from a capture
// and resends them, pacing on packet timestamps.
func replayPcap(conn net.Conn, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("open pcap: %w", err)
	}

	sent := 0
	var prevMs int64
	for {
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sent, nil
			}
			return sent, fmt.Errorf("read packet: %w", err)
		}

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if int(udp.DstPort) != *port || len(udp.Payload) == 0 {
			continue
		}

		pause(ci.Timestamp.UnixMilli(), &prevMs)
		if _, err := conn.Write(udp.Payload); err != nil {
			return sent, fmt.Errorf("send: %w", err)
		}
		sent++
	}
}

// pause sleeps out the scaled gap between the previous and current
// capture timestamps.
func pause(nowMs int64, prevMs *int64) {
	if !*noPace && *prevMs > 0 && nowMs > *prevMs {
		time.Sleep(time.Duration(float64(nowMs-*prevMs) / *speed) * time.Millisecond)
	}
	*prevMs = nowMs
}
