// vantage-emulator speaks the Vantage Pro2 console protocol over TCP so the
// driver and vproctl can be exercised without hardware. It answers wake
// requests, LOOP, GETTIME/SETTIME, EEBRD, VER/NVER/RXCHECK, HILOWS, and
// serves a synthetic archive history through the DMPAFT paging protocol.
package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/chrissnell/vantagepro2/pkg/crc16"
	"github.com/chrissnell/vantagepro2/pkg/vantage"
)

const (
	ack    = "\x06"
	nack   = "\x21"
	esc    = 0x1B
	cancel = 0x18
)

type consoleEmulator struct {
	mu          sync.Mutex
	clockOffset time.Duration
	interval    int // archive period, minutes
	historyFrom time.Time
	badCRCRate  float64
	rnd         *rand.Rand
}

func newConsoleEmulator(interval, historyHours int, badCRCRate float64) *consoleEmulator {
	return &consoleEmulator{
		interval:    interval,
		historyFrom: time.Now().Add(-time.Duration(historyHours) * time.Hour),
		badCRCRate:  badCRCRate,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (e *consoleEmulator) intn(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rnd.Intn(n)
}

func (e *consoleEmulator) now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Now().Add(e.clockOffset)
}

func (e *consoleEmulator) setClock(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clockOffset = time.Until(t)
}

// maybeCorrupt flips a byte of the frame's CRC at the configured rate.
func (e *consoleEmulator) maybeCorrupt(frame []byte) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.badCRCRate > 0 && e.rnd.Float64() < e.badCRCRate {
		frame[len(frame)-1] ^= 0xFF
		log.Printf("FLAKY: corrupted CRC on a %d-byte frame", len(frame))
	}
	return frame
}

// loopFrame builds one 99-byte LOOP packet with plausible wandering values.
func (e *consoleEmulator) loopFrame() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	data := make([]byte, vantage.LoopFrameSize-2)
	copy(data, "LOO")
	data[4] = 0                                                                // packet type
	binary.LittleEndian.PutUint16(data[7:], uint16(29800+e.rnd.Intn(400)))     // barometer
	binary.LittleEndian.PutUint16(data[9:], uint16(680+e.rnd.Intn(50)))        // inside temp
	data[11] = uint8(35 + e.rnd.Intn(20))                                      // inside humidity
	binary.LittleEndian.PutUint16(data[12:], uint16(400+e.rnd.Intn(500)))      // outside temp
	data[14] = uint8(e.rnd.Intn(25))                                           // wind speed
	data[15] = uint8(e.rnd.Intn(20))                                           // 10-min avg
	binary.LittleEndian.PutUint16(data[16:], uint16(e.rnd.Intn(360)))          // wind dir
	data[33] = uint8(40 + e.rnd.Intn(50))                                      // outside humidity
	binary.LittleEndian.PutUint16(data[44:], uint16(e.rnd.Intn(900)))          // solar
	binary.LittleEndian.PutUint16(data[87:], 512)                              // battery, 3.00 V
	binary.LittleEndian.PutUint16(data[91:], 617)                              // sunrise
	binary.LittleEndian.PutUint16(data[93:], 1858)                             // sunset
	data[95] = '\n'
	data[96] = '\r'
	return crc16.WithChecksum(data)
}

// hiLowFrame builds a 438-byte HILOWS response. Only the commonly read
// fields are populated; the rest decode as zeros.
func (e *consoleEmulator) hiLowFrame() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	data := make([]byte, vantage.HiLowFrameSize-2)
	binary.LittleEndian.PutUint16(data[0:], 29750)  // day low barometer
	binary.LittleEndian.PutUint16(data[2:], 30180)  // day high barometer
	binary.LittleEndian.PutUint16(data[12:], 415)   // low barometer at 04:15
	binary.LittleEndian.PutUint16(data[14:], 1330)  // high barometer at 13:30
	data[16] = uint8(15 + e.rnd.Intn(25))           // day high wind speed
	binary.LittleEndian.PutUint16(data[17:], 1242)  // at 12:42
	binary.LittleEndian.PutUint16(data[21:], 741)   // day high inside temp
	binary.LittleEndian.PutUint16(data[47:], 382)   // day low outside temp
	binary.LittleEndian.PutUint16(data[49:], 671)   // day high outside temp
	binary.LittleEndian.PutUint16(data[116:], 125)  // day high rain rate
	return crc16.WithChecksum(data)
}

// archiveSlot packs one 52-byte Rev B archive record for the given
// timestamp.
func (e *consoleEmulator) archiveSlot(ts time.Time) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot := make([]byte, vantage.ArchiveRecordSize)
	date := uint16(ts.Day()) | uint16(ts.Month())<<5 | uint16(ts.Year()-2000)<<9
	binary.LittleEndian.PutUint16(slot[0:], date)
	binary.LittleEndian.PutUint16(slot[2:], uint16(ts.Hour()*100+ts.Minute()))

	out := uint16(450 + e.rnd.Intn(300))
	binary.LittleEndian.PutUint16(slot[4:], out)                             // outside temp
	binary.LittleEndian.PutUint16(slot[6:], out+10)                          // high
	binary.LittleEndian.PutUint16(slot[8:], out-10)                          // low
	binary.LittleEndian.PutUint16(slot[14:], uint16(29800+e.rnd.Intn(400))) // barometer
	binary.LittleEndian.PutUint16(slot[16:], uint16(e.rnd.Intn(800)))       // solar
	binary.LittleEndian.PutUint16(slot[20:], uint16(700+e.rnd.Intn(50)))    // inside temp
	slot[22] = uint8(35 + e.rnd.Intn(20))                                   // inside humidity
	slot[23] = uint8(40 + e.rnd.Intn(50))                                   // outside humidity
	slot[24] = uint8(e.rnd.Intn(20))                                        // wind avg
	slot[25] = uint8(e.rnd.Intn(30))                                        // wind high
	slot[42] = 0 // Rev B record type
	return slot
}

// unusedSlot is an archive slot that was never written: all ones.
func unusedSlot() []byte {
	slot := make([]byte, vantage.ArchiveRecordSize)
	for i := range slot {
		slot[i] = 0xFF
	}
	return slot
}

// archivesAfter returns the timestamps of every stored record newer than
// the stamp, oldest first.
func (e *consoleEmulator) archivesAfter(stamp time.Time) []time.Time {
	e.mu.Lock()
	interval := time.Duration(e.interval) * time.Minute
	from := e.historyFrom
	e.mu.Unlock()

	var out []time.Time
	for ts := from.Truncate(interval); !ts.After(e.now()); ts = ts.Add(interval) {
		if ts.After(stamp) {
			out = append(out, ts)
		}
	}
	return out
}

// dumpPages packs the matching records into 267-byte DMPAFT pages, five
// slots per page, padding the final page with unused slots.
func (e *consoleEmulator) dumpPages(stamp time.Time) [][]byte {
	records := e.archivesAfter(stamp)

	var pages [][]byte
	for i := 0; i < len(records); i += 5 {
		data := make([]byte, vantage.DmpPageSize-2)
		data[0] = uint8(len(pages) % 256)
		for j := 0; j < 5; j++ {
			slot := unusedSlot()
			if i+j < len(records) {
				slot = e.archiveSlot(records[i+j])
			}
			copy(data[1+j*vantage.ArchiveRecordSize:], slot)
		}
		pages = append(pages, crc16.WithChecksum(data))
	}
	return pages
}

func handleConnection(conn net.Conn, emulator *consoleEmulator) {
	defer conn.Close()

	log.Printf("New console connection from %s", conn.RemoteAddr())
	r := bufio.NewReader(conn)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				log.Printf("Connection error: %v", err)
			}
			break
		}
		command := strings.TrimRight(line, "\r\n")
		log.Printf("Received command: %q", command)

		switch {
		case command == "":
			// Wake request.
			conn.Write([]byte("\n\r"))

		case command == "TEST":
			conn.Write([]byte("\n\rTEST\n\r"))

		case strings.HasPrefix(command, "LOOP "):
			n, err := strconv.Atoi(strings.TrimPrefix(command, "LOOP "))
			if err != nil || n <= 0 || n > 2048 {
				log.Printf("Invalid LOOP packet count in %q", command)
				conn.Write([]byte(nack))
				continue
			}
			conn.Write([]byte(ack))
			for i := 0; i < n; i++ {
				if _, err := conn.Write(emulator.maybeCorrupt(emulator.loopFrame())); err != nil {
					log.Printf("Error sending LOOP packet %d/%d: %v", i+1, n, err)
					return
				}
				if n > 1 {
					time.Sleep(2 * time.Second)
				}
			}
			log.Printf("Sent %d LOOP packet(s)", n)

		case command == "GETTIME":
			conn.Write([]byte(ack))
			conn.Write(emulator.maybeCorrupt(vantage.PackDatetime(emulator.now())))

		case command == "SETTIME":
			conn.Write([]byte(ack))
			frame := make([]byte, 8)
			if _, err := io.ReadFull(r, frame); err != nil {
				log.Printf("Short SETTIME frame: %v", err)
				return
			}
			if !crc16.Verify(frame) {
				log.Printf("SETTIME frame failed CRC")
				conn.Write([]byte(nack))
				continue
			}
			t, err := vantage.UnpackDatetime(frame)
			if err != nil {
				conn.Write([]byte(nack))
				continue
			}
			emulator.setClock(t)
			conn.Write([]byte(ack))
			log.Printf("Clock set to %s", t.Format("2006-01-02 15:04:05"))

		case strings.HasPrefix(command, "EEBRD "):
			handleEEBRD(conn, emulator, command)

		case command == "NVER":
			conn.Write([]byte("\n\rOK\n\r"))
			conn.Write([]byte("1.90\n\r"))

		case command == "VER":
			conn.Write([]byte("\n\rOK\n\r"))
			conn.Write([]byte("Dec 11 2012\n\r"))

		case command == "RXCHECK":
			conn.Write([]byte("\n\rOK\n\r"))
			fmt.Fprintf(conn, "%d %d %d %d %d\n\r",
				20000+emulator.intn(5000), emulator.intn(50), emulator.intn(5),
				2000+emulator.intn(2000), emulator.intn(200))

		case command == "HILOWS":
			conn.Write([]byte(ack))
			conn.Write(emulator.maybeCorrupt(emulator.hiLowFrame()))

		case command == "DMPAFT":
			if !handleDumpAfter(conn, r, emulator) {
				return
			}

		default:
			log.Printf("Unknown command: %q", command)
			conn.Write([]byte(nack))
		}
	}

	log.Printf("Console connection from %s closed", conn.RemoteAddr())
}

func handleEEBRD(conn net.Conn, emulator *consoleEmulator, command string) {
	parts := strings.Fields(command)
	if len(parts) != 3 {
		conn.Write([]byte(nack))
		return
	}

	var payload []byte
	switch parts[1] {
	case "2D": // archive period, minutes
		payload = []byte{byte(emulator.interval)}
	case "14": // timezone: GMT offset in hours*100, then localtime flag
		payload = []byte{0x2C, 0x01, 0x00}
	default:
		log.Printf("EEBRD of unmapped address %s", parts[1])
		conn.Write([]byte(nack))
		return
	}

	conn.Write([]byte(ack))
	conn.Write(emulator.maybeCorrupt(crc16.WithChecksum(payload)))
}

// handleDumpAfter runs one DMPAFT exchange. Returns false when the
// connection should be torn down.
func handleDumpAfter(conn net.Conn, r *bufio.Reader, emulator *consoleEmulator) bool {
	conn.Write([]byte(ack))

	stampFrame := make([]byte, 6)
	if _, err := io.ReadFull(r, stampFrame); err != nil {
		log.Printf("Short DMPAFT stamp: %v", err)
		return false
	}
	if !crc16.Verify(stampFrame) {
		log.Printf("DMPAFT stamp failed CRC")
		conn.Write([]byte(nack))
		return true
	}
	stamp, _ := vantage.UnpackDmpDateTime(
		binary.LittleEndian.Uint16(stampFrame[0:2]),
		binary.LittleEndian.Uint16(stampFrame[2:4]))
	conn.Write([]byte(ack))

	pages := emulator.dumpPages(stamp)
	header := make([]byte, 4)
	binary.LittleEndian.PutUint16(header[0:], uint16(len(pages)))
	conn.Write(crc16.WithChecksum(header))
	log.Printf("DMPAFT after %s: %d page(s)", stamp.Format("2006-01-02 15:04"), len(pages))

	for i := 0; i < len(pages); {
		ctl, err := r.ReadByte()
		if err != nil {
			log.Printf("DMPAFT control read failed: %v", err)
			return false
		}
		switch ctl {
		case ack[0]:
		case nack[0]:
			// Resend the page the client just rejected.
			if i > 0 {
				i--
			}
		case esc, cancel:
			log.Printf("DMPAFT cancelled by client after %d page(s)", i)
			return true
		default:
			log.Printf("Unexpected DMPAFT control byte 0x%02X", ctl)
			return true
		}
		if _, err := conn.Write(emulator.maybeCorrupt(append([]byte(nil), pages[i]...))); err != nil {
			log.Printf("Error sending page %d/%d: %v", i+1, len(pages), err)
			return false
		}
		i++
	}

	// The last page still gets a closing control byte.
	if ctl, err := r.ReadByte(); err == nil && ctl != ack[0] && ctl != esc {
		log.Printf("Unexpected final DMPAFT control byte 0x%02X", ctl)
	}
	return true
}

func main() {
	var (
		port         = flag.Int("port", 22222, "Port to listen on")
		interval     = flag.Int("interval", 30, "Archive period in minutes")
		historyHours = flag.Int("history", 48, "Hours of synthetic archive history to serve")
		badCRCRate   = flag.Float64("bad-crc-rate", 0, "Probability of corrupting a frame CRC (0.0-1.0)")
	)
	flag.Parse()

	log.Printf("Starting Vantage Pro2 console emulator on port %d", *port)
	log.Printf("Archive period %d minutes, %d hours of history", *interval, *historyHours)
	if *badCRCRate > 0 {
		log.Printf("FLAKY MODE: corrupting %.1f%% of frame CRCs", *badCRCRate*100)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	defer listener.Close()

	emulator := newConsoleEmulator(*interval, *historyHours, *badCRCRate)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received, stopping server...")
		stop()
		listener.Close()
	}()

	log.Printf("Connect vproctl with: -addr localhost:%d", *port)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Println("Server stopped")
				return
			}
			log.Printf("Failed to accept connection: %v", err)
			continue
		}
		go handleConnection(conn, emulator)
	}
}
