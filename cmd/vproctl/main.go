// vproctl talks to a Davis Vantage Pro2 console over a serial port or a
// serial-over-TCP bridge: read the clock, pull the current conditions and
// hi/low extrema, and export the archive memory as CSV.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/chrissnell/vantagepro2/internal/log"
	"github.com/chrissnell/vantagepro2/pkg/config"
	"github.com/chrissnell/vantagepro2/pkg/vantage"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

const usage = `usage: vproctl [flags] <action>

Actions:
  current     print the current conditions (LOOP packet)
  hilows      print the daily/monthly/yearly extrema
  archives    dump archive records as CSV to stdout (-start, -stop)
  gettime     print the console clock
  settime     set the console clock to this host's clock
  info        print firmware version, date, timezone and receiver stats
`

func main() {
	cfgFile := flag.String("config", "", "Path to a YAML configuration file")
	station := flag.String("station", "", "Station name from the configuration file")
	device := flag.String("serial", "", "Serial device of the console (e.g. /dev/ttyUSB0)")
	baud := flag.Int("baud", 19200, "Serial baud rate")
	addr := flag.String("addr", "", "host:port of a serial-over-TCP bridge")
	start := flag.String("start", "", "Archive dump start (2006-01-02 15:04), exclusive")
	stop := flag.String("stop", "", "Archive dump stop (2006-01-02 15:04), inclusive")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("vproctl %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	action := flag.Arg(0)

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	conn, err := connect(*cfgFile, *station, *device, *baud, *addr)
	if err != nil {
		log.Fatalf("Failed to connect to console: %v", err)
	}
	defer conn.Close()

	if err := run(conn, action, *start, *stop); err != nil {
		log.Fatalf("%s: %v", action, err)
	}
}

// connect opens the console transport. Explicit -serial/-addr flags win;
// otherwise the station is looked up in the configuration file.
func connect(cfgFile, station, device string, baud int, addr string) (*vantage.Conn, error) {
	logger := log.GetSugaredLogger()

	switch {
	case device != "":
		rwc, err := vantage.OpenSerial(device, baud)
		if err != nil {
			return nil, err
		}
		return vantage.NewConn(rwc, logger), nil

	case addr != "":
		rwc, err := vantage.DialNetwork(addr, 0)
		if err != nil {
			return nil, err
		}
		return vantage.NewConn(rwc, logger), nil
	}

	if cfgFile == "" {
		return nil, fmt.Errorf("pass -serial, -addr, or -config")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	s, err := cfg.Station(station)
	if err != nil {
		return nil, err
	}

	if s.SerialDevice != "" {
		b := s.Baud
		if b == 0 {
			b = baud
		}
		rwc, err := vantage.OpenSerial(s.SerialDevice, b)
		if err != nil {
			return nil, err
		}
		return vantage.NewConn(rwc, logger), nil
	}

	timeout := time.Duration(s.ReadTimeoutSeconds) * time.Second
	rwc, err := vantage.DialNetwork(s.Hostname+":"+s.Port, timeout)
	if err != nil {
		return nil, err
	}
	return vantage.NewConn(rwc, logger), nil
}

func run(conn *vantage.Conn, action, start, stop string) error {
	switch action {
	case "current":
		return printCurrent(conn)
	case "hilows":
		return printHiLows(conn)
	case "archives":
		return dumpArchives(conn, start, stop)
	case "gettime":
		t, err := conn.GetTime()
		if err != nil {
			return err
		}
		fmt.Println(t.Format("2006-01-02 15:04:05"))
		return nil
	case "settime":
		now := time.Now()
		if err := conn.SetTime(now); err != nil {
			return err
		}
		fmt.Printf("console clock set to %s\n", now.Format("2006-01-02 15:04:05"))
		return nil
	case "info":
		return printInfo(conn)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func printCurrent(conn *vantage.Conn) error {
	rec, err := conn.GetCurrentData()
	if err != nil {
		return err
	}
	if rec.CRCError {
		log.Warn("LOOP packet failed its CRC check; values may be corrupt")
	}

	fmt.Printf("Time:           %s\n", rec.Datetime.Format("2006-01-02 15:04:05"))
	fmt.Printf("Barometer:      %.3f inHg (trend %d)\n", rec.Barometer, rec.BarTrend)
	fmt.Printf("Inside:         %.1f °F  %d%% RH\n", rec.TempIn, rec.HumIn)
	fmt.Printf("Outside:        %.1f °F  %d%% RH\n", rec.TempOut, rec.HumOut)
	fmt.Printf("Wind:           %d mph from %d° (10-min avg %d mph)\n",
		rec.WindSpeed, rec.WindDir, rec.WindSpeed10Min)
	fmt.Printf("Rain rate:      %.2f in/hr\n", rec.RainRate)
	fmt.Printf("Rain today:     %.2f in (month %.2f, year %.2f)\n",
		rec.RainDay, rec.RainMonth, rec.RainYear)
	if rec.StormStartDate != "" {
		fmt.Printf("Storm:          %.2f in since %s\n", rec.RainStorm, rec.StormStartDate)
	}
	fmt.Printf("Solar:          %d W/m²  UV %d\n", rec.SolarRad, rec.UV)
	fmt.Printf("Battery:        %.2f V (transmitter status %d)\n", rec.BatteryVolts, rec.BatteryStatus)
	fmt.Printf("Sunrise/sunset: %s / %s\n", rec.SunRise, rec.SunSet)
	return nil
}

func printHiLows(conn *vantage.Conn) error {
	rec, err := conn.GetHiLows()
	if err != nil {
		return err
	}
	if rec.CRCError {
		log.Warn("HILOWS frame failed its CRC check; values may be corrupt")
	}

	fmt.Printf("Barometer:  low %.3f at %s, high %.3f at %s\n",
		rec.DayLowBarometer, rec.TimeDayLowBarometer,
		rec.DayHighBarometer, rec.TimeDayHighBarometer)
	fmt.Printf("Outside:    low %.1f °F at %s, high %.1f °F at %s\n",
		rec.DayLowOutTemp, rec.TimeDayLowOutTemp,
		rec.DayHighOutTemp, rec.TimeDayHighOutTemp)
	fmt.Printf("Inside:     low %.1f °F at %s, high %.1f °F at %s\n",
		rec.DayLowInTemp, rec.TimeDayLowInTemp,
		rec.DayHighInTemp, rec.TimeDayHighInTemp)
	fmt.Printf("Wind:       high %d mph at %s\n",
		rec.DayHighWindSpeed, rec.TimeDayHighWindSpeed)
	fmt.Printf("Rain rate:  high %.2f in/hr at %s\n",
		rec.DayHighRainRate, rec.TimeDayHighRainRate)
	fmt.Printf("Month:      outside %.1f to %.1f °F, barometer %.3f to %.3f inHg\n",
		rec.MonthLowOutTemp, rec.MonthHighOutTemp,
		rec.MonthLowBarometer, rec.MonthHighBarometer)
	fmt.Printf("Year:       outside %.1f to %.1f °F, barometer %.3f to %.3f inHg\n",
		rec.YearLowOutTemp, rec.YearHighOutTemp,
		rec.YearLowBarometer, rec.YearHighBarometer)
	return nil
}

func dumpArchives(conn *vantage.Conn, startArg, stopArg string) error {
	var start, stop time.Time
	var err error
	if startArg != "" {
		start, err = time.ParseInLocation("2006-01-02 15:04", startArg, time.Local)
		if err != nil {
			return fmt.Errorf("bad -start value: %w", err)
		}
	}
	if stopArg != "" {
		stop, err = time.ParseInLocation("2006-01-02 15:04", stopArg, time.Local)
		if err != nil {
			return fmt.Errorf("bad -stop value: %w", err)
		}
	}

	records, err := conn.GetArchives(start, stop)
	if err != nil {
		return err
	}

	w := csv.NewWriter(os.Stdout)
	header := []string{
		"datetime", "temp_out", "temp_out_hi", "temp_out_low", "temp_in",
		"hum_in", "hum_out", "barometer", "rain_rate", "rain_rate_hi",
		"wind_avg", "wind_hi", "wind_hi_dir", "wind_avg_dir",
		"solar_rad", "uv", "et_hour",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Datetime.Format("2006-01-02 15:04"),
			strconv.FormatFloat(r.TempOut, 'f', 1, 64),
			strconv.FormatFloat(r.TempOutHi, 'f', 1, 64),
			strconv.FormatFloat(r.TempOutLow, 'f', 1, 64),
			strconv.FormatFloat(r.TempIn, 'f', 1, 64),
			strconv.Itoa(int(r.HumIn)),
			strconv.Itoa(int(r.HumOut)),
			strconv.FormatFloat(r.Barometer, 'f', 3, 64),
			strconv.Itoa(int(r.RainRate)),
			strconv.Itoa(int(r.RainRateHi)),
			strconv.Itoa(int(r.WindAvg)),
			strconv.Itoa(int(r.WindHi)),
			strconv.Itoa(int(r.WindHiDir)),
			strconv.Itoa(int(r.WindAvgDir)),
			strconv.Itoa(int(r.SolarRad)),
			strconv.FormatFloat(r.UV, 'f', 1, 64),
			strconv.FormatFloat(r.ETHour, 'f', 3, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	log.Infof("Dumped %d archive records", len(records))
	return nil
}

func printInfo(conn *vantage.Conn) error {
	ver, err := conn.FirmwareVersion()
	if err != nil {
		return err
	}
	date, err := conn.FirmwareDate()
	if err != nil {
		return err
	}
	tz, err := conn.Timezone()
	if err != nil {
		return err
	}
	period, err := conn.ArchivePeriod()
	if err != nil {
		return err
	}
	diag, err := conn.GetDiagnostics()
	if err != nil {
		return err
	}

	fmt.Printf("Firmware:        %s (%s)\n", ver, date.Format("Jan 2 2006"))
	fmt.Printf("Timezone:        %s\n", tz)
	fmt.Printf("Archive period:  %d minutes\n", period)
	fmt.Printf("Receiver:        %d received, %d missed, %d resyncs, %d max streak, %d CRC errors\n",
		diag.TotalReceived, diag.TotalMissed, diag.Resyncs, diag.MaxReceived, diag.CRCErrors)
	return nil
}
