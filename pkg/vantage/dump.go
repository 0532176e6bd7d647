package vantage

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// defaultDumpStart is the epoch used when no start bound is given; the
// console's archive cannot predate it.
var defaultDumpStart = time.Date(2001, time.January, 1, 1, 1, 1, 0, time.Local)

// ArchiveStream walks a DMPAFT archive dump one record at a time. The
// console delivers pages in chronological order and expects an ACK or ESC
// after every page, so the stream owns the pending flow-control decision:
// abandoning it without Close leaves the console waiting forever.
//
// A stream is not restartable; consuming it advances the session's wire
// position.
type ArchiveStream struct {
	c     *Conn
	start time.Time
	stop  time.Time

	pagesLeft int
	page      *DmpPage
	slot      int

	// terminal marks a page whose slots ran past the useful range (an
	// unused sentinel slot or a record beyond stop).
	terminal bool

	// notInRange records whether the most recently examined slot was at
	// or below start. A page that stays stale end to end cancels the
	// whole dump: pages arrive in chronological order, so a page that
	// never climbed into range is taken to mean nothing newer follows.
	// A later page could still be in range when start rounding lands
	// mid-page, but this matches long-observed console-driver behavior
	// and is kept as is.
	notInRange bool

	finished bool
	abortErr error
}

// StreamArchives starts an archive dump covering (start, stop] and returns
// a pull-based stream over its records. A zero start defaults to the 2001
// epoch, a zero stop to the current time. The DMPAFT handshake failures at
// this level are not retried; retries happen inside the lower-level
// primitives.
func (c *Conn) StreamArchives(start, stop time.Time) (*ArchiveStream, error) {
	if err := c.WakeUp(); err != nil {
		return nil, err
	}
	if start.IsZero() {
		start = defaultDumpStart
	}
	if stop.IsZero() {
		stop = time.Now()
	}

	// Round start down to the console's archive interval so the stamp
	// matches an actual record boundary.
	period, err := c.ArchivePeriod()
	if err != nil {
		return nil, err
	}
	if period > 0 {
		start = start.Add(-time.Duration(start.Minute()%period) * time.Minute)
	}

	if err := c.sendCommand("DMPAFT", ackStr); err != nil {
		return nil, err
	}
	if err := c.write(PackDmpDateTime(start)); err != nil {
		return nil, err
	}
	ack, err := c.readFull(len(ackStr))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAck, err)
	}
	if string(ack) != ackStr {
		return nil, fmt.Errorf("%w: dump stamp not acknowledged (%x)", ErrBadAck, ack)
	}

	raw, err := c.readFull(DmpHeaderSize)
	if err != nil {
		return nil, err
	}
	header, err := DecodeDmpHeader(raw)
	if err != nil {
		return nil, err
	}
	if header.CRCError {
		c.writeByte(cancelByte)
		return nil, fmt.Errorf("dump header: %w", ErrBadCRC)
	}
	if err := c.writeByte(ackStr[0]); err != nil {
		return nil, err
	}

	c.logger.Debugf("archive dump: %d pages from %s", header.Pages, start)
	return &ArchiveStream{
		c:         c,
		start:     start,
		stop:      stop,
		pagesLeft: int(header.Pages),
	}, nil
}

// Next returns the next in-range archive record, or io.EOF when the dump is
// over. A dump aborted mid-way (page retries exhausted) also ends with
// io.EOF; Err then reports the cause, and everything returned before it is
// valid data.
func (s *ArchiveStream) Next() (*ArchiveRecord, error) {
	for {
		if s.finished {
			return nil, io.EOF
		}

		if s.page != nil && s.slot >= recordsPerPage {
			// Post-page flow control: cancel on a terminal or fully
			// stale page, otherwise request the next one.
			if s.terminal || s.notInRange {
				s.c.writeByte(escByte)
				s.finished = true
				return nil, io.EOF
			}
			if err := s.c.writeByte(ackStr[0]); err != nil {
				s.finished = true
				s.abortErr = err
				return nil, io.EOF
			}
			s.page = nil
		}

		if s.page == nil {
			if s.pagesLeft == 0 {
				s.finished = true
				return nil, io.EOF
			}
			page, err := s.readPage()
			if err != nil {
				// Retries exhausted: treat as natural end of the
				// stream. The console gave up on this page, so no
				// ESC is owed here.
				s.finished = true
				s.abortErr = err
				return nil, io.EOF
			}
			s.pagesLeft--
			s.page = page
			s.slot = 0
		}

		rec, err := DecodeArchiveRecord(s.page.slot(s.slot))
		s.slot++
		if err != nil {
			s.finished = true
			s.abortErr = err
			return nil, io.EOF
		}

		switch {
		case rec.Empty():
			// Unused slot: the dump has reached the write cursor.
			s.terminal = true
			s.slot = recordsPerPage
		case rec.Datetime.After(s.stop):
			s.terminal = true
			s.slot = recordsPerPage
		case rec.Datetime.After(s.start):
			s.notInRange = false
			return rec, nil
		default:
			// At or below start: skip, but remember the staleness.
			s.notInRange = true
		}
	}
}

// Err reports why the stream ended early, if it did. It is only meaningful
// after Next has returned io.EOF.
func (s *ArchiveStream) Err() error {
	return s.abortErr
}

// Close terminates the stream. If the caller abandons the dump mid-way the
// console is still waiting for a page acknowledgement, so an ESC is sent to
// cancel the session and leave the link in a commanded state.
func (s *ArchiveStream) Close() error {
	if s.finished {
		return nil
	}
	s.finished = true
	return s.c.writeByte(escByte)
}

// readPage reads one dump page, NACKing the console for a resend on a short
// or corrupt frame. Bounded retries apply per page.
func (s *ArchiveStream) readPage() (*DmpPage, error) {
	var page *DmpPage
	err := s.c.retry(func() error {
		frame, err := s.c.readFull(DmpPageSize)
		if err != nil {
			s.c.write([]byte(nackStr))
			return err
		}
		p, err := DecodeDmpPage(frame)
		if err != nil {
			s.c.write([]byte(nackStr))
			return err
		}
		if p.CRCError {
			s.c.write([]byte(nackStr))
			return fmt.Errorf("dump page %d: %w", p.Index, ErrBadCRC)
		}
		page = p
		return nil
	})
	return page, err
}

// GetArchives returns all archive records with timestamps in (start, stop],
// deduplicated by timestamp (first occurrence wins) and sorted ascending.
// If the dump aborts mid-way the records retrieved so far are returned.
func (c *Conn) GetArchives(start, stop time.Time) ([]*ArchiveRecord, error) {
	stream, err := c.StreamArchives(start, stop)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	seen := make(map[time.Time]bool)
	var records []*ArchiveRecord
	for {
		rec, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return records, err
		}
		if seen[rec.Datetime] {
			continue
		}
		seen[rec.Datetime] = true
		records = append(records, rec)
	}
	if err := stream.Err(); err != nil {
		c.logger.Warnf("archive dump ended early: %v", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Datetime.Before(records[j].Datetime)
	})
	return records, nil
}
