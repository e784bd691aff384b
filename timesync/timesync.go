package timesync

import (
	"sync"
	"time"

	"ledger-monitor/logger"

	"github.com/beevik/ntp"
	"github.com/sirupsen/logrus"
)

var log = logger.Logger

const (
	// SyncInterval defines how often to check external time sources.
	SyncInterval = 60 * time.Second

	// MaxOffset caps how far the adjusted clock may drift from the local
	// one; larger NTP offsets are treated as a broken sample and ignored.
	MaxOffset = 10 * time.Second
)

// NtpServerSource lists the queried NTP servers in preference order.
var NtpServerSource = [3]string{
	"pool.ntp.org",        // NTP pool
	"time.google.com",     // Google's NTP server
	"time.cloudflare.com", // Cloudflare's NTP server
}

// Source provides network-adjusted time for event and poll timestamps. When
// no NTP sample has been obtained yet, it falls back to the local clock.
type Source struct {
	mutex        sync.RWMutex
	offset       time.Duration
	lastSyncTime time.Time
	stop         chan struct{}
	stopOnce     sync.Once
}

// NewSource creates a time source with zero offset.
func NewSource() *Source {
	return &Source{stop: make(chan struct{})}
}

// Start samples the NTP servers once, then keeps resampling on SyncInterval
// until Stop is called.
func (s *Source) Start() {
	s.sync()
	go s.run()
}

// Stop ends background resampling. Now keeps working with the last offset.
func (s *Source) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Now returns the local clock adjusted by the last good NTP offset.
func (s *Source) Now() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return time.Now().Add(s.offset)
}

// Offset returns the current clock adjustment.
func (s *Source) Offset() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.offset
}

func (s *Source) run() {
	ticker := time.NewTicker(SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sync()
		case <-s.stop:
			return
		}
	}
}

// sync queries the servers in order and keeps the first usable offset.
func (s *Source) sync() {
	for _, server := range NtpServerSource {
		response, err := ntp.Query(server)
		if err != nil {
			log.WithFields(logrus.Fields{
				"server": server,
				"error":  err,
			}).Debug("NTP query failed, trying next source")
			continue
		}
		if err := response.Validate(); err != nil {
			log.WithFields(logrus.Fields{
				"server": server,
				"error":  err,
			}).Debug("NTP response invalid, trying next source")
			continue
		}
		if response.ClockOffset > MaxOffset || response.ClockOffset < -MaxOffset {
			log.WithFields(logrus.Fields{
				"server": server,
				"offset": response.ClockOffset,
			}).Warn("NTP offset exceeds sanity bound, sample ignored")
			continue
		}

		s.mutex.Lock()
		s.offset = response.ClockOffset
		s.lastSyncTime = time.Now()
		s.mutex.Unlock()

		log.WithFields(logrus.Fields{
			"server": server,
			"offset": response.ClockOffset,
		}).Debug("Clock offset updated from NTP")
		return
	}

	log.Warn("All NTP sources failed, keeping previous clock offset")
}
