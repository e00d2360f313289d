package geoip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hyqhyq3/wmtr/internal/i18n"
)

const (
	fetchIdleTimeout  = 30 * time.Second
	fetchLogEvery     = 2 * time.Second
	fetchUserAgent    = "wmtr/geoip-downloader"
	ip2RegionURLEnv   = "WMTR_IP2REGION_URL"
	partialFileSuffix = ".part"
)

var ip2RegionMirrors = []string{
	"https://github.com/lionsoul2014/ip2region/releases/latest/download/ip2region.xdb",
	"https://github.com/lionsoul2014/ip2region/releases/latest/download/ip2region_v4.xdb",
	"https://raw.githubusercontent.com/lionsoul2014/ip2region/master/data/ip2region_v4.xdb",
}

type DownloadAnswer int

const (
	DownloadAsk DownloadAnswer = iota
	DownloadYes
	DownloadNo
)

// DownloadPrompt asks the user a yes/no question.
type DownloadPrompt func(message string) (bool, error)

// DownloadOption decides what happens when a database file is missing.
type DownloadOption struct {
	Answer DownloadAnswer
	Prompt DownloadPrompt
}

// confirm reports whether a missing database may be fetched to path.
func (o DownloadOption) confirm(path string) (bool, error) {
	switch o.Answer {
	case DownloadYes:
		return true, nil
	case DownloadNo:
		return false, nil
	case DownloadAsk:
		if o.Prompt == nil {
			return false, errors.New(i18n.T("geoip.ip2region.promptUnavailable"))
		}
		return o.Prompt(i18n.Tf("geoip.ip2region.confirmDownload", map[string]interface{}{"Path": path}))
	}
	return false, fmt.Errorf("unknown download answer %d", o.Answer)
}

// fetcher downloads a database file from the first mirror that delivers it
// completely.
type fetcher struct {
	client  *http.Client
	mirrors []string
	idle    time.Duration
	log     *logrus.Entry
}

func newFetcher(customURL string) *fetcher {
	mirrors := ip2RegionMirrors
	if u := strings.TrimSpace(customURL); u != "" {
		mirrors = []string{u}
	} else if u := strings.TrimSpace(os.Getenv(ip2RegionURLEnv)); u != "" {
		mirrors = []string{u}
	}
	return &fetcher{
		client:  http.DefaultClient,
		mirrors: mirrors,
		idle:    fetchIdleTimeout,
		log:     logrus.WithField("component", "geoip.fetch"),
	}
}

// ensure makes sure path holds a file, fetching it when allowed to.
func (f *fetcher) ensure(ctx context.Context, path string, opt DownloadOption) error {
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return errors.New(i18n.Tf("geoip.ip2region.pathIsDir", map[string]interface{}{"Path": path}))
	case err == nil:
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return errors.New(i18n.Tf("geoip.ip2region.unavailable", map[string]interface{}{"Error": err.Error()}))
	}

	ok, err := opt.confirm(path)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(i18n.T("geoip.ip2region.downloadDeclined"))
	}
	if err := f.fetch(ctx, path); err != nil {
		return errors.New(i18n.Tf("geoip.ip2region.downloadFailed", map[string]interface{}{"Error": err.Error()}))
	}
	return nil
}

func (f *fetcher) fetch(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(i18n.Tf("geoip.ip2region.mkdirFailed", map[string]interface{}{"Error": err.Error()}))
	}

	var failures []string
	for _, mirror := range f.mirrors {
		err := f.fetchOne(ctx, mirror, path)
		if err == nil {
			return nil
		}
		f.log.WithError(err).WithField("source", mirror).Warn("mirror failed")
		failures = append(failures, mirror+": "+err.Error())
		if ctx.Err() != nil {
			break
		}
	}
	return errors.New(i18n.Tf("geoip.ip2region.allSourcesFailed", map[string]interface{}{"Errors": strings.Join(failures, "; ")}))
}

// fetchOne streams mirror into a partial file next to path and renames it
// into place once the body has been read completely.
func (f *fetcher) fetchOne(parent context.Context, mirror, path string) (err error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mirror, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errors.New(i18n.Tf("geoip.ip2region.statusCode", map[string]interface{}{"Code": resp.StatusCode}))
	}

	partial := path + partialFileSuffix
	out, err := os.Create(partial)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(partial)
		}
	}()

	mon := newTransferMonitor(f.log.WithField("source", mirror), resp.ContentLength, f.idle, cancel)
	defer func() { mon.done(err) }()

	if _, err = io.Copy(out, io.TeeReader(resp.Body, mon)); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(partial, path)
}

// transferMonitor counts the bytes written through it, logs progress now
// and then, and aborts the transfer once nothing arrived for idle.
type transferMonitor struct {
	log   *logrus.Entry
	total int64
	idle  time.Duration
	start time.Time

	mu      sync.Mutex
	read    int64
	logged  time.Time
	stalled *time.Timer
}

func newTransferMonitor(log *logrus.Entry, total int64, idle time.Duration, abort context.CancelFunc) *transferMonitor {
	m := &transferMonitor{log: log, total: total, idle: idle, start: time.Now()}
	if idle > 0 {
		m.stalled = time.AfterFunc(idle, func() {
			log.WithField("idle", idle).Warn("download stalled")
			abort()
		})
	}
	return m
}

func (m *transferMonitor) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.read += int64(len(b))
	if m.stalled != nil {
		m.stalled.Reset(m.idle)
	}
	if now := time.Now(); now.Sub(m.logged) >= fetchLogEvery {
		m.logged = now
		m.log.WithFields(m.fieldsLocked()).Info("downloading")
	}
	return len(b), nil
}

func (m *transferMonitor) done(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stalled != nil {
		m.stalled.Stop()
	}
	log := m.log.WithFields(m.fieldsLocked()).WithField("elapsed", time.Since(m.start).Round(time.Millisecond))
	if err != nil {
		log.WithError(err).Warn("download failed")
		return
	}
	log.Info("download complete")
}

func (m *transferMonitor) fieldsLocked() logrus.Fields {
	fields := logrus.Fields{"received": humanBytes(m.read)}
	if m.total > 0 {
		fields["total"] = humanBytes(m.total)
		fields["percent"] = fmt.Sprintf("%.1f", 100*float64(m.read)/float64(m.total))
	}
	return fields
}

func humanBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%dB", n)
	}
	v := float64(n)
	for _, unit := range []string{"KiB", "MiB", "GiB", "TiB"} {
		v /= 1024
		if v < 1024 {
			return fmt.Sprintf("%.1f%s", v, unit)
		}
	}
	return fmt.Sprintf("%.1fPiB", v/1024)
}
