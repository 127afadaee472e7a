package obs

import (
	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// ProfileOption configures continuous profiling. Profiling is off when
// ServerAddress is empty.
type ProfileOption struct {
	ApplicationName string
	ServerAddress   string
	Tags            map[string]string
}

// StartProfiler starts pushing CPU and heap profiles to pyroscope. The
// returned stop func is always safe to call.
func StartProfiler(opt ProfileOption) (func(), error) {
	if opt.ServerAddress == "" {
		return func() {}, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: opt.ApplicationName,
		ServerAddress:   opt.ServerAddress,
		Tags:            opt.Tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return func() {}, errors.Wrap(err, "start pyroscope")
	}

	logs.Infof("pyroscope profiling %s -> %s", opt.ApplicationName, opt.ServerAddress)
	return func() {
		if err := profiler.Stop(); err != nil {
			logs.Errorf("stop pyroscope, err: %+v", err)
		}
	}, nil
}

// LogSummary writes a one-shot metrics summary, used at shutdown.
func LogSummary(name string, m *Metrics) {
	snap := m.Snapshot()
	for s, outcomes := range snap.Outcomes {
		logs.Infof("%s %s events: %v, latency: %+v", name, s, outcomes, snap.HandleLatency[s])
	}
	if snap.FramesSent > 0 || snap.Evictions > 0 || snap.SlowConsumers > 0 {
		logs.Infof("%s gateway frames: %d, evictions: %d, slow consumers: %d", name, snap.FramesSent, snap.Evictions, snap.SlowConsumers)
	}
	if snap.NotifyFailures > 0 {
		logs.Infof("%s notify failures: %d", name, snap.NotifyFailures)
	}
	if snap.CandlesPersisted > 0 {
		logs.Infof("%s candles persisted: %d", name, snap.CandlesPersisted)
	}
}
