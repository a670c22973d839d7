package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	apexlog "github.com/apex/log"
	apexjson "github.com/apex/log/handlers/json"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/querycache"
	c "github.com/unkn0wn-root/querycache/codec"
	asynchook "github.com/unkn0wn-root/querycache/hooks/async"
	"github.com/unkn0wn-root/querycache/hooks/prom"
	qcapex "github.com/unkn0wn-root/querycache/log/apex"
	qclogrus "github.com/unkn0wn-root/querycache/log/logrus"
	qcslog "github.com/unkn0wn-root/querycache/log/slog"
	qczap "github.com/unkn0wn-root/querycache/log/zap"
	"github.com/unkn0wn-root/querycache/pantry"
	pr "github.com/unkn0wn-root/querycache/provider"
	"github.com/unkn0wn-root/querycache/provider/bigcache"
	"github.com/unkn0wn-root/querycache/provider/memory"
	"github.com/unkn0wn-root/querycache/provider/ristretto"
	"github.com/unkn0wn-root/querycache/sloghooks"
	"github.com/unkn0wn-root/querycache/transport"
)

// NewLogger builds the configured logger writing JSON lines to w. flush
// must be called before exit.
func (cfg *Config) NewLogger(w io.Writer) (l querycache.Logger, flush func(), err error) {
	flush = func() {}
	switch cfg.Log.Backend {
	case "zap":
		lvl, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, flush, err
		}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), lvl)
		zl := zap.New(core)
		return qczap.New(zl), func() { _ = zl.Sync() }, nil
	case "logrus":
		lvl, err := logrus.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, flush, err
		}
		ll := logrus.New()
		ll.SetOutput(w)
		ll.SetLevel(lvl)
		ll.SetFormatter(&logrus.JSONFormatter{})
		return qclogrus.New(ll), flush, nil
	case "slog":
		return qcslog.Logger{L: cfg.slogger(w)}, flush, nil
	case "apex":
		lvl, err := apexlog.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, flush, err
		}
		return qcapex.Logger{L: &apexlog.Logger{Handler: apexjson.New(w), Level: lvl}}, flush, nil
	case "none":
		return querycache.NopLogger{}, flush, nil
	}
	return nil, flush, fmt.Errorf("unknown log backend %q", cfg.Log.Backend)
}

func (cfg *Config) slogger(w io.Writer) *slog.Logger {
	var lvl slog.Level
	_ = lvl.UnmarshalText([]byte(cfg.Log.Level))
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func (cfg *Config) NewProvider(ctx context.Context) (pr.Provider, error) {
	switch cfg.Cache.Provider {
	case "memory":
		return memory.New(), nil
	case "ristretto":
		r := cfg.Cache.Ristretto
		return ristretto.New(ristretto.Config{
			NumCounters: r.NumCounters,
			MaxCost:     r.MaxCost,
			BufferItems: r.BufferItems,
		})
	case "bigcache":
		b := cfg.Cache.Bigcache
		return bigcache.New(ctx, bigcache.Config{
			LifeWindow:         mustDuration(b.LifeWindow),
			Shards:             b.Shards,
			HardMaxCacheSizeMB: b.HardMaxCacheSizeMB,
		})
	}
	return nil, fmt.Errorf("unknown cache provider %q", cfg.Cache.Provider)
}

func (cfg *Config) NewCodec() (c.Codec, error) {
	var inner c.Codec
	switch cfg.Cache.Codec {
	case "cbor":
		cb, err := c.NewCBOR(false)
		if err != nil {
			return nil, err
		}
		inner = cb
	case "json":
		inner = c.JSON{}
	case "msgpack":
		inner = c.Msgpack{}
	default:
		return nil, fmt.Errorf("unknown cache codec %q", cfg.Cache.Codec)
	}
	if cfg.Cache.MaxPayloadBytes > 0 {
		return c.Limit{Inner: inner, MaxDecode: cfg.Cache.MaxPayloadBytes}, nil
	}
	return inner, nil
}

// NewHooks builds the configured hooks. Prometheus counters register with
// reg. stop ends the async queue when one is configured.
func (cfg *Config) NewHooks(reg prometheus.Registerer, w io.Writer) (h querycache.Hooks, stop func(), err error) {
	stop = func() {}
	switch cfg.Hooks.Kind {
	case "none":
		return querycache.NopHooks{}, stop, nil
	case "prometheus":
		if reg == nil {
			return nil, stop, fmt.Errorf("hooks.kind prometheus needs a registerer")
		}
		h = prom.New(reg, "")
	case "slog":
		h = sloghooks.New(cfg.slogger(w), sloghooks.Options{SelfHealEvery: 10, CoalescedEvery: 100})
	default:
		return nil, stop, fmt.Errorf("unknown hooks kind %q", cfg.Hooks.Kind)
	}
	if cfg.Hooks.AsyncWorkers > 0 {
		ah := asynchook.New(h, cfg.Hooks.AsyncWorkers, cfg.Hooks.AsyncQueue)
		return ah, ah.Close, nil
	}
	return h, stop, nil
}

// ClientOptions maps the cache section to querycache.Options.
func (cfg *Config) ClientOptions(ctx context.Context, log querycache.Logger, hooks querycache.Hooks) (querycache.Options, error) {
	p, err := cfg.NewProvider(ctx)
	if err != nil {
		return querycache.Options{}, err
	}
	cd, err := cfg.NewCodec()
	if err != nil {
		_ = p.Close(ctx)
		return querycache.Options{}, err
	}
	return querycache.Options{
		Namespace:          cfg.Cache.Namespace,
		Provider:           p,
		Codec:              cd,
		StaleTime:          mustDuration(cfg.Cache.StaleTime),
		RefetchConcurrency: cfg.Cache.RefetchConcurrency,
		Logger:             log,
		Hooks:              hooks,
	}, nil
}

// TransportConfig maps the api section onto a pooled HTTP client carrying
// api.timeout.
func (cfg *Config) TransportConfig(log querycache.Logger) transport.Config {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = mustDuration(cfg.API.Timeout)
	tc := transport.Config{
		BaseURL:    cfg.API.URL,
		HTTPClient: hc,
		UserAgent:  cfg.API.UserAgent,
		Logger:     log,
	}
	if cfg.API.Token != "" {
		tc.Token = transport.StaticToken(cfg.API.Token)
	}
	return tc
}

func (cfg *Config) PantryOptions(log querycache.Logger) pantry.Options {
	return pantry.Options{
		Logger:         log,
		RecipePageSize: cfg.Pantry.RecipePageSize,
		SearchDelay:    mustDuration(cfg.Pantry.SearchDelay),
		ExpiringDays:   cfg.Pantry.ExpiringDays,
	}
}
