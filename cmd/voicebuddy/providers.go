package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/liamchens/quran-voice-buddy/internal/app"
	"github.com/liamchens/quran-voice-buddy/internal/config"
	"github.com/liamchens/quran-voice-buddy/internal/health"
	"github.com/liamchens/quran-voice-buddy/internal/observe"
	"github.com/liamchens/quran-voice-buddy/internal/passage"
	"github.com/liamchens/quran-voice-buddy/internal/passage/postgres"
	"github.com/liamchens/quran-voice-buddy/internal/passage/quranapi"
	"github.com/liamchens/quran-voice-buddy/internal/passage/sqlite"
	"github.com/liamchens/quran-voice-buddy/internal/resilience"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt/deepgram"
	oaistt "github.com/liamchens/quran-voice-buddy/pkg/provider/stt/openai"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt/whisper"
)

// httpSourceTimeout bounds a single request to a REST passage source.
const httpSourceTimeout = 10 * time.Second

// registerBuiltinProviders wires every built-in factory into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if sr := entry.OptInt("sample_rate", 0); sr > 0 {
			opts = append(opts, deepgram.WithSampleRate(sr))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ms := entry.OptInt("silence_threshold_ms", 0); ms > 0 {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		if ms := entry.OptInt("max_buffer_duration_ms", 0); ms > 0 {
			opts = append(opts, whisper.WithMaxBufferDurationMs(ms))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptString("model_path")
		}
		var opts []whisper.NativeOption
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if ms := entry.OptInt("silence_threshold_ms", 0); ms > 0 {
			opts = append(opts, whisper.WithNativeSilenceThresholdMs(ms))
		}
		if ms := entry.OptInt("max_buffer_duration_ms", 0); ms > 0 {
			opts = append(opts, whisper.WithNativeMaxBufferDurationMs(ms))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		if ms := entry.OptInt("timeout_ms", 0); ms > 0 {
			opts = append(opts, oaistt.WithTimeout(time.Duration(ms)*time.Millisecond))
		}
		if ms := entry.OptInt("silence_threshold_ms", 0); ms > 0 {
			opts = append(opts, oaistt.WithSilenceThresholdMs(ms))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Passage sources ───────────────────────────────────────────────────────

	reg.RegisterPassageSource(config.SourceYAML, func(_ context.Context, src config.PassageSource) (passage.Provider, error) {
		return passage.OpenYAML(src.Path)
	})

	reg.RegisterPassageSource(config.SourceSQLite, func(ctx context.Context, src config.PassageSource) (passage.Provider, error) {
		return sqlite.Open(ctx, src.Path)
	})

	reg.RegisterPassageSource(config.SourcePostgres, func(ctx context.Context, src config.PassageSource) (passage.Provider, error) {
		return postgres.NewStore(ctx, src.DSN)
	})

	reg.RegisterPassageSource(config.SourceHTTP, func(_ context.Context, src config.PassageSource) (passage.Provider, error) {
		opts := []quranapi.Option{quranapi.WithHTTPClient(&http.Client{Timeout: httpSourceTimeout})}
		if src.BaseURL != "" {
			opts = append(opts, quranapi.WithBaseURL(src.BaseURL))
		}
		if src.Edition != "" {
			opts = append(opts, quranapi.WithEdition(src.Edition))
		}
		return quranapi.New(opts...), nil
	})

	slog.Debug("registered providers",
		"stt", reg.Names("stt"),
		"passages", reg.Names("passages"),
	)
}

// builtProviders is everything buildProviders created.
type builtProviders struct {
	providers *app.Providers
	checks    []health.Checker
	closers   []func() error
	// passageChain describes the passage lookup order for the startup summary.
	passageChain string
}

// close runs the closers in reverse order. Used when startup fails after
// providers were opened.
func (b *builtProviders) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}
}

// buildProviders instantiates the providers named in cfg through reg.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*builtProviders, error) {
	b := &builtProviders{providers: &app.Providers{}}
	breakers := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state change", "name", name, "from", from, "to", to)
				m.RecordCircuitTransition(context.Background(), name, to.String())
			},
		},
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	if name := cfg.Providers.STT.Name; name != "" {
		primary, err := b.createSTT(reg, cfg.Providers.STT, m)
		if err != nil {
			b.close()
			return nil, err
		}
		if len(cfg.Providers.STTFallbacks) == 0 {
			b.providers.STT = primary
		} else {
			fb := resilience.NewSTTFallback(primary, name, breakers)
			for _, entry := range cfg.Providers.STTFallbacks {
				p, err := b.createSTT(reg, entry, m)
				if err != nil {
					b.close()
					return nil, err
				}
				fb.AddFallback(entry.Name, p)
			}
			b.providers.STT = fb
			slog.Info("stt fallback chain", "order", fb.Names())
		}
	}

	// ── Passages ──────────────────────────────────────────────────────────────
	primary, err := b.createPassageSource(ctx, reg, cfg.Passages.PassageSource, m)
	if err != nil {
		b.close()
		return nil, err
	}
	chain := []string{cfg.Passages.Source}
	var src passage.Provider = primary
	if len(cfg.Passages.Fallbacks) > 0 {
		fb := passage.NewFallback(primary, cfg.Passages.Source, breakers)
		for _, s := range cfg.Passages.Fallbacks {
			p, err := b.createPassageSource(ctx, reg, s, m)
			if err != nil {
				b.close()
				return nil, err
			}
			fb.AddFallback(s.Source, p)
			chain = append(chain, s.Source)
		}
		src = fb
	}
	b.providers.Passages = passage.NewCache(src, cfg.Passages.CacheSize, cfg.Passages.CacheTTL,
		passage.WithLookupHook(func(hit bool) {
			m.RecordCacheLookup(context.Background(), hit)
		}),
	)
	b.passageChain = strings.Join(chain, " → ")
	return b, nil
}

func (b *builtProviders) createSTT(reg *config.Registry, entry config.ProviderEntry, m *observe.Metrics) (stt.Provider, error) {
	p, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	if c, ok := p.(io.Closer); ok {
		b.closers = append(b.closers, c.Close)
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name)
	return app.InstrumentSTT(entry.Name, p, m), nil
}

func (b *builtProviders) createPassageSource(ctx context.Context, reg *config.Registry, src config.PassageSource, m *observe.Metrics) (passage.Provider, error) {
	p, err := reg.CreatePassageSource(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("create passage source %q: %w", src.Source, err)
	}
	switch c := p.(type) {
	case io.Closer:
		b.closers = append(b.closers, c.Close)
	case interface{ Close() }:
		b.closers = append(b.closers, func() error { c.Close(); return nil })
	}
	if pinger, ok := p.(health.Pinger); ok {
		b.checks = append(b.checks, health.PingChecker("passages/"+src.Source, pinger))
	}
	slog.Info("provider created", "kind", "passages", "name", src.Source)
	return app.InstrumentPassages(src.Source, p, m), nil
}
