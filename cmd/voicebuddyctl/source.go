package main

import (
	"context"
	"errors"

	"github.com/liamchens/quran-voice-buddy/internal/passage"
	"github.com/liamchens/quran-voice-buddy/internal/passage/postgres"
	"github.com/liamchens/quran-voice-buddy/internal/passage/quranapi"
	"github.com/liamchens/quran-voice-buddy/internal/passage/sqlite"
)

// SourceFlags selects where a command reads passages from. Exactly one must
// be set.
type SourceFlags struct {
	YAML     string `name:"yaml" type:"existingfile" xor:"source" help:"Read passages from a YAML file."`
	SQLite   string `name:"sqlite" type:"path" xor:"source" help:"Read passages from a SQLite database."`
	Postgres string `name:"postgres" xor:"source" env:"VOICEBUDDY_POSTGRES_DSN" help:"Read passages from PostgreSQL (DSN)."`
	HTTP     string `name:"http" xor:"source" placeholder:"BASE_URL" help:"Read passages from an alquran.cloud compatible API."`
}

// open returns the selected provider and a function releasing it.
func (f SourceFlags) open(ctx context.Context) (passage.Provider, func(), error) {
	switch {
	case f.YAML != "":
		s, err := passage.OpenYAML(f.YAML)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case f.SQLite != "":
		s, err := sqlite.Open(ctx, f.SQLite)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case f.Postgres != "":
		s, err := postgres.NewStore(ctx, f.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case f.HTTP != "":
		return quranapi.New(quranapi.WithBaseURL(f.HTTP)), func() {}, nil
	default:
		return nil, nil, errors.New("one of --yaml, --sqlite, --postgres or --http is required")
	}
}
