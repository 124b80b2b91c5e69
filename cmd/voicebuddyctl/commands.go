package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/liamchens/quran-voice-buddy/internal/config"
	"github.com/liamchens/quran-voice-buddy/internal/feedback"
	"github.com/liamchens/quran-voice-buddy/internal/passage"
	"github.com/liamchens/quran-voice-buddy/internal/passage/postgres"
	"github.com/liamchens/quran-voice-buddy/internal/passage/sqlite"
	"github.com/liamchens/quran-voice-buddy/internal/recite/align"
	"github.com/liamchens/quran-voice-buddy/internal/recite/normalize"
)

// ImportCmd copies passages from a YAML file into a database.
type ImportCmd struct {
	File     string `arg:"" type:"existingfile" help:"Passage YAML file."`
	SQLite   string `name:"sqlite" type:"path" xor:"dst" required:"" help:"Destination SQLite database."`
	Postgres string `name:"postgres" xor:"dst" required:"" env:"VOICEBUDDY_POSTGRES_DSN" help:"Destination PostgreSQL DSN."`
}

func (c *ImportCmd) Run(g *Globals) error {
	ctx := context.Background()
	pf, err := passage.LoadFile(c.File)
	if err != nil {
		return err
	}

	var dst passage.Store
	switch {
	case c.SQLite != "":
		s, err := sqlite.Open(ctx, c.SQLite)
		if err != nil {
			return err
		}
		defer s.Close()
		dst = s
	case c.Postgres != "":
		s, err := postgres.NewStore(ctx, c.Postgres)
		if err != nil {
			return err
		}
		defer s.Close()
		dst = s
	default:
		return errors.New("one of --sqlite or --postgres is required")
	}

	n, err := passage.Import(ctx, dst, pf.Passages)
	if err != nil {
		return fmt.Errorf("imported %d of %d passages: %w", n, len(pf.Passages), err)
	}
	_, err = fmt.Fprintf(g.Out, "imported %d passages\n", n)
	return err
}

// ShowCmd prints a passage's reference index.
type ShowCmd struct {
	Passage string `arg:"" help:"Passage id, e.g. 112 or 2:255-257."`
	SourceFlags
}

func (c *ShowCmd) Run(g *Globals) error {
	p, err := c.load(context.Background(), c.Passage)
	if err != nil {
		return err
	}
	idx := p.Index()

	fmt.Fprintf(g.Out, "%s %s: %d segments, %d tokens\n", p.ID, p.Title, idx.SegmentCount(), idx.Len())
	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSEG\tSURFACE\tNORMALISED")
	for i, tok := range idx.Tokens() {
		end := ""
		if tok.SegmentEnd {
			end = " ۝"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s%s\t%s\n", i, tok.Segment+1, tok.Surface, end, tok.Normalized)
	}
	return tw.Flush()
}

func (f SourceFlags) load(ctx context.Context, id string) (*passage.Passage, error) {
	src, release, err := f.open(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return src.Passage(ctx, id)
}

// AlignCmd replays a transcript through the alignment engine.
type AlignCmd struct {
	Passage    string `arg:"" help:"Passage id."`
	Transcript string `arg:"" optional:"" help:"Recognised text. Read from stdin when omitted or \"-\"."`
	Config     string `name:"config" type:"existingfile" help:"Take alignment thresholds from a server config file."`
	Verbose    bool   `short:"v" help:"Print the outcome of every step."`
	SourceFlags
}

func (c *AlignCmd) Run(g *Globals) error {
	cfg := align.DefaultConfig()
	if c.Config != "" {
		sc, err := config.Load(c.Config)
		if err != nil {
			return err
		}
		cfg = sc.Alignment
	}

	text := c.Transcript
	if text == "" || text == "-" {
		b, err := io.ReadAll(g.In)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		text = string(b)
	}

	p, err := c.load(context.Background(), c.Passage)
	if err != nil {
		return err
	}
	return replay(g.Out, p, normalize.Fields(text), cfg, c.Verbose)
}

// replay feeds tokens to a fresh engine one at a time, as a streaming
// recogniser would, and prints the resulting statuses.
func replay(w io.Writer, p *passage.Passage, tokens []string, cfg align.Config, verbose bool) error {
	eng := align.New(p.Index(), cfg)
	for i := range tokens {
		out, err := eng.Advance(tokens[:i+1])
		if err != nil {
			return err
		}
		if verbose {
			cur := eng.Cursor()
			fmt.Fprintf(w, "%3d %-12s matched=%d skipped=%d noise=%d deferred=%t cursor=%d/%d\n",
				i, tokens[i], out.Matched, out.Skipped, out.Noise, out.Deferred, cur.RefIndex, cur.Consumed)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, word := range eng.Words() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", word.Surface, word.Status, word.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := eng.Summary()
	_, err := fmt.Fprintf(w, "%s\ncorrect=%d skipped=%d pending=%d complete=%t feedback=%s\n",
		strings.Repeat("─", 40), s.Correct, s.Skipped, s.Pending, s.Complete, feedback.ForSummary(s))
	return err
}
