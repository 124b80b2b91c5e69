// Command voicebuddyctl manages passage stores and replays transcripts
// through the alignment engine.
//
//	voicebuddyctl import passages.yaml --sqlite passages.db
//	voicebuddyctl show 112 --yaml passages.yaml
//	voicebuddyctl align 112 "قل هو الله احد" --yaml passages.yaml --verbose
package main

import (
	"io"
	"os"

	"github.com/alecthomas/kong"
)

var version = "dev"

// Globals is bound into every command's Run method.
type Globals struct {
	Out io.Writer
	In  io.Reader
}

// CLI defines the command-line interface.
type CLI struct {
	Import  ImportCmd  `cmd:"" help:"Import passages from a YAML file into SQLite or PostgreSQL."`
	Show    ShowCmd    `cmd:"" help:"Print the normalised reference index of a passage."`
	Align   AlignCmd   `cmd:"" help:"Align a transcript against a passage word by word."`
	Version VersionCmd `cmd:"" help:"Print version information."`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	_, err := io.WriteString(g.Out, "voicebuddyctl "+version+"\n")
	return err
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("voicebuddyctl"),
		kong.Description("Passage and alignment tools for the recitation server."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Bind(&Globals{Out: os.Stdout, In: os.Stdin}),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
