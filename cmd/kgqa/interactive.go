package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/smallnest/kgqa/format"
	"github.com/smallnest/kgqa/pipeline"
	"github.com/smallnest/kgqa/synth"
)

var (
	exitWords = map[string]bool{"quit": true, "exit": true, "quitter": true, "bye": true, "au revoir": true}
	helpWords = map[string]bool{"help": true, "aide": true, "?": true}
)

type banner struct {
	title, intro, examples, commands, exitHint, helpHint, prompt, goodbye string
}

var banners = map[synth.Language]banner{
	synth.French: {
		title:    "KGQA - MODE INTERACTIF",
		intro:    "Posez vos questions sur le graphe de connaissances %s.",
		examples: "Exemples de questions:",
		commands: "Commandes:",
		exitHint: "'quit', 'exit', 'quitter' pour terminer",
		helpHint: "'help', 'aide' ou '?' pour voir les exemples",
		prompt:   "Votre question: ",
		goodbye:  "Au revoir!",
	},
	synth.English: {
		title:    "KGQA - INTERACTIVE MODE",
		intro:    "Ask your questions about the %s knowledge graph.",
		examples: "Example questions:",
		commands: "Commands:",
		exitHint: "'quit', 'exit' or 'bye' to leave",
		helpHint: "'help' or '?' to list the examples",
		prompt:   "Your question: ",
		goodbye:  "Goodbye!",
	},
}

func bannerFor(lang synth.Language) banner {
	if b, ok := banners[lang]; ok {
		return b
	}
	return banners[synth.DefaultLanguage]
}

// interactive reads questions line by line until an exit word, end of input
// or cancellation.
type interactive struct {
	app      *app
	in       io.Reader
	out      io.Writer
	printer  *stepPrinter
	format   string
	category format.Category
}

func (s *interactive) run(ctx context.Context) error {
	lang := s.app.pipeline.DefaultLanguage()
	b := bannerFor(lang)
	tty := isTerminal(s.in)

	if tty {
		s.printBanner(b)
	}

	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- sc.Err()
	}()

	for {
		if tty {
			fmt.Fprint(s.out, "\n"+titleStyle.Render(b.prompt))
		}

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out, "\n\n"+b.goodbye)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			if tty {
				fmt.Fprintln(s.out, "\n"+b.goodbye)
			}
			select {
			case err := <-errs:
				return err
			default:
				return nil
			}
		}

		question := strings.TrimSpace(line)
		switch word := strings.ToLower(question); {
		case question == "":
			continue
		case exitWords[word]:
			fmt.Fprintln(s.out, "\n"+b.goodbye)
			return nil
		case helpWords[word]:
			s.printExamples(b)
			continue
		}

		rec := askOne(ctx, s.app, s.printer, pipeline.Question{Text: question, Category: s.category})
		if err := writeRecord(s.out, rec, s.format); err != nil {
			return err
		}
	}
}

func (s *interactive) printBanner(b banner) {
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, strings.Repeat("=", ruleWidth))
	fmt.Fprintln(s.out, titleStyle.Render(" "+b.title))
	fmt.Fprintln(s.out, strings.Repeat("=", ruleWidth))
	fmt.Fprintln(s.out)
	fmt.Fprintf(s.out, b.intro+"\n", s.app.desc.Name)
	s.printExamples(b)
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, b.commands)
	fmt.Fprintf(s.out, "  - %s\n", b.exitHint)
	fmt.Fprintf(s.out, "  - %s\n", b.helpHint)
	fmt.Fprintln(s.out, strings.Repeat("=", ruleWidth))
}

func (s *interactive) printExamples(b banner) {
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, b.examples)
	for i, ex := range s.app.desc.Examples {
		fmt.Fprintf(s.out, "  %d. %s\n", i+1, ex.Question)
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
